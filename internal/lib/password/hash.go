// Package password implements hashing and verification of user passwords.
//
// GetHash produces a bcrypt hash suitable for storage.
// CompareHash checks a candidate password against a stored hash in constant time.
// CheckPolicy enforces the minimum complexity rules for new passwords.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the minimum accepted password length.
const MinLength = 8

// ErrWeakPassword is returned when a new password fails the complexity policy.
var ErrWeakPassword = errors.New("password must be at least 8 characters and contain a letter and a digit")

// GetHash returns the bcrypt hash of the given password.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash compares a stored bcrypt hash with a candidate password.
//
// Returns nil when the password matches the hash.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckPolicy validates a new password against the complexity policy:
// at least MinLength characters, at least one letter and one digit.
func CheckPolicy(password string) error {
	if len(password) < MinLength {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}
