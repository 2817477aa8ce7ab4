// Package errs defines the typed error taxonomy of the account-security and
// entitlement core. Business-rule failures are returned as these values at the
// point of detection; only genuinely unexpected failures reach callers as
// wrapped storage or infrastructure errors.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials covers both unknown account and wrong password,
	// so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked means the lockout window is still in force.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified means the credentials were correct but access is refused.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrNotFound covers missing rows and ownership mismatches alike.
	ErrNotFound = errors.New("not found")
	// ErrTokenExpired means the single-use token lapsed; the row is deleted eagerly.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenUsed means the single-use token was already redeemed.
	ErrTokenUsed = errors.New("token already used")
	// ErrAlreadyVerified means the account does not need verification.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrSamePassword rejects a password change to the current password.
	ErrSamePassword = errors.New("new password must differ from the current one")
	// ErrRequiresSubscription means the action needs an active paid plan.
	ErrRequiresSubscription = errors.New("requires subscription")
	// ErrQuotaExceeded means the plan includes the feature but its quota is spent.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrFeatureUnavailable means the plan does not include the feature at all.
	ErrFeatureUnavailable = errors.New("feature unavailable on this plan")
	// ErrConflict marks a state that refuses the transition, e.g. checkout for a
	// tier the user already holds.
	ErrConflict = errors.New("conflicting state")
)

// LockedError carries the minutes remaining on an account lockout.
type LockedError struct {
	Minutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %d more minutes", e.Minutes)
}

// Is makes errors.Is(err, ErrAccountLocked) match.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CredentialsError carries the attempts remaining before lockout.
type CredentialsError struct {
	AttemptsLeft int
}

func (e *CredentialsError) Error() string {
	return "invalid credentials"
}

// Is makes errors.Is(err, ErrInvalidCredentials) match.
func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}
