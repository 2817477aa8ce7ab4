package models

import "time"

// TokenPurpose distinguishes the two single-use token flows.
type TokenPurpose string

const (
	// TokenPurposeVerifyEmail marks tokens issued for email verification.
	TokenPurposeVerifyEmail TokenPurpose = "verify_email"
	// TokenPurposePasswordReset marks tokens issued for password reset.
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// SecurityToken is a single-use expiring secret scoped to one user and purpose.
// At most one outstanding token exists per (user, purpose); issuing a new one
// deletes the previous rows.
type SecurityToken struct {
	TokenHash string
	UserUID   string
	Purpose   TokenPurpose
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Expired reports whether the token has passed its expiry at now.
func (t *SecurityToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
