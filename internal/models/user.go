package models

import "time"

// User represents a registered account.
//
// Plan is a denormalized display copy of the subscription state. It is written
// only by the billing transaction and the expiry sweep and must never be used
// for authorization decisions; the entitlement resolver derives those from the
// Subscription row.
type User struct {
	UID           string
	Email         string // canonical lower-case form, unique
	PasswordHash  string
	LoginAttempts int
	LockedUntil   *time.Time
	EmailVerified bool
	Plan          Plan
	LastLoginAt   *time.Time
	CreatedAt     time.Time
}

// Locked reports whether the account lockout is still in force at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
