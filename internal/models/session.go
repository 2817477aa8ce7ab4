package models

import "time"

// Session is the server-side record backing a signed session credential.
// Deleting the row invalidates the credential even while its signature
// still verifies.
type Session struct {
	ID        string
	UserUID   string
	ExpiresAt time.Time
	CreatedAt time.Time
	IP        string
	UserAgent string
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
