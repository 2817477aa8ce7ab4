// Package jwt implements generation and parsing of the signed session credential.
//
// The credential is an HS256 JWT embedding the user uid, email and the server-side
// session id. Deleting the session row invalidates the credential even while its
// signature still verifies.
package jwt

import (
	"time"
)

// Maker describes generation and parsing of signed session credentials.
type Maker interface {
	// GenerateToken issues a credential for the given user and session with the given TTL.
	GenerateToken(userUID, email, sessionID string, ttl time.Duration) (string, error)
	// ParseToken verifies the signature and returns the embedded claims.
	ParseToken(tokenStr string) (*SessionClaims, error)
}

// MakerImpl implements Maker using a shared secret key.
type MakerImpl struct {
	secretKey string
}

// NewMaker creates a MakerImpl signing with the given secret key.
func NewMaker(secretKey string) *MakerImpl {
	return &MakerImpl{secretKey: secretKey}
}
