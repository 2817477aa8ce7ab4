// Package token generates the single-use secrets used for email verification
// and password reset. The raw token travels to the user by email; only its
// sha256 hash is stored, so a database leak does not expose redeemable tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Length is the raw token entropy in bytes.
const Length = 32

// Pair couples the raw token handed to the user with the hash that is stored.
type Pair struct {
	Raw  string
	Hash string
}

// Generate creates a new high-entropy token and its storage hash.
func Generate() (*Pair, error) {
	const op = "token.Generate"
	bytes := make([]byte, Length)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	raw := base64.RawURLEncoding.EncodeToString(bytes)
	return &Pair{Raw: raw, Hash: Hash(raw)}, nil
}

// Hash returns the hex-encoded sha256 of a raw token, the form kept in storage.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
