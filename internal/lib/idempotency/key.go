// Package idempotency derives deterministic keys used to collapse duplicate
// checkout attempts. Two calls for the same user and plan within the same
// minute bucket produce the same key.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Key returns the checkout idempotency key for a user, plan and point in time.
func Key(userUID, plan string, now time.Time) string {
	bucket := now.UTC().Unix() / 60
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", userUID, plan, bucket)))
	return hex.EncodeToString(sum[:])
}
