package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims holds the custom data embedded in the session credential.
type SessionClaims struct {
	UserUID              string `json:"user_uid"`
	Email                string `json:"email"`
	SessionID            string `json:"session_id"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt and the other standard claims
}

// GenerateToken creates a signed JWT embedding the user uid, email and session id.
//
// The token expires after ttl, matching the expiry of the session row it refers to.
func (j *MakerImpl) GenerateToken(userUID, email, sessionID string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		UserUID:   userUID,
		Email:     email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken verifies the signature and validity of a credential and returns
// its SessionClaims.
func (j *MakerImpl) ParseToken(tokenStr string) (*SessionClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
