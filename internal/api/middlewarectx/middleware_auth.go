// Package middlewarectx contains the HTTP middleware shared by the protected
// routes: session-credential verification and the request rate limit.
//
// SessionMiddleware accepts the session JWT either from the session cookie
// set at login or from the Authorization header, verifies its signature and
// then checks that the session row it refers to still exists. A deleted row
// rejects the request even while the signature still verifies.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/jwt"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/models"
)

// Key is the type of the request-context keys set by the middleware.
type Key string

const (
	// UserUID keys the authenticated user's uid.
	UserUID Key = "user_uid"
	// Email keys the authenticated user's email.
	Email Key = "email"
	// SessionID keys the server-side session row id.
	SessionID Key = "session_id"
)

// SessionCookie is the cookie the login handler stores the credential in.
const SessionCookie = "session_token"

// SessionReader loads a session row by id.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
}

// SessionMiddleware returns middleware that authenticates requests against
// the signed credential and its backing session row.
func SessionMiddleware(log *slog.Logger, maker jwt.Maker, sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SessionMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr := credentialFromRequest(r)
			if tokenStr == "" {
				log.Info("missing session credential")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("authentication required"))
				return
			}

			claims, err := maker.ParseToken(tokenStr)
			if err != nil {
				log.Info("invalid session credential", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired session"))
				return
			}

			session, err := sessions.GetSession(r.Context(), claims.SessionID)
			if err != nil {
				if !errors.Is(err, errs.ErrNotFound) {
					log.Error("failed to load session", sl.Err(err))
				}
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired session"))
				return
			}
			if session.Expired(time.Now()) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired session"))
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, Email, claims.Email)
			ctx = context.WithValue(ctx, SessionID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// credentialFromRequest prefers the session cookie and falls back to a
// Bearer token for non-browser clients.
func credentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
