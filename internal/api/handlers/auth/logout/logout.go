// Package logout implements the HTTP handler ending a session. The cookie is
// cleared unconditionally; a failed session-row delete still signs the
// browser out.
package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/lib/sl"
)

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	Logout(ctx context.Context, sessionID string) error
}

// Handler handles logout requests.
type Handler struct {
	log         *slog.Logger
	authService AuthService
}

// New creates a new Handler.
func New(log *slog.Logger, authService AuthService) *Handler {
	return &Handler{
		log:         log,
		authService: authService,
	}
}

// ServeHTTP godoc
// @Summary Sign out
// @Description Deletes the session row and clears the session cookie
// @Tags Auth
// @Produce json
// @Success 200 {object} response.OKResponse "Signed out"
// @Security ApiKeyAuth
// @Router /logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	sessionID, _ := r.Context().Value(middlewarectx.SessionID).(string)
	if sessionID != "" {
		if err := h.authService.Logout(r.Context(), sessionID); err != nil {
			// The cookie is still cleared below.
			log.Error("failed to delete session", sl.Err(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	render.JSON(w, r, response.OKWithData(map[string]any{"message": "signed out"}))
}
