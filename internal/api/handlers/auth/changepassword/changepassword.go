// Package changepassword implements the HTTP handler changing the password of
// a signed-in user. All other sessions are revoked on success.
package changepassword

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
)

// Request carries the password-change input.
type Request struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	ChangePassword(ctx context.Context, userUID, currentPassword, newPassword, currentSessionID string) error
}

// Handler handles password-change requests.
type Handler struct {
	log         *slog.Logger
	authService AuthService
	validate    *validator.Validate
}

// New creates a new Handler.
func New(log *slog.Logger, authService AuthService) *Handler {
	return &Handler{
		log:         log,
		authService: authService,
		validate:    validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Change password
// @Description Verifies the current password, stores the new one and revokes other sessions
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Current and new password"
// @Success 200 {object} response.OKResponse "Password changed"
// @Failure 400 {object} response.ErrorResponse "New password rejected"
// @Failure 401 {object} response.ErrorResponse "Current password wrong"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Change failed"
// @Security ApiKeyAuth
// @Router /password/change [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.changepassword"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)
	sessionID, _ := r.Context().Value(middlewarectx.SessionID).(string)

	err := h.authService.ChangePassword(r.Context(), userUID, req.CurrentPassword, req.NewPassword, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidCredentials):
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error("current password is wrong"))
		case errors.Is(err, errs.ErrSamePassword), errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("password change failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to change password"))
		}
		return
	}

	log.Info("password changed", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OKWithData(map[string]any{"message": "password changed"}))
}
