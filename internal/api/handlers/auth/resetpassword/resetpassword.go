// Package resetpassword implements the HTTP handler completing a password
// reset with a single-use code.
package resetpassword

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
)

// Request carries the reset-completion input.
type Request struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Handler handles password-reset completion requests.
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
// @Summary Reset password
// @Description Redeems a reset code, stores the new password and revokes all sessions
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Reset code and new password"
// @Success 200 {object} response.OKResponse "Password reset"
// @Failure 400 {object} response.ErrorResponse "Code already used or password rejected"
// @Failure 404 {object} response.ErrorResponse "Unknown code"
// @Failure 410 {object} response.ErrorResponse "Code expired"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Reset failed"
// @Router /password/reset [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.resetpassword"

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

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("unknown reset code"))
		case errors.Is(err, errs.ErrTokenExpired):
			render.Status(r, http.StatusGone)
			render.JSON(w, r, response.Error("reset code expired"))
		case errors.Is(err, errs.ErrTokenUsed), errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("password reset failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to reset password"))
		}
		return
	}

	log.Info("password reset completed")
	render.JSON(w, r, response.OKWithData(map[string]any{"message": "password reset"}))
}
