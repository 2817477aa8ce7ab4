// Package resendverification implements the HTTP handler reissuing a
// verification code for an unverified account.
package resendverification

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

// Request carries the resend input.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	ResendVerification(ctx context.Context, email string) error
}

// Handler handles verification-resend requests.
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
// @Summary Resend the verification email
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Account email"
// @Success 200 {object} response.OKResponse "Verification email sent"
// @Failure 404 {object} response.ErrorResponse "Unknown account"
// @Failure 409 {object} response.ErrorResponse "Already verified"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Resend failed"
// @Router /verify/resend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.resendverification"

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

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("account not found"))
		case errors.Is(err, errs.ErrAlreadyVerified):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("email is already verified"))
		default:
			log.Error("failed to resend verification", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to resend verification email"))
		}
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"message": "verification email sent"}))
}
