// Package verifyemail implements the HTTP handler confirming an email
// address with a single-use code.
package verifyemail

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

// Request carries the verification input.
type Request struct {
	Token string `json:"token" validate:"required"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	VerifyEmail(ctx context.Context, token string) error
}

// Handler handles email-verification requests.
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
// @Summary Confirm email
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Verification code"
// @Success 200 {object} response.OKResponse "Email verified"
// @Failure 400 {object} response.ErrorResponse "Code already used"
// @Failure 404 {object} response.ErrorResponse "Unknown code"
// @Failure 410 {object} response.ErrorResponse "Code expired"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Verification failed"
// @Router /verify/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verifyemail"

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

	if err := h.authService.VerifyEmail(r.Context(), req.Token); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("unknown verification code"))
		case errors.Is(err, errs.ErrTokenExpired):
			render.Status(r, http.StatusGone)
			render.JSON(w, r, response.Error("verification code expired"))
		case errors.Is(err, errs.ErrTokenUsed):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("verification code already used"))
		default:
			log.Error("email verification failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to verify email"))
		}
		return
	}

	log.Info("email verified")
	render.JSON(w, r, response.OKWithData(map[string]any{"message": "email verified"}))
}
