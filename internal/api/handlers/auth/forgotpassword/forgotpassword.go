// Package forgotpassword implements the HTTP handler starting a password
// reset. The response is identical whether or not the account exists.
package forgotpassword

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/lib/sl"
)

// Request carries the reset-request input.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	ForgotPassword(ctx context.Context, email string) error
}

// Handler handles password-reset requests.
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
// @Summary Request a password reset
// @Description Emails a reset code when the account exists; always reports success
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Account email"
// @Success 200 {object} response.OKResponse "Reset code sent if the account exists"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Request failed"
// @Router /password/forgot [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.forgotpassword"

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

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		log.Error("failed to start password reset", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to request password reset"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"message": "if the account exists, a reset code was sent",
	}))
}
