// Package register implements the HTTP handler creating new accounts.
package register

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

// Request carries the registration input.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	Register(ctx context.Context, email, password string) (string, error)
}

// Handler handles account registration requests.
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
// @Summary Register a new account
// @Description Creates an unverified account and emails a verification code
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "New account credentials"
// @Success 201 {object} response.OKResponse "Account created"
// @Failure 400 {object} response.ErrorResponse "Invalid input"
// @Failure 409 {object} response.ErrorResponse "Email already registered"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Registration failed"
// @Router /register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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

	userUID, err := h.authService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		case errors.Is(err, errs.ErrConflict):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("email is already registered"))
		default:
			log.Error("registration failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to register user"))
		}
		return
	}

	log.Info("register success", slog.String("email", req.Email))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_uid": userUID,
		"message":  "verification email sent",
	}))
}
