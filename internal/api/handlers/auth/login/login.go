// Package login implements the HTTP handler issuing session credentials.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
	services "github.com/giftspark/giftspark/internal/services/auth"
)

// Request carries the login input.
type Request struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// AuthService is the slice of the auth service the handler consumes.
type AuthService interface {
	Login(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error)
}

// Handler handles login requests.
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
// @Summary Sign in
// @Description Verifies credentials and sets the session cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request true "Credentials"
// @Success 200 {object} response.OKResponse "Signed in"
// @Failure 401 {object} response.ErrorResponse "Invalid credentials"
// @Failure 403 {object} response.ErrorResponse "Email not verified"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 423 {object} response.ErrorResponse "Account locked"
// @Failure 500 {object} response.ErrorResponse "Login failed"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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

	result, err := h.authService.Login(r.Context(), req.Email, req.Password,
		req.RememberMe, r.RemoteAddr, r.UserAgent())
	if err != nil {
		h.writeLoginError(w, r, log, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	log.Info("login success", slog.String("user_uid", result.UserUID))
	// The credential travels only in the cookie.
	render.JSON(w, r, response.OKWithData(map[string]any{
		"expires_at": result.ExpiresAt,
	}))
}

// writeLoginError maps the auth-service taxonomy onto status codes. The
// invalid-credentials message never distinguishes a wrong password from an
// unknown account.
func (h *Handler) writeLoginError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var lockedErr *errs.LockedError
	var credsErr *errs.CredentialsError

	switch {
	case errors.As(err, &lockedErr):
		render.Status(r, http.StatusLocked)
		render.JSON(w, r, response.Error(
			fmt.Sprintf("account is locked, try again in %d minutes", lockedErr.Minutes)))
	case errors.As(err, &credsErr):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(
			fmt.Sprintf("invalid email or password, %d attempts remaining", credsErr.AttemptsLeft)))
	case errors.Is(err, errs.ErrInvalidCredentials), errors.Is(err, errs.ErrInvalidInput):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid email or password"))
	case errors.Is(err, errs.ErrEmailNotVerified):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("email is not verified"))
	default:
		log.Error("login failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to sign in"))
	}
}
