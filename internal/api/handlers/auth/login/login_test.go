package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/errs"
	services "github.com/giftspark/giftspark/internal/services/auth"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) Login(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error) {
	args := m.Called(ctx, email, password, rememberMe, ip, userAgent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LoginResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestLoginHandler_ServeHTTP(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour).UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockResult     *services.LoginResult
		mockErr        error
		wantStatusCode int
		wantStatus     string
		wantError      string
		wantCookie     bool
	}{
		{
			name:        "valid login sets the session cookie",
			requestBody: Request{Email: "user@example.com", Password: "password123"},
			mockResult: &services.LoginResult{
				Token:     "signed-token",
				SessionID: "session-1",
				UserUID:   "uid-1",
				ExpiresAt: expiresAt,
			},
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
			wantCookie:     true,
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantStatus:     "Error",
			wantError:      "invalid request body",
		},
		{
			name:           "missing password",
			requestBody:    Request{Email: "user@example.com"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantStatus:     "Error",
			wantError:      "field Password is a required field",
		},
		{
			name:           "wrong password reports remaining attempts",
			requestBody:    Request{Email: "user@example.com", Password: "wrongpass1"},
			mockErr:        &errs.CredentialsError{AttemptsLeft: 2},
			wantStatusCode: http.StatusUnauthorized,
			wantStatus:     "Error",
			wantError:      "invalid email or password, 2 attempts remaining",
		},
		{
			name:           "unknown account gets the generic message",
			requestBody:    Request{Email: "ghost@example.com", Password: "password123"},
			mockErr:        errs.ErrInvalidCredentials,
			wantStatusCode: http.StatusUnauthorized,
			wantStatus:     "Error",
			wantError:      "invalid email or password",
		},
		{
			name:           "locked account",
			requestBody:    Request{Email: "user@example.com", Password: "password123"},
			mockErr:        &errs.LockedError{Minutes: 15},
			wantStatusCode: http.StatusLocked,
			wantStatus:     "Error",
			wantError:      "account is locked, try again in 15 minutes",
		},
		{
			name:           "unverified email",
			requestBody:    Request{Email: "user@example.com", Password: "password123"},
			mockErr:        errs.ErrEmailNotVerified,
			wantStatusCode: http.StatusForbidden,
			wantStatus:     "Error",
			wantError:      "email is not verified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authMock := new(AuthServiceMock)
			if tt.mockResult != nil || tt.mockErr != nil {
				reqBody := tt.requestBody.(Request)
				authMock.On("Login", mock.Anything, reqBody.Email, reqBody.Password,
					reqBody.RememberMe, mock.Anything, mock.Anything).
					Return(tt.mockResult, tt.mockErr).Once()
			}
			handler := New(newNoopLogger(), authMock)

			var bodyBytes []byte
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				var err error
				bodyBytes, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			body := rec.Body.String()
			var got map[string]any
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			assert.Equal(t, tt.wantStatus, got["status"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			}

			if tt.wantCookie {
				var sessionCookie *http.Cookie
				for _, c := range rec.Result().Cookies() {
					if c.Name == middlewarectx.SessionCookie {
						sessionCookie = c
					}
				}
				require.NotNil(t, sessionCookie)
				assert.Equal(t, "signed-token", sessionCookie.Value)
				assert.True(t, sessionCookie.HttpOnly)

				// The credential lives in the cookie only.
				assert.NotContains(t, body, "signed-token")
				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				assert.NotContains(t, data, "token")
				assert.Contains(t, data, "expires_at")
			}

			authMock.AssertExpectations(t)
		})
	}
}
