package middlewarectx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/jwt"
	"github.com/giftspark/giftspark/internal/models"
)

type SessionReaderMock struct {
	mock.Mock
}

func (m *SessionReaderMock) GetSession(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestSessionMiddleware(t *testing.T) {
	maker := jwt.NewMaker("test-secret")
	signed, err := maker.GenerateToken("uid-1", "user@example.com", "session-1", time.Hour)
	require.NoError(t, err)

	liveSession := &models.Session{
		ID:        "session-1",
		UserUID:   "uid-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	newHandler := func(captured *map[Key]any) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*captured = map[Key]any{
				UserUID:   r.Context().Value(UserUID),
				Email:     r.Context().Value(Email),
				SessionID: r.Context().Value(SessionID),
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("valid cookie credential passes through", func(t *testing.T) {
		sessions := new(SessionReaderMock)
		sessions.On("GetSession", mock.Anything, "session-1").Return(liveSession, nil).Once()

		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, sessions)(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signed})
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "uid-1", captured[UserUID])
		assert.Equal(t, "user@example.com", captured[Email])
		assert.Equal(t, "session-1", captured[SessionID])
		sessions.AssertExpectations(t)
	})

	t.Run("bearer header works for non-browser clients", func(t *testing.T) {
		sessions := new(SessionReaderMock)
		sessions.On("GetSession", mock.Anything, "session-1").Return(liveSession, nil).Once()

		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, sessions)(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "uid-1", captured[UserUID])
	})

	t.Run("missing credential", func(t *testing.T) {
		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, new(SessionReaderMock))(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var got map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "authentication required", got["error"])
		assert.Nil(t, captured)
	})

	t.Run("tampered credential", func(t *testing.T) {
		forged, err := jwt.NewMaker("other-secret").GenerateToken("uid-1", "user@example.com", "session-1", time.Hour)
		require.NoError(t, err)

		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, new(SessionReaderMock))(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: forged})
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, captured)
	})

	t.Run("revoked session rejects a valid signature", func(t *testing.T) {
		sessions := new(SessionReaderMock)
		sessions.On("GetSession", mock.Anything, "session-1").Return(nil, errs.ErrNotFound).Once()

		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, sessions)(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signed})
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, captured)
	})

	t.Run("expired session row", func(t *testing.T) {
		sessions := new(SessionReaderMock)
		sessions.On("GetSession", mock.Anything, "session-1").Return(&models.Session{
			ID:        "session-1",
			UserUID:   "uid-1",
			ExpiresAt: time.Now().Add(-time.Minute),
		}, nil).Once()

		var captured map[Key]any
		mw := SessionMiddleware(newNoopLogger(), maker, sessions)(newHandler(&captured))

		req := httptest.NewRequest(http.MethodGet, "/plan", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: signed})
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, captured)
	})
}
