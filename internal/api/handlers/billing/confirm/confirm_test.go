package confirm

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
	"github.com/giftspark/giftspark/internal/models"
	"github.com/giftspark/giftspark/internal/paymentgateway"
	services "github.com/giftspark/giftspark/internal/services/billing"
)

type BillingServiceMock struct {
	mock.Mock
}

func (m *BillingServiceMock) ConfirmPayment(ctx context.Context, userUID string, paymentID int, gatewayID string, card paymentgateway.ConfirmRequest) (*services.SubscriptionResult, error) {
	args := m.Called(ctx, userUID, paymentID, gatewayID, card)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubscriptionResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestConfirmHandler_ServeHTTP(t *testing.T) {
	validBody := Request{
		PaymentID:  11,
		CardNumber: "4242424242424242",
		CardExpiry: "12/27",
		CardCVC:    "123",
	}
	activatedSub := &models.Subscription{
		Plan:    models.PlanPremium,
		Status:  models.SubscriptionActive,
		EndDate: time.Now().Add(30 * 24 * time.Hour),
	}

	tests := []struct {
		name           string
		requestBody    Request
		mockResult     *services.SubscriptionResult
		mockErr        error
		callService    bool
		wantStatusCode int
		wantError      string
		check          func(t *testing.T, data map[string]any)
	}{
		{
			name:           "payment confirmed",
			requestBody:    validBody,
			mockResult:     &services.SubscriptionResult{Success: true, Subscription: activatedSub},
			callService:    true,
			wantStatusCode: http.StatusOK,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, true, data["success"])
				assert.Equal(t, "PREMIUM", data["plan"])
				assert.NotEmpty(t, data["expires_at"])
			},
		},
		{
			name:        "repeated confirmation",
			requestBody: validBody,
			mockResult: &services.SubscriptionResult{
				Success: true, AlreadyProcessed: true, Subscription: activatedSub,
			},
			callService:    true,
			wantStatusCode: http.StatusOK,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, true, data["success"])
				assert.Equal(t, true, data["already_processed"])
			},
		},
		{
			name:        "gateway decline is reported as an outcome",
			requestBody: validBody,
			mockResult: &services.SubscriptionResult{
				Success: false, Message: "insufficient funds",
			},
			callService:    true,
			wantStatusCode: http.StatusOK,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, false, data["success"])
				assert.Equal(t, "insufficient funds", data["message"])
			},
		},
		{
			name:           "payment addressed by gateway id",
			requestBody:    Request{GatewayID: "gw_7f3a", CardNumber: "4242424242424242", CardExpiry: "12/27", CardCVC: "123"},
			mockResult:     &services.SubscriptionResult{Success: true, Subscription: activatedSub},
			callService:    true,
			wantStatusCode: http.StatusOK,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, true, data["success"])
				assert.Equal(t, "PREMIUM", data["plan"])
			},
		},
		{
			name:           "non-numeric card number",
			requestBody:    Request{PaymentID: 11, CardNumber: "4242-4242", CardExpiry: "12/27", CardCVC: "123"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field CardNumber is not a valid",
		},
		{
			name:           "neither payment id nor gateway id",
			requestBody:    Request{CardNumber: "4242424242424242", CardExpiry: "12/27", CardCVC: "123"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "either payment_id or gateway_id is required",
		},
		{
			name:           "unknown payment",
			requestBody:    validBody,
			mockErr:        errs.ErrNotFound,
			callService:    true,
			wantStatusCode: http.StatusNotFound,
			wantError:      "payment not found",
		},
		{
			name:           "payment in a terminal state",
			requestBody:    validBody,
			mockErr:        errs.ErrConflict,
			callService:    true,
			wantStatusCode: http.StatusConflict,
			wantError:      errs.ErrConflict.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billingMock := new(BillingServiceMock)
			if tt.callService {
				billingMock.On("ConfirmPayment", mock.Anything, "uid-1", tt.requestBody.PaymentID,
					tt.requestBody.GatewayID,
					paymentgateway.ConfirmRequest{
						CardNumber: tt.requestBody.CardNumber,
						CardExpiry: tt.requestBody.CardExpiry,
						CardCVC:    tt.requestBody.CardCVC,
					}).Return(tt.mockResult, tt.mockErr).Once()
			}
			handler := New(newNoopLogger(), billingMock)

			bodyBytes, err := json.Marshal(tt.requestBody)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/checkout/confirm", bytes.NewReader(bodyBytes))
			ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123")
			ctx = context.WithValue(ctx, middlewarectx.UserUID, "uid-1")
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			if tt.wantError != "" {
				assert.Equal(t, "Error", got["status"])
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				assert.Equal(t, "OK", got["status"])
				data, ok := got["data"].(map[string]any)
				require.True(t, ok)
				tt.check(t, data)
			}

			billingMock.AssertExpectations(t)
		})
	}
}
