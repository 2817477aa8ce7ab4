package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
	"github.com/giftspark/giftspark/internal/paymentgateway"
	services "github.com/giftspark/giftspark/internal/services/billing"
)

type PaymentRepoMock struct {
	mock.Mock
}

func (m *PaymentRepoMock) CreatePayment(ctx context.Context, payment models.Payment) (int, error) {
	args := m.Called(ctx, payment)
	return args.Int(0), args.Error(1)
}

func (m *PaymentRepoMock) GetPayment(ctx context.Context, id int, userUID string) (*models.Payment, error) {
	args := m.Called(ctx, id, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *PaymentRepoMock) GetPaymentByGatewayID(ctx context.Context, gatewayID, userUID string) (*models.Payment, error) {
	args := m.Called(ctx, gatewayID, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *PaymentRepoMock) FindPendingPayment(ctx context.Context, userUID string, plan models.Plan, since time.Time) (*models.Payment, error) {
	args := m.Called(ctx, userUID, plan, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *PaymentRepoMock) MarkPaymentFailed(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *PaymentRepoMock) CompletePaymentTx(ctx context.Context, paymentID int, endDate time.Time, now time.Time) (*models.Subscription, bool, error) {
	args := m.Called(ctx, paymentID, endDate, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

type SubscriptionRepoMock struct {
	mock.Mock
}

func (m *SubscriptionRepoMock) GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *SubscriptionRepoMock) CancelSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, bool, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

func (m *SubscriptionRepoMock) ExpireOverdueSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type CouponRepoMock struct {
	mock.Mock
}

func (m *CouponRepoMock) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) CreateIntent(ctx context.Context, req paymentgateway.CreateIntentRequest) (*paymentgateway.CreateIntentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentgateway.CreateIntentResponse), args.Error(1)
}

func (m *GatewayMock) Confirm(ctx context.Context, intentID string, req paymentgateway.ConfirmRequest) (*paymentgateway.ConfirmResponse, error) {
	args := m.Called(ctx, intentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentgateway.ConfirmResponse), args.Error(1)
}

// entitlementsStub answers the tier-order check with a fixed entitlement and
// counts invalidations; Invalidate is called synchronously, so a plain
// counter is safe.
type entitlementsStub struct {
	ent         *models.Entitlement
	invalidated int
}

func (s *entitlementsStub) GetEffectivePlan(context.Context, string) (*models.Entitlement, error) {
	return s.ent, nil
}

func (s *entitlementsStub) Invalidate(string) { s.invalidated++ }

// The post-activation side effects run on a goroutine; plain no-op stubs keep
// the tests race-free.
type userRepoStub struct{}

func (userRepoStub) GetUser(context.Context, string) (*models.User, error) {
	return &models.User{UID: "uid-1", Email: "user@example.com"}, nil
}

type auditRepoStub struct{}

func (auditRepoStub) AppendAuditEvent(context.Context, models.AuditEvent) error { return nil }

type notifierStub struct{}

func (notifierStub) Publish(string, any) error { return nil }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func freeTier() *models.Entitlement {
	return &models.Entitlement{
		Plan:     models.PlanStart,
		IsActive: false,
		Limits:   models.LimitsFor(models.PlanStart),
		Reason:   models.ReasonNoSubscription,
	}
}

func newBilling(payments *PaymentRepoMock, subs *SubscriptionRepoMock, coupons *CouponRepoMock,
	ents *entitlementsStub, gateway *GatewayMock) *services.BillingService {
	return services.NewBillingService(payments, subs, coupons, userRepoStub{}, auditRepoStub{},
		ents, gateway, notifierStub{}, newNoopLogger())
}

func TestBillingService_CreateCheckout(t *testing.T) {
	validCoupon := func(typ models.DiscountType, value int64) *models.Coupon {
		return &models.Coupon{
			ID:            7,
			Code:          "WELCOME",
			DiscountType:  typ,
			DiscountValue: value,
			ValidFrom:     time.Now().Add(-time.Hour),
			ValidUntil:    time.Now().Add(time.Hour),
			Active:        true,
		}
	}

	tests := []struct {
		name       string
		plan       models.Plan
		method     string
		coupon     string
		ent        *models.Entitlement
		setupMocks func(p *PaymentRepoMock, c *CouponRepoMock, g *GatewayMock)
		wantErr    error
		wantAmount int64
		wantReused bool
	}{
		{
			name:       "free tier is not purchasable",
			plan:       models.PlanStart,
			method:     "card",
			ent:        freeTier(),
			setupMocks: func(*PaymentRepoMock, *CouponRepoMock, *GatewayMock) {},
			wantErr:    errs.ErrInvalidInput,
		},
		{
			name:       "unknown payment method",
			plan:       models.PlanPremium,
			method:     "crypto",
			ent:        freeTier(),
			setupMocks: func(*PaymentRepoMock, *CouponRepoMock, *GatewayMock) {},
			wantErr:    errs.ErrInvalidInput,
		},
		{
			name:   "active subscription of the same tier refuses checkout",
			plan:   models.PlanPremium,
			method: "card",
			ent: &models.Entitlement{
				Plan:     models.PlanPremium,
				IsActive: true,
				Limits:   models.LimitsFor(models.PlanPremium),
			},
			setupMocks: func(*PaymentRepoMock, *CouponRepoMock, *GatewayMock) {},
			wantErr:    errs.ErrConflict,
		},
		{
			name:   "active subscriber may upgrade",
			plan:   models.PlanEternal,
			method: "card",
			ent: &models.Entitlement{
				Plan:     models.PlanPremium,
				IsActive: true,
				Limits:   models.LimitsFor(models.PlanPremium),
			},
			setupMocks: func(p *PaymentRepoMock, _ *CouponRepoMock, g *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanEternal, mock.Anything).
					Return(nil, nil).Once()
				g.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req paymentgateway.CreateIntentRequest) bool {
					return req.Amount == 9990 && req.Currency == "RUB"
				})).Return(&paymentgateway.CreateIntentResponse{ID: "pi_1", Status: paymentgateway.StatusPending}, nil).Once()
				p.On("CreatePayment", mock.Anything, mock.MatchedBy(func(pay models.Payment) bool {
					return pay.TargetPlan == models.PlanEternal && pay.IdempotencyKey != ""
				})).Return(42, nil).Once()
			},
			wantAmount: 9990,
		},
		{
			name:   "pending checkout is reused",
			plan:   models.PlanPremium,
			method: "card",
			ent:    freeTier(),
			setupMocks: func(p *PaymentRepoMock, _ *CouponRepoMock, _ *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanPremium, mock.Anything).
					Return(&models.Payment{
						ID:         11,
						GatewayID:  "pi_old",
						Amount:     2990,
						Status:     models.PaymentPending,
						TargetPlan: models.PlanPremium,
					}, nil).Once()
			},
			wantAmount: 2990,
			wantReused: true,
		},
		{
			name:   "percentage coupon",
			plan:   models.PlanPremium,
			method: "card",
			coupon: "WELCOME",
			ent:    freeTier(),
			setupMocks: func(p *PaymentRepoMock, c *CouponRepoMock, g *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanPremium, mock.Anything).
					Return(nil, nil).Once()
				c.On("GetCouponByCode", mock.Anything, "WELCOME").
					Return(validCoupon(models.DiscountPercentage, 20), nil).Once()
				g.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req paymentgateway.CreateIntentRequest) bool {
					return req.Amount == 2392
				})).Return(&paymentgateway.CreateIntentResponse{ID: "pi_2"}, nil).Once()
				p.On("CreatePayment", mock.Anything, mock.MatchedBy(func(pay models.Payment) bool {
					return pay.Amount == 2392 && pay.CouponID != nil && *pay.CouponID == 7
				})).Return(43, nil).Once()
			},
			wantAmount: 2392,
		},
		{
			name:   "fixed coupon larger than the price clamps at zero",
			plan:   models.PlanPremium,
			method: "card",
			coupon: "WELCOME",
			ent:    freeTier(),
			setupMocks: func(p *PaymentRepoMock, c *CouponRepoMock, g *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanPremium, mock.Anything).
					Return(nil, nil).Once()
				c.On("GetCouponByCode", mock.Anything, "WELCOME").
					Return(validCoupon(models.DiscountFixed, 5000), nil).Once()
				g.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req paymentgateway.CreateIntentRequest) bool {
					return req.Amount == 0
				})).Return(&paymentgateway.CreateIntentResponse{ID: "pi_3"}, nil).Once()
				p.On("CreatePayment", mock.Anything, mock.Anything).Return(44, nil).Once()
			},
			wantAmount: 0,
		},
		{
			name:   "unknown coupon",
			plan:   models.PlanPremium,
			method: "card",
			coupon: "NOPE",
			ent:    freeTier(),
			setupMocks: func(p *PaymentRepoMock, c *CouponRepoMock, _ *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanPremium, mock.Anything).
					Return(nil, nil).Once()
				c.On("GetCouponByCode", mock.Anything, "NOPE").
					Return(nil, errs.ErrNotFound).Once()
			},
			wantErr: errs.ErrInvalidInput,
		},
		{
			name:   "inactive coupon",
			plan:   models.PlanPremium,
			method: "card",
			coupon: "WELCOME",
			ent:    freeTier(),
			setupMocks: func(p *PaymentRepoMock, c *CouponRepoMock, _ *GatewayMock) {
				p.On("FindPendingPayment", mock.Anything, "uid-1", models.PlanPremium, mock.Anything).
					Return(nil, nil).Once()
				coupon := validCoupon(models.DiscountPercentage, 20)
				coupon.Active = false
				c.On("GetCouponByCode", mock.Anything, "WELCOME").Return(coupon, nil).Once()
			},
			wantErr: errs.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := new(PaymentRepoMock)
			subs := new(SubscriptionRepoMock)
			coupons := new(CouponRepoMock)
			gateway := new(GatewayMock)
			tt.setupMocks(payments, coupons, gateway)

			svc := newBilling(payments, subs, coupons, &entitlementsStub{ent: tt.ent}, gateway)
			result, err := svc.CreateCheckout(context.Background(), "uid-1", tt.plan, tt.method, tt.coupon)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAmount, result.Amount)
				assert.Equal(t, tt.wantReused, result.Reused)
			}
			payments.AssertExpectations(t)
			coupons.AssertExpectations(t)
			gateway.AssertExpectations(t)
		})
	}
}

func TestBillingService_ConfirmPayment(t *testing.T) {
	pendingPayment := func() *models.Payment {
		return &models.Payment{
			ID:         11,
			UserUID:    "uid-1",
			GatewayID:  "pi_1",
			Amount:     2990,
			Status:     models.PaymentPending,
			TargetPlan: models.PlanPremium,
		}
	}
	activatedSub := &models.Subscription{
		ID:      3,
		UserUID: "uid-1",
		Plan:    models.PlanPremium,
		Status:  models.SubscriptionActive,
		EndDate: time.Now().Add(30 * 24 * time.Hour),
	}
	card := paymentgateway.ConfirmRequest{CardNumber: "4242424242424242", CardExpiry: "12/27", CardCVC: "123"}

	t.Run("successful confirmation activates the plan", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		gateway := new(GatewayMock)
		ents := &entitlementsStub{ent: freeTier()}

		payments.On("GetPayment", mock.Anything, 11, "uid-1").Return(pendingPayment(), nil).Once()
		gateway.On("Confirm", mock.Anything, "pi_1", card).
			Return(&paymentgateway.ConfirmResponse{ID: "pi_1", Status: paymentgateway.StatusCompleted}, nil).Once()
		payments.On("CompletePaymentTx", mock.Anything, 11, mock.Anything, mock.Anything).
			Return(activatedSub, false, nil).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock), ents, gateway)
		result, err := svc.ConfirmPayment(context.Background(), "uid-1", 11, "", card)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.AlreadyProcessed)
		assert.Equal(t, models.PlanPremium, result.Subscription.Plan)
		assert.Equal(t, 1, ents.invalidated)
		payments.AssertExpectations(t)
		gateway.AssertExpectations(t)
	})

	t.Run("already completed payment is not charged again", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		subs := new(SubscriptionRepoMock)
		gateway := new(GatewayMock)

		completed := pendingPayment()
		completed.Status = models.PaymentCompleted
		payments.On("GetPayment", mock.Anything, 11, "uid-1").Return(completed, nil).Once()
		subs.On("GetSubscriptionByUser", mock.Anything, "uid-1").Return(activatedSub, nil).Once()

		svc := newBilling(payments, subs, new(CouponRepoMock), &entitlementsStub{ent: freeTier()}, gateway)
		result, err := svc.ConfirmPayment(context.Background(), "uid-1", 11, "", card)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.AlreadyProcessed)
		gateway.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed payment refuses confirmation", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		failed := pendingPayment()
		failed.Status = models.PaymentFailed
		payments.On("GetPayment", mock.Anything, 11, "uid-1").Return(failed, nil).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock),
			&entitlementsStub{ent: freeTier()}, new(GatewayMock))
		_, err := svc.ConfirmPayment(context.Background(), "uid-1", 11, "", card)

		assert.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("gateway decline is an outcome, not an error", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		gateway := new(GatewayMock)

		payments.On("GetPayment", mock.Anything, 11, "uid-1").Return(pendingPayment(), nil).Once()
		gateway.On("Confirm", mock.Anything, "pi_1", card).
			Return(&paymentgateway.ConfirmResponse{ID: "pi_1", Status: paymentgateway.StatusFailed, Message: "insufficient funds"}, nil).Once()
		payments.On("MarkPaymentFailed", mock.Anything, 11).Return(nil).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock),
			&entitlementsStub{ent: freeTier()}, gateway)
		result, err := svc.ConfirmPayment(context.Background(), "uid-1", 11, "", card)

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "insufficient funds", result.Message)
		payments.AssertExpectations(t)
	})

	t.Run("concurrent confirmation loses the race gracefully", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		gateway := new(GatewayMock)
		ents := &entitlementsStub{ent: freeTier()}

		payments.On("GetPayment", mock.Anything, 11, "uid-1").Return(pendingPayment(), nil).Once()
		gateway.On("Confirm", mock.Anything, "pi_1", card).
			Return(&paymentgateway.ConfirmResponse{ID: "pi_1", Status: paymentgateway.StatusCompleted}, nil).Once()
		payments.On("CompletePaymentTx", mock.Anything, 11, mock.Anything, mock.Anything).
			Return(activatedSub, true, nil).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock), ents, gateway)
		result, err := svc.ConfirmPayment(context.Background(), "uid-1", 11, "", card)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.AlreadyProcessed)
	})

	t.Run("confirmation by gateway reference", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		gateway := new(GatewayMock)
		ents := &entitlementsStub{ent: freeTier()}

		payments.On("GetPaymentByGatewayID", mock.Anything, "pi_1", "uid-1").
			Return(pendingPayment(), nil).Once()
		gateway.On("Confirm", mock.Anything, "pi_1", card).
			Return(&paymentgateway.ConfirmResponse{ID: "pi_1", Status: paymentgateway.StatusCompleted}, nil).Once()
		payments.On("CompletePaymentTx", mock.Anything, 11, mock.Anything, mock.Anything).
			Return(activatedSub, false, nil).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock), ents, gateway)
		result, err := svc.ConfirmPayment(context.Background(), "uid-1", 0, "pi_1", card)

		require.NoError(t, err)
		assert.True(t, result.Success)
		payments.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything, mock.Anything)
		payments.AssertExpectations(t)
	})

	t.Run("unknown payment", func(t *testing.T) {
		payments := new(PaymentRepoMock)
		payments.On("GetPayment", mock.Anything, 99, "uid-1").Return(nil, errs.ErrNotFound).Once()

		svc := newBilling(payments, new(SubscriptionRepoMock), new(CouponRepoMock),
			&entitlementsStub{ent: freeTier()}, new(GatewayMock))
		_, err := svc.ConfirmPayment(context.Background(), "uid-1", 99, "", card)

		assert.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestBillingService_CancelSubscription(t *testing.T) {
	sub := &models.Subscription{
		ID:      3,
		UserUID: "uid-1",
		Plan:    models.PlanPremium,
		Status:  models.SubscriptionActive,
		EndDate: time.Now().Add(10 * 24 * time.Hour),
	}

	t.Run("first cancellation", func(t *testing.T) {
		subs := new(SubscriptionRepoMock)
		ents := &entitlementsStub{ent: freeTier()}
		subs.On("CancelSubscription", mock.Anything, "uid-1", mock.Anything).
			Return(sub, false, nil).Once()

		svc := newBilling(new(PaymentRepoMock), subs, new(CouponRepoMock), ents, new(GatewayMock))
		result, err := svc.CancelSubscription(context.Background(), "uid-1")

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.AlreadyCancelled)
		assert.Equal(t, 1, ents.invalidated)
	})

	t.Run("second cancellation is a no-op success", func(t *testing.T) {
		subs := new(SubscriptionRepoMock)
		subs.On("CancelSubscription", mock.Anything, "uid-1", mock.Anything).
			Return(sub, true, nil).Once()

		svc := newBilling(new(PaymentRepoMock), subs, new(CouponRepoMock),
			&entitlementsStub{ent: freeTier()}, new(GatewayMock))
		result, err := svc.CancelSubscription(context.Background(), "uid-1")

		require.NoError(t, err)
		assert.True(t, result.AlreadyCancelled)
	})

	t.Run("no subscription to cancel", func(t *testing.T) {
		subs := new(SubscriptionRepoMock)
		subs.On("CancelSubscription", mock.Anything, "uid-1", mock.Anything).
			Return(nil, false, errs.ErrNotFound).Once()

		svc := newBilling(new(PaymentRepoMock), subs, new(CouponRepoMock),
			&entitlementsStub{ent: freeTier()}, new(GatewayMock))
		_, err := svc.CancelSubscription(context.Background(), "uid-1")

		assert.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestBillingService_ExpireOverdueSubscriptions(t *testing.T) {
	subs := new(SubscriptionRepoMock)
	subs.On("ExpireOverdueSubscriptions", mock.Anything, mock.Anything).
		Return([]string{"uid-1", "uid-2", "uid-3", "uid-4"}, nil).Once()

	ents := &entitlementsStub{ent: freeTier()}
	svc := newBilling(new(PaymentRepoMock), subs, new(CouponRepoMock),
		ents, new(GatewayMock))
	count, err := svc.ExpireOverdueSubscriptions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, count)
	// Each swept user loses its cached entitlement.
	assert.Equal(t, 4, ents.invalidated)
	subs.AssertExpectations(t)
}

func TestBillingService_ExpireOverdueSubscriptions_Error(t *testing.T) {
	subs := new(SubscriptionRepoMock)
	subs.On("ExpireOverdueSubscriptions", mock.Anything, mock.Anything).
		Return(nil, errors.New("deadlock detected")).Once()

	svc := newBilling(new(PaymentRepoMock), subs, new(CouponRepoMock),
		&entitlementsStub{ent: freeTier()}, new(GatewayMock))
	_, err := svc.ExpireOverdueSubscriptions(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
}
