// Package services implements the billing core: idempotent checkout
// creation, the atomic payment-confirmation transaction and the
// subscription lifecycle operations built on top of it.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/idempotency"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/metrics"
	"github.com/giftspark/giftspark/internal/models"
	"github.com/giftspark/giftspark/internal/paymentgateway"
)

// PaymentRepository describes the payment persistence contract.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment models.Payment) (int, error)
	GetPayment(ctx context.Context, id int, userUID string) (*models.Payment, error)
	GetPaymentByGatewayID(ctx context.Context, gatewayID, userUID string) (*models.Payment, error)
	FindPendingPayment(ctx context.Context, userUID string, plan models.Plan, since time.Time) (*models.Payment, error)
	MarkPaymentFailed(ctx context.Context, id int) error
	CompletePaymentTx(ctx context.Context, paymentID int, endDate time.Time, now time.Time) (*models.Subscription, bool, error)
}

// SubscriptionRepository describes the subscription persistence contract.
type SubscriptionRepository interface {
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, bool, error)
	ExpireOverdueSubscriptions(ctx context.Context, now time.Time) ([]string, error)
}

// CouponRepository describes coupon reads; usage counting happens inside the
// confirmation transaction.
type CouponRepository interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// UserRepository provides the receipt recipient lookup.
type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// AuditRepository appends billing audit records.
type AuditRepository interface {
	AppendAuditEvent(ctx context.Context, event models.AuditEvent) error
}

// Entitlements is the slice of the entitlement resolver billing consumes:
// the tier-order check on checkout and cache invalidation after writes.
type Entitlements interface {
	GetEffectivePlan(ctx context.Context, userUID string) (*models.Entitlement, error)
	Invalidate(userUID string)
}

// Notifier publishes fire-and-forget notification messages.
type Notifier interface {
	Publish(routingKey string, message any) error
}

// Payment methods accepted at checkout.
var allowedMethods = map[string]bool{
	"card": true,
	"sbp":  true,
}

const subscriptionTerm = time.Hour * 24 * 30

// BillingService owns the money-touching operations.
type BillingService struct {
	payments     PaymentRepository
	subs         SubscriptionRepository
	coupons      CouponRepository
	users        UserRepository
	audit        AuditRepository
	entitlements Entitlements
	gateway      paymentgateway.Gateway
	notifier     Notifier
	log          *slog.Logger
}

// NewBillingService creates a new BillingService.
func NewBillingService(payments PaymentRepository, subs SubscriptionRepository,
	coupons CouponRepository, users UserRepository, audit AuditRepository,
	entitlements Entitlements, gateway paymentgateway.Gateway,
	notifier Notifier, log *slog.Logger) *BillingService {
	return &BillingService{
		payments:     payments,
		subs:         subs,
		coupons:      coupons,
		users:        users,
		audit:        audit,
		entitlements: entitlements,
		gateway:      gateway,
		notifier:     notifier,
		log:          log,
	}
}

// CheckoutResult identifies the payment a confirmation call must reference.
// Reused is set when an existing pending checkout was returned instead of a
// new one.
type CheckoutResult struct {
	PaymentID int
	GatewayID string
	Plan      models.Plan
	Amount    int64
	Reused    bool
}

// SubscriptionResult is the outcome of a confirmation or cancellation.
// A gateway decline is reported with Success=false, not as an error.
type SubscriptionResult struct {
	Success          bool
	AlreadyProcessed bool
	AlreadyCancelled bool
	Subscription     *models.Subscription
	Message          string
}

// CreateCheckout prepares a gateway intent and a PENDING payment row for a
// plan purchase. Prices come from the static plan table, never from the
// client. A pending payment for the same user and plan from the last hour is
// returned as is, so retries do not pile up duplicate rows.
func (s *BillingService) CreateCheckout(ctx context.Context, userUID string, plan models.Plan, method, couponCode string) (*CheckoutResult, error) {
	const op = "services.CreateCheckout"

	price, purchasable := models.PriceFor(plan)
	if !purchasable {
		return nil, fmt.Errorf("%w: plan is not purchasable", errs.ErrInvalidInput)
	}
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: unknown payment method", errs.ErrInvalidInput)
	}

	ent, err := s.entitlements.GetEffectivePlan(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ent.IsActive && ent.Plan.Rank() >= plan.Rank() {
		return nil, fmt.Errorf("%w: already subscribed to %s", errs.ErrConflict, ent.Plan)
	}

	now := time.Now().UTC()
	pending, err := s.payments.FindPendingPayment(ctx, userUID, plan, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pending != nil {
		s.log.Info("reusing pending checkout",
			slog.Int("payment_id", pending.ID), slog.String("plan", string(plan)))
		return &CheckoutResult{
			PaymentID: pending.ID,
			GatewayID: pending.GatewayID,
			Plan:      pending.TargetPlan,
			Amount:    pending.Amount,
			Reused:    true,
		}, nil
	}

	finalAmount := price
	var couponID *int
	if couponCode != "" {
		coupon, err := s.coupons.GetCouponByCode(ctx, couponCode)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown coupon", errs.ErrInvalidInput)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !coupon.Valid(plan, price, now) {
			return nil, fmt.Errorf("%w: coupon is not applicable", errs.ErrInvalidInput)
		}
		finalAmount = price - coupon.DiscountFor(price)
		if finalAmount < 0 {
			finalAmount = 0
		}
		couponID = &coupon.ID
	}

	intent, err := s.gateway.CreateIntent(ctx, paymentgateway.CreateIntentRequest{
		Amount:        finalAmount,
		Currency:      "RUB",
		PaymentMethod: method,
		Metadata: map[string]string{
			"user_uid": userUID,
			"plan":     string(plan),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payment := models.Payment{
		UserUID:        userUID,
		GatewayID:      intent.ID,
		Amount:         finalAmount,
		Status:         models.PaymentPending,
		TargetPlan:     plan,
		IdempotencyKey: idempotency.Key(userUID, string(plan), now),
		CouponID:       couponID,
	}
	paymentID, err := s.payments.CreatePayment(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created checkout",
		slog.Int("payment_id", paymentID),
		slog.String("plan", string(plan)),
		slog.Int64("amount", finalAmount))
	return &CheckoutResult{
		PaymentID: paymentID,
		GatewayID: intent.ID,
		Plan:      plan,
		Amount:    finalAmount,
	}, nil
}

// ConfirmPayment submits card data to the gateway and, on approval, activates
// the payment's target plan in one transaction. The payment is addressed by
// its numeric id or, when paymentID is zero, by the gateway reference from
// checkout. Confirming an already completed payment is a success with
// AlreadyProcessed set, never a second activation.
func (s *BillingService) ConfirmPayment(ctx context.Context, userUID string, paymentID int, gatewayID string, card paymentgateway.ConfirmRequest) (*SubscriptionResult, error) {
	const op = "services.ConfirmPayment"

	var payment *models.Payment
	var err error
	if paymentID != 0 {
		payment, err = s.payments.GetPayment(ctx, paymentID, userUID)
	} else {
		payment, err = s.payments.GetPaymentByGatewayID(ctx, gatewayID, userUID)
	}
	if err != nil {
		return nil, err
	}

	if payment.Status == models.PaymentCompleted {
		sub, err := s.subs.GetSubscriptionByUser(ctx, userUID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		metrics.PaymentsConfirmed.WithLabelValues("already_processed").Inc()
		return &SubscriptionResult{Success: true, AlreadyProcessed: true, Subscription: sub}, nil
	}
	if payment.Status != models.PaymentPending {
		return nil, fmt.Errorf("%w: payment in status %s", errs.ErrConflict, payment.Status)
	}

	confirm, err := s.gateway.Confirm(ctx, payment.GatewayID, card)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if confirm.Status != paymentgateway.StatusCompleted {
		if err := s.payments.MarkPaymentFailed(ctx, payment.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		metrics.PaymentsConfirmed.WithLabelValues("declined").Inc()
		s.log.Info("payment declined",
			slog.Int("payment_id", payment.ID), slog.String("reason", confirm.Message))
		return &SubscriptionResult{Success: false, Message: confirm.Message}, nil
	}

	now := time.Now().UTC()
	sub, alreadyProcessed, err := s.payments.CompletePaymentTx(ctx, payment.ID, now.Add(subscriptionTerm), now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.entitlements.Invalidate(userUID)
	if alreadyProcessed {
		metrics.PaymentsConfirmed.WithLabelValues("already_processed").Inc()
		return &SubscriptionResult{Success: true, AlreadyProcessed: true, Subscription: sub}, nil
	}
	metrics.PaymentsConfirmed.WithLabelValues("completed").Inc()
	s.log.Info("payment confirmed",
		slog.Int("payment_id", payment.ID), slog.String("plan", string(payment.TargetPlan)))

	s.afterActivation(payment, sub, now)
	return &SubscriptionResult{Success: true, Subscription: sub}, nil
}

// afterActivation runs the post-commit side effects: audit record and receipt
// email. Both run off the critical path, their failures are logged only.
func (s *BillingService) afterActivation(payment *models.Payment, sub *models.Subscription, now time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		event := models.AuditEvent{
			UserUID: payment.UserUID,
			Action:  "subscription_activated",
			Context: map[string]string{
				"plan":       string(payment.TargetPlan),
				"payment_id": fmt.Sprintf("%d", payment.ID),
				"amount":     fmt.Sprintf("%d", payment.Amount),
			},
			At: now,
		}
		if err := s.audit.AppendAuditEvent(ctx, event); err != nil {
			s.log.Error("failed to append audit event", sl.Err(err))
		}
		if err := s.notifier.Publish("audit", event); err != nil {
			s.log.Error("failed to publish audit event", sl.Err(err))
		}

		user, err := s.users.GetUser(ctx, payment.UserUID)
		if err != nil {
			s.log.Error("failed to load receipt recipient", sl.Err(err))
			return
		}
		msg := models.EmailMessage{
			To:   user.Email,
			Kind: models.EmailKindPaymentReceipt,
			Params: map[string]string{
				"plan":       string(payment.TargetPlan),
				"amount":     fmt.Sprintf("%d", payment.Amount),
				"expires_at": sub.EndDate.Format("02-01-2006"),
			},
		}
		if err := s.notifier.Publish("email", msg); err != nil {
			s.log.Error("failed to publish receipt email", sl.Err(err))
		}
	}()
}

// CancelSubscription turns off auto-renew; access continues until the paid
// period ends. Cancelling twice is a success with AlreadyCancelled set.
func (s *BillingService) CancelSubscription(ctx context.Context, userUID string) (*SubscriptionResult, error) {
	sub, alreadyCancelled, err := s.subs.CancelSubscription(ctx, userUID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.entitlements.Invalidate(userUID)
	if !alreadyCancelled {
		s.log.Info("subscription cancelled", slog.String("user_uid", userUID))
	}
	return &SubscriptionResult{
		Success:          true,
		AlreadyCancelled: alreadyCancelled,
		Subscription:     sub,
	}, nil
}

// ExpireOverdueSubscriptions flips overdue ACTIVE subscriptions to EXPIRED and
// returns how many rows it transitioned. The sweeper binary calls it hourly.
func (s *BillingService) ExpireOverdueSubscriptions(ctx context.Context) (int, error) {
	const op = "services.ExpireOverdueSubscriptions"

	userUIDs, err := s.subs.ExpireOverdueSubscriptions(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	// Swept users must not keep answering from a cached active entitlement.
	for _, uid := range userUIDs {
		s.entitlements.Invalidate(uid)
	}
	count := len(userUIDs)
	metrics.SubscriptionsExpired.Add(float64(count))
	if count > 0 {
		s.log.Info("expired overdue subscriptions", slog.Int("count", count))
	}
	return count, nil
}
