package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

const paymentColumns = `id, user_uid, gateway_id, amount, status, target_plan,
			      idempotency_key, coupon_id, subscription_id, created_at`

func scanPayment(scan func(dest ...any) error) (*models.Payment, error) {
	var p models.Payment
	var couponID, subscriptionID sql.NullInt64
	if err := scan(&p.ID, &p.UserUID, &p.GatewayID, &p.Amount, &p.Status,
		&p.TargetPlan, &p.IdempotencyKey, &couponID, &subscriptionID, &p.CreatedAt); err != nil {
		return nil, err
	}
	if couponID.Valid {
		id := int(couponID.Int64)
		p.CouponID = &id
	}
	if subscriptionID.Valid {
		id := int(subscriptionID.Int64)
		p.SubscriptionID = &id
	}
	return &p, nil
}

// CreatePayment inserts a PENDING payment row and returns its id.
// target_plan is written here and never updated afterwards.
func (s *Storage) CreatePayment(ctx context.Context, payment models.Payment) (int, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var couponID sql.NullInt64
	if payment.CouponID != nil {
		couponID = sql.NullInt64{Int64: int64(*payment.CouponID), Valid: true}
	}
	query := `INSERT INTO payments (user_uid, gateway_id, amount, status, target_plan,
			      idempotency_key, coupon_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		payment.UserUID, payment.GatewayID, payment.Amount, payment.Status,
		payment.TargetPlan, payment.IdempotencyKey, couponID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetPayment returns a payment scoped to its owner. A payment belonging to a
// different user is reported as not found.
func (s *Storage) GetPayment(ctx context.Context, id int, userUID string) (*models.Payment, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE id = $1 AND user_uid = $2`
	row := s.DB.QueryRowContext(ctx, query, id, userUID)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPaymentByGatewayID returns a payment by its gateway reference, scoped to
// its owner.
func (s *Storage) GetPaymentByGatewayID(ctx context.Context, gatewayID, userUID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByGatewayID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE gateway_id = $1 AND user_uid = $2`
	row := s.DB.QueryRowContext(ctx, query, gatewayID, userUID)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FindPendingPayment returns the most recent PENDING payment of a user for a
// plan created after since, or nil when none exists. Checkout reuses it
// instead of creating a duplicate.
func (s *Storage) FindPendingPayment(ctx context.Context, userUID string, plan models.Plan, since time.Time) (*models.Payment, error) {
	const op = "storage.FindPendingPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE user_uid = $1 AND target_plan = $2 AND status = $3 AND created_at > $4
			  ORDER BY created_at DESC
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, userUID, plan, models.PaymentPending, since)
	p, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// MarkPaymentFailed records a gateway decline.
func (s *Storage) MarkPaymentFailed(ctx context.Context, id int) error {
	const op = "storage.MarkPaymentFailed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments SET status = $1 WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, models.PaymentFailed, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CompletePaymentTx runs the full payment-confirmation state transition in one
// transaction: payment COMPLETED, coupon usage incremented, subscription
// upserted to the payment's target plan, user plan synced, payment linked to
// the subscription. The payment row is locked first; if a concurrent confirm
// already completed it, the transaction is abandoned and alreadyProcessed is
// returned instead of a second activation.
func (s *Storage) CompletePaymentTx(ctx context.Context, paymentID int, endDate time.Time, now time.Time) (*models.Subscription, bool, error) {
	const op = "storage.CompletePaymentTx"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = $1
		 FOR UPDATE`, paymentID)
	payment, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, errs.ErrNotFound
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if payment.Status == models.PaymentCompleted {
		sub, err := s.GetSubscriptionByUser(ctx, payment.UserUID)
		if err != nil {
			return nil, false, err
		}
		return sub, true, nil
	}
	if payment.Status != models.PaymentPending {
		return nil, false, fmt.Errorf("%s: payment in status %s: %w", op, payment.Status, errs.ErrConflict)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2`,
		models.PaymentCompleted, paymentID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if payment.CouponID != nil {
		if _, err = tx.ExecContext(ctx,
			`UPDATE coupons SET uses = uses + 1 WHERE id = $1`,
			*payment.CouponID); err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
	}

	var sub models.Subscription
	row = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (user_uid, plan, status, start_date, end_date, auto_renew, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, NULL)
		 ON CONFLICT (user_uid) DO UPDATE
		 SET plan = EXCLUDED.plan, status = EXCLUDED.status,
		     start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
		     auto_renew = TRUE, cancelled_at = NULL
		 RETURNING `+subscriptionColumns,
		payment.UserUID, payment.TargetPlan, models.SubscriptionActive, now, endDate)
	var cancelledAt sql.NullTime
	if err = row.Scan(&sub.ID, &sub.UserUID, &sub.Plan, &sub.Status,
		&sub.StartDate, &sub.EndDate, &sub.AutoRenew, &cancelledAt); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET plan = $1 WHERE uid = $2`,
		payment.TargetPlan, payment.UserUID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE payments SET subscription_id = $1 WHERE id = $2`,
		sub.ID, paymentID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, false, nil
}
