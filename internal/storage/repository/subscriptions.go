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

const subscriptionColumns = `id, user_uid, plan, status, start_date, end_date,
			      auto_renew, cancelled_at`

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var sub models.Subscription
	var cancelledAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.Plan, &sub.Status,
		&sub.StartDate, &sub.EndDate, &sub.AutoRenew, &cancelledAt); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	return &sub, nil
}

// GetSubscriptionByUser returns the one-to-one subscription of a user.
func (s *Storage) GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelSubscription turns off auto-renew and stamps cancelled_at while
// leaving the status ACTIVE; access continues until end_date. Returns the
// subscription after the update and whether it had already been cancelled.
func (s *Storage) CancelSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, bool, error) {
	const op = "storage.CancelSubscription"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sub, err := s.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		return nil, false, err
	}
	if sub.CancelledAt != nil {
		return sub, true, nil
	}

	query := `UPDATE subscriptions
			  SET auto_renew = FALSE, cancelled_at = $1
			  WHERE user_uid = $2 AND cancelled_at IS NULL`
	if _, err := s.DB.ExecContext(ctx, query, now, userUID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	sub.AutoRenew = false
	sub.CancelledAt = &now
	return sub, false, nil
}

// ExpireOverdueSubscriptions flips ACTIVE subscriptions past their end_date to
// EXPIRED and syncs the owners' denormalized plan down to the free tier, all
// in one transaction. Returns the UIDs of the affected users so the caller
// can drop their cached entitlements. This is the only writer of status
// EXPIRED.
func (s *Storage) ExpireOverdueSubscriptions(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ExpireOverdueSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`UPDATE subscriptions
		 SET status = $1
		 WHERE status = $2 AND end_date < $3
		 RETURNING user_uid`,
		models.SubscriptionExpired, models.SubscriptionActive, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var userUIDs []string
	for rows.Next() {
		var uid string
		if err = rows.Scan(&uid); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		userUIDs = append(userUIDs, uid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_ = rows.Close()

	for _, uid := range userUIDs {
		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET plan = $1 WHERE uid = $2`,
			models.PlanStart, uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return userUIDs, nil
}
