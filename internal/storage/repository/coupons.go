package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

// GetCouponByCode returns a coupon by its code. Usage is incremented only by
// the payment-confirmation transaction, never here.
func (s *Storage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	const op = "storage.GetCouponByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, discount_type, discount_value, valid_from, valid_until,
			      max_uses, uses, min_amount, plans, active
			  FROM coupons
			  WHERE code = $1`
	var c models.Coupon
	var plans string
	row := s.DB.QueryRowContext(ctx, query, code)
	if err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue,
		&c.ValidFrom, &c.ValidUntil, &c.MaxUses, &c.Uses, &c.MinAmount,
		&plans, &c.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, p := range strings.Split(plans, ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.Plans = append(c.Plans, models.Plan(p))
		}
	}
	return &c, nil
}
