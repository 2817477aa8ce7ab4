package models

import "time"

// DiscountType selects how a coupon's value is applied.
type DiscountType string

const (
	// DiscountPercentage interprets DiscountValue as a percentage of the price.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed interprets DiscountValue as an absolute amount in cents.
	DiscountFixed DiscountType = "FIXED"
)

// Coupon is a discount rule applied at checkout.
type Coupon struct {
	ID            int
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	ValidFrom     time.Time
	ValidUntil    time.Time
	MaxUses       int // 0 means no cap
	Uses          int
	MinAmount     int64
	Plans         []Plan // empty means any tier
	Active        bool
}

// Valid reports whether the coupon may be applied to the given tier and
// undiscounted price at now.
func (c *Coupon) Valid(plan Plan, price int64, now time.Time) bool {
	if !c.Active {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return false
	}
	if price < c.MinAmount {
		return false
	}
	if len(c.Plans) > 0 {
		eligible := false
		for _, p := range c.Plans {
			if p == plan {
				eligible = true
				break
			}
		}
		if !eligible {
			return false
		}
	}
	return true
}

// DiscountFor returns the discount in cents for the given price.
// The caller clamps the final amount at zero.
func (c *Coupon) DiscountFor(price int64) int64 {
	switch c.DiscountType {
	case DiscountPercentage:
		return price * c.DiscountValue / 100
	case DiscountFixed:
		return c.DiscountValue
	default:
		return 0
	}
}
