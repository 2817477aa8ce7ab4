package models

import "time"

// PaymentStatus is the lifecycle state of a checkout attempt.
type PaymentStatus string

const (
	// PaymentPending means a gateway intent exists but has not been confirmed.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentCompleted means the gateway confirmed the charge.
	PaymentCompleted PaymentStatus = "COMPLETED"
	// PaymentFailed means the gateway declined the charge.
	PaymentFailed PaymentStatus = "FAILED"
)

// Payment is one row per checkout attempt.
//
// TargetPlan is written at creation and immutable afterwards. Confirmation
// reads the plan to activate from this field, never from gateway-returned
// metadata.
type Payment struct {
	ID             int
	UserUID        string
	GatewayID      string
	Amount         int64 // final amount in cents after any coupon
	Status         PaymentStatus
	TargetPlan     Plan
	IdempotencyKey string
	CouponID       *int
	SubscriptionID *int
	CreatedAt      time.Time
}
