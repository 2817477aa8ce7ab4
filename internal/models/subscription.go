package models

import "time"

// SubscriptionStatus is the stored lifecycle state of a subscription.
type SubscriptionStatus string

const (
	// SubscriptionActive means the subscription has been paid for.
	SubscriptionActive SubscriptionStatus = "ACTIVE"
	// SubscriptionCancelled is unused in storage: a cancelled subscription keeps
	// status ACTIVE with auto_renew=false until the sweep expires it.
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	// SubscriptionExpired is written only by the expiry sweep.
	SubscriptionExpired SubscriptionStatus = "EXPIRED"
)

// Subscription is the one-to-one paid-plan record of a user.
type Subscription struct {
	ID          int
	UserUID     string
	Plan        Plan
	Status      SubscriptionStatus
	StartDate   time.Time
	EndDate     time.Time
	AutoRenew   bool
	CancelledAt *time.Time
}

// EffectiveActive is the single shared predicate deciding whether a
// subscription still entitles its owner at now. The resolver evaluates it at
// read time; the hourly sweep persists the same condition as status EXPIRED.
func EffectiveActive(status SubscriptionStatus, endDate, now time.Time) bool {
	return status == SubscriptionActive && endDate.After(now)
}
