package models

import "time"

// Entitlement reasons reported when a user is not actively subscribed.
const (
	ReasonNoSubscription   = "no_subscription"
	ReasonExpired          = "expired"
	ReasonGracePeriodEnded = "grace_period_ended"
)

// Entitlement is the server-derived effective plan of a user, computed from
// the Subscription row. It is the only state authorization decisions use.
type Entitlement struct {
	Plan      Plan       `json:"plan"`
	IsActive  bool       `json:"is_active"`
	Limits    PlanLimits `json:"limits"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// QuotaCheck is the outcome of a single feature-quota question.
type QuotaCheck struct {
	Allowed              bool `json:"allowed"`
	RequiresSubscription bool `json:"requires_subscription,omitempty"`
	FeatureAvailable     bool `json:"feature_available"`
	Limit                int  `json:"limit"`
	Remaining            int  `json:"remaining"`
}
