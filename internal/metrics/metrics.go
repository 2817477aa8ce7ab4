// Package metrics registers the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts login outcomes by result
	// (success, invalid_credentials, locked, unverified).
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftspark_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// AccountLockouts counts accounts locked after repeated failures.
	AccountLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftspark_account_lockouts_total",
		Help: "Accounts locked after repeated failed logins.",
	})

	// PaymentsConfirmed counts confirmed payments by gateway outcome
	// (completed, declined, already_processed).
	PaymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftspark_payments_confirmed_total",
		Help: "Payment confirmations by outcome.",
	}, []string{"outcome"})

	// SubscriptionsExpired counts subscriptions transitioned by the sweep.
	SubscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftspark_subscriptions_expired_total",
		Help: "Subscriptions flipped to EXPIRED by the hourly sweep.",
	})
)
