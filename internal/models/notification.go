package models

import "time"

// Email template kinds understood by the sender worker.
const (
	EmailKindVerifyEmail     = "verify_email"
	EmailKindSecurityAlert   = "security_alert"
	EmailKindPasswordChanged = "password_changed"
	EmailKindResetRequested  = "reset_requested"
	EmailKindResetConfirmed  = "reset_confirmed"
	EmailKindPaymentReceipt  = "payment_receipt"
)

// EmailMessage is the payload published to the notifications queue for the
// sender worker. Delivery failures are logged by the worker and never
// propagate back to the request that produced the message.
type EmailMessage struct {
	To     string            `json:"to"`
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// AuditEvent is an append-only record of a security- or billing-relevant action.
type AuditEvent struct {
	UserUID string            `json:"user_uid"`
	Action  string            `json:"action"`
	Context map[string]string `json:"context,omitempty"`
	At      time.Time         `json:"at"`
}
