package paymentgateway

// Intent statuses reported by the gateway.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// CreateIntentRequest asks the gateway to prepare a charge.
//
// Metadata is opaque to the gateway and echoed back on its responses; nothing
// in it is trusted on the way back.
type CreateIntentRequest struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CreateIntentResponse is the gateway's reference for a prepared charge.
type CreateIntentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ConfirmRequest carries the card data for confirming an intent.
type ConfirmRequest struct {
	CardNumber string `json:"card_number,omitempty"`
	CardExpiry string `json:"card_expiry,omitempty"`
	CardCVC    string `json:"card_cvc,omitempty"`
}

// ConfirmResponse reports the outcome of a confirmation. A failed status is a
// business outcome, not a transport error.
type ConfirmResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
