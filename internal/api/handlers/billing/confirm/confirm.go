// Package confirm implements the HTTP handler confirming a checkout payment.
// A gateway decline is a 200 response with success=false, not an error
// status.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/paymentgateway"
	services "github.com/giftspark/giftspark/internal/services/billing"
)

// Request carries the confirmation input. The payment is addressed either by
// payment_id or by the gateway_id returned from checkout; payment_id wins
// when both are present.
type Request struct {
	PaymentID  int    `json:"payment_id"`
	GatewayID  string `json:"gateway_id"`
	CardNumber string `json:"card_number" validate:"required,numeric"`
	CardExpiry string `json:"card_expiry" validate:"required"`
	CardCVC    string `json:"card_cvc" validate:"required,numeric"`
}

// BillingService is the slice of the billing service the handler consumes.
type BillingService interface {
	ConfirmPayment(ctx context.Context, userUID string, paymentID int, gatewayID string, card paymentgateway.ConfirmRequest) (*services.SubscriptionResult, error)
}

// Handler handles payment-confirmation requests.
type Handler struct {
	log            *slog.Logger
	billingService BillingService
	validate       *validator.Validate
}

// New creates a new Handler.
func New(log *slog.Logger, billingService BillingService) *Handler {
	return &Handler{
		log:            log,
		billingService: billingService,
		validate:       validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Confirm a payment
// @Description Charges the prepared payment and activates the plan; confirming twice is safe
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body Request true "Payment reference and card data"
// @Success 200 {object} response.OKResponse "Outcome, including declines"
// @Failure 404 {object} response.ErrorResponse "Unknown payment"
// @Failure 409 {object} response.ErrorResponse "Payment is not confirmable"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Confirmation failed"
// @Security ApiKeyAuth
// @Router /checkout/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.confirm"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	if req.PaymentID == 0 && req.GatewayID == "" {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("either payment_id or gateway_id is required"))
		return
	}

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	result, err := h.billingService.ConfirmPayment(r.Context(), userUID, req.PaymentID, req.GatewayID,
		paymentgateway.ConfirmRequest{
			CardNumber: req.CardNumber,
			CardExpiry: req.CardExpiry,
			CardCVC:    req.CardCVC,
		})
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("payment not found"))
		case errors.Is(err, errs.ErrConflict):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("confirmation failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to confirm payment"))
		}
		return
	}

	data := map[string]any{
		"success":           result.Success,
		"already_processed": result.AlreadyProcessed,
	}
	if !result.Success {
		data["message"] = result.Message
	}
	if result.Subscription != nil {
		data["plan"] = result.Subscription.Plan
		data["expires_at"] = result.Subscription.EndDate
	}
	render.JSON(w, r, response.OKWithData(data))
}
