// Package checkout implements the HTTP handler creating a plan checkout.
package checkout

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
	"github.com/giftspark/giftspark/internal/models"
	services "github.com/giftspark/giftspark/internal/services/billing"
)

// Request carries the checkout input. Plan and method are closed lists.
type Request struct {
	Plan          string `json:"plan" validate:"required,oneof=PREMIUM ETERNAL"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card sbp"`
	CouponCode    string `json:"coupon_code"`
}

// BillingService is the slice of the billing service the handler consumes.
type BillingService interface {
	CreateCheckout(ctx context.Context, userUID string, plan models.Plan, method, couponCode string) (*services.CheckoutResult, error)
}

// Handler handles checkout-creation requests.
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
// @Summary Create a checkout
// @Description Prepares a payment for a plan purchase; repeated calls reuse the pending payment
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body Request true "Plan, payment method and optional coupon"
// @Success 200 {object} response.OKResponse "Checkout created"
// @Failure 400 {object} response.ErrorResponse "Invalid plan, method or coupon"
// @Failure 409 {object} response.ErrorResponse "Already subscribed at this tier or higher"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Checkout failed"
// @Security ApiKeyAuth
// @Router /checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"

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

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	result, err := h.billingService.CreateCheckout(r.Context(), userUID,
		models.Plan(req.Plan), req.PaymentMethod, req.CouponCode)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		case errors.Is(err, errs.ErrConflict):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("an active subscription already covers this tier"))
		default:
			log.Error("checkout failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create checkout"))
		}
		return
	}

	log.Info("checkout created",
		slog.Int("payment_id", result.PaymentID), slog.Bool("reused", result.Reused))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payment_id": result.PaymentID,
		"gateway_id": result.GatewayID,
		"plan":       result.Plan,
		"amount":     result.Amount,
		"reused":     result.Reused,
	}))
}
