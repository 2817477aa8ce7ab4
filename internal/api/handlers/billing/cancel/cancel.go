// Package cancel implements the HTTP handler turning off subscription
// auto-renew. Access continues until the paid period ends.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
	services "github.com/giftspark/giftspark/internal/services/billing"
)

// BillingService is the slice of the billing service the handler consumes.
type BillingService interface {
	CancelSubscription(ctx context.Context, userUID string) (*services.SubscriptionResult, error)
}

// Handler handles subscription-cancellation requests.
type Handler struct {
	log            *slog.Logger
	billingService BillingService
}

// New creates a new Handler.
func New(log *slog.Logger, billingService BillingService) *Handler {
	return &Handler{
		log:            log,
		billingService: billingService,
	}
}

// ServeHTTP godoc
// @Summary Cancel the subscription
// @Description Turns off auto-renew; cancelling twice is safe
// @Tags Billing
// @Produce json
// @Success 200 {object} response.OKResponse "Cancelled"
// @Failure 404 {object} response.ErrorResponse "No subscription"
// @Failure 500 {object} response.ErrorResponse "Cancellation failed"
// @Security ApiKeyAuth
// @Router /subscription/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	result, err := h.billingService.CancelSubscription(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("no subscription to cancel"))
			return
		}
		log.Error("cancellation failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to cancel subscription"))
		return
	}

	data := map[string]any{
		"already_cancelled": result.AlreadyCancelled,
	}
	if result.Subscription != nil {
		data["active_until"] = result.Subscription.EndDate
	}
	render.JSON(w, r, response.OKWithData(data))
}
