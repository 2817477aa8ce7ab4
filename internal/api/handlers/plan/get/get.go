// Package get implements the HTTP handler reporting the caller's effective
// plan and its limits.
package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/models"
)

// EntitlementService is the slice of the entitlement resolver the handler
// consumes.
type EntitlementService interface {
	GetEffectivePlan(ctx context.Context, userUID string) (*models.Entitlement, error)
}

// Handler handles plan queries.
type Handler struct {
	log          *slog.Logger
	entitlements EntitlementService
}

// New creates a new Handler.
func New(log *slog.Logger, entitlements EntitlementService) *Handler {
	return &Handler{
		log:          log,
		entitlements: entitlements,
	}
}

// ServeHTTP godoc
// @Summary My plan
// @Description Returns the effective plan derived from the subscription
// @Tags Plan
// @Produce json
// @Success 200 {object} response.OKResponse "Effective plan"
// @Failure 500 {object} response.ErrorResponse "Lookup failed"
// @Security ApiKeyAuth
// @Router /plan [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.get"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	ent, err := h.entitlements.GetEffectivePlan(r.Context(), userUID)
	if err != nil {
		log.Error("failed to resolve plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to resolve plan"))
		return
	}

	render.JSON(w, r, response.OKWithData(ent))
}
