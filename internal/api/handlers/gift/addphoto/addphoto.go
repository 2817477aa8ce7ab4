// Package addphoto implements the HTTP handler adding a photo to a gift page.
package addphoto

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/giftspark/giftspark/internal/api/middlewarectx"
	"github.com/giftspark/giftspark/internal/api/response"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
)

// GiftService is the slice of the gift service the handler consumes.
type GiftService interface {
	AddPhoto(ctx context.Context, userUID string, giftID int) error
}

// Handler handles photo-upload requests.
type Handler struct {
	log         *slog.Logger
	giftService GiftService
}

// New creates a new Handler.
func New(log *slog.Logger, giftService GiftService) *Handler {
	return &Handler{
		log:         log,
		giftService: giftService,
	}
}

// ServeHTTP godoc
// @Summary Add a photo to a gift page
// @Tags Gifts
// @Produce json
// @Param id path int true "Gift id"
// @Success 200 {object} response.OKResponse "Photo recorded"
// @Failure 403 {object} response.ErrorResponse "Subscription required or quota exceeded"
// @Failure 404 {object} response.ErrorResponse "Gift not found"
// @Failure 500 {object} response.ErrorResponse "Upload failed"
// @Security ApiKeyAuth
// @Router /gifts/{id}/photos [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.gift.addphoto"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	giftID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid gift id"))
		return
	}

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	if err := h.giftService.AddPhoto(r.Context(), userUID, giftID); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("gift not found"))
		case errors.Is(err, errs.ErrRequiresSubscription):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("an active subscription is required"))
		case errors.Is(err, errs.ErrQuotaExceeded):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("photo limit of your plan is reached"))
		default:
			log.Error("failed to add photo", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to add photo"))
		}
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"message": "photo added"}))
}
