// Package addmusic implements the HTTP handler adding a music track to a
// gift page. Plans without the music feature are refused separately from an
// exhausted quota.
package addmusic

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
	AddMusic(ctx context.Context, userUID string, giftID int) error
}

// Handler handles music-upload requests.
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
// @Summary Add a music track to a gift page
// @Tags Gifts
// @Produce json
// @Param id path int true "Gift id"
// @Success 200 {object} response.OKResponse "Track recorded"
// @Failure 403 {object} response.ErrorResponse "Subscription required, feature unavailable or quota exceeded"
// @Failure 404 {object} response.ErrorResponse "Gift not found"
// @Failure 500 {object} response.ErrorResponse "Upload failed"
// @Security ApiKeyAuth
// @Router /gifts/{id}/music [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.gift.addmusic"

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

	if err := h.giftService.AddMusic(r.Context(), userUID, giftID); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("gift not found"))
		case errors.Is(err, errs.ErrRequiresSubscription):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("an active subscription is required"))
		case errors.Is(err, errs.ErrFeatureUnavailable):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("your plan does not include music"))
		case errors.Is(err, errs.ErrQuotaExceeded):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("music limit of your plan is reached"))
		default:
			log.Error("failed to add music", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to add music"))
		}
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"message": "music added"}))
}
