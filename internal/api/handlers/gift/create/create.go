// Package create implements the HTTP handler creating a gift page.
package create

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
)

// Request carries the gift-creation input.
type Request struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
}

// GiftService is the slice of the gift service the handler consumes.
type GiftService interface {
	CreateGift(ctx context.Context, userUID, title string) (int, error)
}

// Handler handles gift-creation requests.
type Handler struct {
	log         *slog.Logger
	giftService GiftService
	validate    *validator.Validate
}

// New creates a new Handler.
func New(log *slog.Logger, giftService GiftService) *Handler {
	return &Handler{
		log:         log,
		giftService: giftService,
		validate:    validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Create a gift page
// @Description Creates a gift page if the plan's gift quota allows it
// @Tags Gifts
// @Accept json
// @Produce json
// @Param request body Request true "Gift title"
// @Success 201 {object} response.OKResponse "Gift created"
// @Failure 403 {object} response.ErrorResponse "Subscription required or quota exceeded"
// @Failure 422 {object} response.ErrorResponse "Validation failed"
// @Failure 500 {object} response.ErrorResponse "Creation failed"
// @Security ApiKeyAuth
// @Router /gifts [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.gift.create"

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

	id, err := h.giftService.CreateGift(r.Context(), userUID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrRequiresSubscription):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("an active subscription is required"))
		case errors.Is(err, errs.ErrQuotaExceeded):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("gift limit of your plan is reached"))
		case errors.Is(err, errs.ErrInvalidInput):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("gift creation failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create gift"))
		}
		return
	}

	log.Info("gift created", slog.Int("id", id))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(map[string]any{"id": id}))
}
