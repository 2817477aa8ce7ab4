// Package services implements the gift-page operations. Every mutation asks
// the entitlement resolver first; raw plan fields are never consulted here.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

// GiftRepository describes the gift persistence contract.
type GiftRepository interface {
	CreateGift(ctx context.Context, gift models.Gift) (int, error)
	GetGift(ctx context.Context, id int, userUID string) (*models.Gift, error)
	CountGifts(ctx context.Context, userUID string) (int, error)
	IncrementPhotoCount(ctx context.Context, id int, userUID string) error
	IncrementMusicCount(ctx context.Context, id int, userUID string) error
}

// Entitlements is the quota surface of the entitlement resolver.
type Entitlements interface {
	CanUserCreateGift(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error)
	CanUserAddPhoto(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error)
	CanUserAddMusic(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error)
}

// GiftService gates gift mutations behind the plan quotas.
type GiftService struct {
	gifts        GiftRepository
	entitlements Entitlements
	log          *slog.Logger
}

// NewGiftService creates a new GiftService.
func NewGiftService(gifts GiftRepository, entitlements Entitlements, log *slog.Logger) *GiftService {
	return &GiftService{
		gifts:        gifts,
		entitlements: entitlements,
		log:          log,
	}
}

// quotaError maps a refused check onto the error taxonomy. The three causes
// surface as distinct errors so the handlers can tell them apart.
func quotaError(check *models.QuotaCheck) error {
	switch {
	case check.Allowed:
		return nil
	case check.RequiresSubscription:
		return errs.ErrRequiresSubscription
	case !check.FeatureAvailable:
		return errs.ErrFeatureUnavailable
	default:
		return errs.ErrQuotaExceeded
	}
}

// CreateGift creates a gift page when the plan's gift quota allows it.
func (s *GiftService) CreateGift(ctx context.Context, userUID, title string) (int, error) {
	const op = "services.CreateGift"

	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("%w: empty title", errs.ErrInvalidInput)
	}

	count, err := s.gifts.CountGifts(ctx, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	check, err := s.entitlements.CanUserCreateGift(ctx, userUID, count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := quotaError(check); err != nil {
		return 0, err
	}

	id, err := s.gifts.CreateGift(ctx, models.Gift{
		UserUID: userUID,
		Title:   title,
		Slug:    uuid.NewString(),
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("created gift", slog.Int("id", id), slog.String("user_uid", userUID))
	return id, nil
}

// AddPhoto records another photo on an owned gift page, quota permitting.
func (s *GiftService) AddPhoto(ctx context.Context, userUID string, giftID int) error {
	const op = "services.AddPhoto"

	gift, err := s.gifts.GetGift(ctx, giftID, userUID)
	if err != nil {
		return err
	}
	check, err := s.entitlements.CanUserAddPhoto(ctx, userUID, gift.PhotoCount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := quotaError(check); err != nil {
		return err
	}
	return s.gifts.IncrementPhotoCount(ctx, giftID, userUID)
}

// AddMusic records another music track on an owned gift page. Plans without
// the music feature are refused with a distinct error.
func (s *GiftService) AddMusic(ctx context.Context, userUID string, giftID int) error {
	const op = "services.AddMusic"

	gift, err := s.gifts.GetGift(ctx, giftID, userUID)
	if err != nil {
		return err
	}
	check, err := s.entitlements.CanUserAddMusic(ctx, userUID, gift.MusicCount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := quotaError(check); err != nil {
		return err
	}
	return s.gifts.IncrementMusicCount(ctx, giftID, userUID)
}
