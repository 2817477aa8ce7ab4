// Package services implements the entitlement resolver: the single place
// that turns a subscription row into an effective plan and answers
// feature-quota questions for the gift endpoints.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/models"
)

// SubscriptionRepository provides read access to the one-to-one
// subscription row of a user.
type SubscriptionRepository interface {
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
}

// Cache describes the entitlement cache in front of the subscription read.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// EntitlementService derives the effective plan of a user. The denormalized
// users.plan column is display-only; every authorization decision goes
// through here.
type EntitlementService struct {
	subs  SubscriptionRepository
	cache Cache
	log   *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(subs SubscriptionRepository, cache Cache, log *slog.Logger) *EntitlementService {
	return &EntitlementService{
		subs:  subs,
		cache: cache,
		log:   log,
	}
}

const entitlementTTL = 5 * time.Minute

func entitlementKey(userUID string) string {
	return fmt.Sprintf("entitlement:%s", userUID)
}

// GetEffectivePlan computes the authoritative entitlement of a user from the
// subscription row. An ACTIVE row past its end date counts as inactive even
// before the hourly sweep has flipped its status.
func (s *EntitlementService) GetEffectivePlan(ctx context.Context, userUID string) (*models.Entitlement, error) {
	const op = "services.GetEffectivePlan"

	cacheKey := entitlementKey(userUID)
	var cached models.Entitlement
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read entitlement cache", slog.String("key", cacheKey), sl.Err(err))
	}
	// A cached active entitlement whose end date has passed is stale, not
	// authoritative. Fall through to a fresh resolve.
	if found && !staleActive(&cached, time.Now()) {
		return &cached, nil
	}

	ent, err := s.resolve(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Never cache an active entitlement beyond its own end date.
	ttl := entitlementTTL
	if ent.IsActive && ent.ExpiresAt != nil {
		if until := time.Until(*ent.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	if ttl > 0 {
		if err := s.cache.Set(cacheKey, ent, ttl); err != nil {
			s.log.Warn("failed to cache entitlement", slog.String("key", cacheKey), sl.Err(err))
		}
	}
	return ent, nil
}

func staleActive(ent *models.Entitlement, now time.Time) bool {
	return ent.IsActive && ent.ExpiresAt != nil && now.After(*ent.ExpiresAt)
}

func (s *EntitlementService) resolve(ctx context.Context, userUID string) (*models.Entitlement, error) {
	sub, err := s.subs.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return &models.Entitlement{
				Plan:     models.PlanStart,
				IsActive: false,
				Limits:   models.LimitsFor(models.PlanStart),
				Reason:   models.ReasonNoSubscription,
			}, nil
		}
		return nil, err
	}

	now := time.Now()
	if models.EffectiveActive(sub.Status, sub.EndDate, now) {
		endDate := sub.EndDate
		return &models.Entitlement{
			Plan:      sub.Plan,
			IsActive:  true,
			Limits:    models.LimitsFor(sub.Plan),
			ExpiresAt: &endDate,
		}, nil
	}

	reason := models.ReasonExpired
	if sub.Status == models.SubscriptionActive {
		// Overdue but not yet swept to EXPIRED.
		reason = models.ReasonGracePeriodEnded
	}
	return &models.Entitlement{
		Plan:     sub.Plan,
		IsActive: false,
		Limits:   models.LimitsFor(models.PlanStart),
		Reason:   reason,
	}, nil
}

// Invalidate drops the cached entitlement of a user. Billing calls it after
// every subscription write.
func (s *EntitlementService) Invalidate(userUID string) {
	cacheKey := entitlementKey(userUID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate entitlement cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

// CanUserCreateGift reports whether a user may create another gift page.
func (s *EntitlementService) CanUserCreateGift(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error) {
	const op = "services.CanUserCreateGift"

	ent, err := s.GetEffectivePlan(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return checkQuota(ent, ent.Limits.MaxGifts, currentCount), nil
}

// CanUserAddPhoto reports whether a gift page may take another photo.
func (s *EntitlementService) CanUserAddPhoto(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error) {
	const op = "services.CanUserAddPhoto"

	ent, err := s.GetEffectivePlan(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return checkQuota(ent, ent.Limits.MaxPhotosPerGift, currentCount), nil
}

// CanUserAddMusic reports whether a gift page may take another music track.
// Unlike gifts and photos, a limit of zero means the plan does not include
// the feature at all, which callers surface differently from an exhausted
// quota.
func (s *EntitlementService) CanUserAddMusic(ctx context.Context, userUID string, currentCount int) (*models.QuotaCheck, error) {
	const op = "services.CanUserAddMusic"

	ent, err := s.GetEffectivePlan(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	check := checkQuota(ent, ent.Limits.MaxMusicPerGift, currentCount)
	if ent.Limits.MaxMusicPerGift == 0 {
		check.FeatureAvailable = false
	}
	return check, nil
}

func checkQuota(ent *models.Entitlement, limit, currentCount int) *models.QuotaCheck {
	check := &models.QuotaCheck{
		FeatureAvailable: true,
		Limit:            limit,
	}
	if !ent.IsActive {
		check.RequiresSubscription = true
		return check
	}
	if limit == -1 {
		check.Allowed = true
		check.Remaining = -1
		return check
	}
	check.Remaining = limit - currentCount
	if check.Remaining < 0 {
		check.Remaining = 0
	}
	check.Allowed = currentCount < limit
	return check
}
