// Package sweeper runs the hourly maintenance pass: overdue subscriptions
// are flipped to EXPIRED and lapsed tokens and sessions are purged.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giftspark/giftspark/internal/cache"
	"github.com/giftspark/giftspark/internal/config"
	"github.com/giftspark/giftspark/internal/lib/sl"
	billingservice "github.com/giftspark/giftspark/internal/services/billing"
	entitlementservice "github.com/giftspark/giftspark/internal/services/entitlement"
	"github.com/giftspark/giftspark/internal/storage/repository"
)

const sweepInterval = time.Hour

// App is the sweeper worker.
type App struct {
	billingService *billingservice.BillingService
	db             *repository.Storage
	logger         *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		if err := repository.CheckDatabaseReady(db); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New builds the sweeper from the service configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err := waitForDB(db); err != nil {
		_ = db.DB.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.DB.Close()
		return nil, err
	}

	entitlementSvc := entitlementservice.NewEntitlementService(db, cacheRedis, logger)
	billingSvc := billingservice.NewBillingService(db, db, db, db, db, entitlementSvc, nil, nil, logger)

	return &App{
		billingService: billingSvc,
		db:             db,
		logger:         logger,
	}, nil
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	a.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			a.sweep(ctx)
		case <-ctx.Done():
			a.logger.Info("shutting down sweeper")
			_ = a.db.DB.Close()
			return nil
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := a.billingService.ExpireOverdueSubscriptions(ctx)
	if err != nil {
		a.logger.Error("failed to expire subscriptions", sl.Err(err))
	}

	tokens, err := a.db.DeleteExpiredTokens(ctx, now)
	if err != nil {
		a.logger.Error("failed to purge expired tokens", sl.Err(err))
	}
	sessions, err := a.db.DeleteExpiredSessions(ctx, now)
	if err != nil {
		a.logger.Error("failed to purge expired sessions", sl.Err(err))
	}

	a.logger.Info("sweep finished",
		slog.Int("subscriptions_expired", expired),
		slog.Int("tokens_purged", tokens),
		slog.Int("sessions_purged", sessions))
}
