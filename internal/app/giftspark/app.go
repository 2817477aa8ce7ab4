// Package giftspark wires the API server: storage, cache, queue broker,
// payment gateway and the business services behind the HTTP routes.
package giftspark

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/giftspark/giftspark/internal/cache"
	"github.com/giftspark/giftspark/internal/config"
	"github.com/giftspark/giftspark/internal/lib/jwt"
	"github.com/giftspark/giftspark/internal/lib/rabbitmq"
	"github.com/giftspark/giftspark/internal/lib/smtp"
	"github.com/giftspark/giftspark/internal/migrations"
	"github.com/giftspark/giftspark/internal/paymentgateway"
	authservice "github.com/giftspark/giftspark/internal/services/auth"
	billingservice "github.com/giftspark/giftspark/internal/services/billing"
	entitlementservice "github.com/giftspark/giftspark/internal/services/entitlement"
	giftservice "github.com/giftspark/giftspark/internal/services/gift"
	senderservice "github.com/giftspark/giftspark/internal/services/sender"
	"github.com/giftspark/giftspark/internal/storage/repository"
)

// App is the API server with its backing connections.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New connects the backing services and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RabbitMaxRetries, cfg.RabbitRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	notifier := &rabbitmq.Publisher{Ch: ch, Exchange: "notifications"}

	jwtMaker := jwt.NewMaker(cfg.JWTSecretKey)
	transport := smtp.NewTransport(cfg, logger)
	mailer := senderservice.NewSenderService(transport, logger)
	gateway := paymentgateway.NewClient(cfg.GatewayURL, cfg.GatewayShopID, cfg.GatewaySecret)

	authSvc := authservice.NewAuthService(db, db, db, jwtMaker, mailer, notifier, cfg.AuthPolicy, logger)
	entitlementSvc := entitlementservice.NewEntitlementService(db, cacheRedis, logger)
	billingSvc := billingservice.NewBillingService(db, db, db, db, db, entitlementSvc, gateway, notifier, logger)
	giftSvc := giftservice.NewGiftService(db, entitlementSvc, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, jwtMaker, db, authSvc, entitlementSvc, billingSvc, giftSvc)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.conn.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		_ = a.db.DB.Close()
		return err
	}
}
