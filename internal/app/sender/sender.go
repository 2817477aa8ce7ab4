// Package sender runs the notification worker consuming the email and audit
// queues.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/giftspark/giftspark/internal/config"
	"github.com/giftspark/giftspark/internal/lib/rabbitmq"
	"github.com/giftspark/giftspark/internal/lib/smtp"
	senderservice "github.com/giftspark/giftspark/internal/services/sender"
)

// App is the sender worker.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New connects to the broker and builds the sender service.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RabbitMaxRetries, cfg.RabbitRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(transport, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run consumes the notification queues until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeMessages(ctx, a.ch, "notification.email", a.senderService.HandleEmailMessage)
	if err != nil {
		a.logger.Error("failed to start email consumer", slog.Any("err", err))
		return err
	}
	err = rabbitmq.ConsumeMessages(ctx, a.ch, "notification.audit", a.senderService.HandleAuditMessage)
	if err != nil {
		a.logger.Error("failed to start audit consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
