// Package services implements the notification sender: it renders the
// plain-text email templates and pushes them through the SMTP transport.
// The sender worker feeds it from the queue; the auth service also calls
// Send directly for the synchronous verification email.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/lib/smtp"
	"github.com/giftspark/giftspark/internal/models"
)

// SenderService renders and delivers notification emails.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService creates a new SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// HandleEmailMessage unmarshals a queue delivery and sends the email it
// describes. Returning an error nacks the delivery back onto the queue.
func (s *SenderService) HandleEmailMessage(body []byte) error {
	var msg models.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal email message", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	return s.Send(msg.To, msg.Kind, msg.Params)
}

// HandleAuditMessage logs an audit event from the queue. The billing service
// already persisted it; the worker keeps a copy in the log stream.
func (s *SenderService) HandleAuditMessage(body []byte) error {
	var event models.AuditEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal audit event", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	s.log.Info("audit event",
		slog.String("user_uid", event.UserUID),
		slog.String("action", event.Action),
		slog.Any("context", event.Context))
	return nil
}

// Send renders the template for kind and delivers it to a single recipient.
func (s *SenderService) Send(to, kind string, params map[string]string) error {
	subject, bodyText, err := render(kind, params)
	if err != nil {
		return err
	}
	return s.sendEmail(to, subject, bodyText)
}

func render(kind string, params map[string]string) (subject, body string, err error) {
	switch kind {
	case models.EmailKindVerifyEmail:
		return "Confirm your email",
			fmt.Sprintf("Hello!\n\nConfirm your giftspark account with this code:\n\n%s\n\nThe code expires in 24 hours. If you did not register, ignore this message.",
				params["token"]), nil
	case models.EmailKindSecurityAlert:
		return "Your account was temporarily locked",
			"Hello!\n\nWe noticed several failed sign-in attempts, so your account is locked for a short while. If this was not you, reset your password once the lock lifts.", nil
	case models.EmailKindPasswordChanged:
		return "Your password was changed",
			"Hello!\n\nThe password of your giftspark account was just changed. Other signed-in devices were logged out. If this was not you, reset your password immediately.", nil
	case models.EmailKindResetRequested:
		return "Password reset",
			fmt.Sprintf("Hello!\n\nUse this code to reset your password:\n\n%s\n\nThe code expires in one hour. If you did not request a reset, ignore this message.",
				params["token"]), nil
	case models.EmailKindResetConfirmed:
		return "Your password was reset",
			"Hello!\n\nYour password was reset and all sessions were signed out. If this was not you, contact support.", nil
	case models.EmailKindPaymentReceipt:
		return "Payment received",
			fmt.Sprintf("Hello!\n\nYour %s plan is active until %s. Amount charged: %s kopecks.\n\nThank you for using giftspark!",
				params["plan"], params["expires_at"], params["amount"]), nil
	default:
		return "", "", fmt.Errorf("unknown email kind: %s", kind)
	}
}

func (s *SenderService) sendEmail(to, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	if err := client.Rcpt(to); err != nil {
		s.log.Error("failed to set RCPT TO", slog.String("recipient", to), sl.Err(err))
		return err
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}
