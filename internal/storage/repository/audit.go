package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/giftspark/giftspark/internal/models"
)

// AppendAuditEvent stores an append-only audit record.
func (s *Storage) AppendAuditEvent(ctx context.Context, event models.AuditEvent) error {
	const op = "storage.AppendAuditEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	query := `INSERT INTO audit_events (user_uid, action, context, created_at)
			  VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query,
		event.UserUID, event.Action, contextJSON, event.At); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
