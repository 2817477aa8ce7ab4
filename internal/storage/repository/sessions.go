package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

// CreateSession inserts a session row.
func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.CreateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO sessions (id, user_uid, expires_at, created_at, ip, user_agent)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, query,
		session.ID, session.UserUID, session.ExpiresAt, session.CreatedAt,
		session.IP, session.UserAgent); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSession returns a session by its id.
func (s *Storage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	const op = "storage.GetSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, expires_at, created_at, ip, user_agent
			  FROM sessions
			  WHERE id = $1`
	var session models.Session
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := row.Scan(&session.ID, &session.UserUID, &session.ExpiresAt,
		&session.CreatedAt, &session.IP, &session.UserAgent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// DeleteSession removes a session by id. Absence of the row is not an error;
// logout stays idempotent.
func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	const op = "storage.DeleteSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteSessionsForUser revokes every session of a user and returns the count.
func (s *Storage) DeleteSessionsForUser(ctx context.Context, userUID string) (int, error) {
	const op = "storage.DeleteSessionsForUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions WHERE user_uid = $1`
	result, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeleteOtherSessions revokes every session of a user except keepID, so a
// password change keeps the caller logged in while revoking other devices.
func (s *Storage) DeleteOtherSessions(ctx context.Context, userUID, keepID string) (int, error) {
	const op = "storage.DeleteOtherSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions WHERE user_uid = $1 AND id <> $2`
	result, err := s.DB.ExecContext(ctx, query, userUID, keepID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeleteExpiredSessions removes sessions past their expiry; used by the sweep.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.DeleteExpiredSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions WHERE expires_at < $1`
	result, err := s.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
