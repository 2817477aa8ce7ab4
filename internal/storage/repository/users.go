package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

// RegisterUser stores a new unverified user and returns its UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (email, password_hash, email_verified, plan)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.EmailVerified, user.Plan).Scan(&newUID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", errs.ErrConflict
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

const userColumns = `uid, email, password_hash, login_attempts, locked_until,
			      email_verified, plan, last_login_at, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var lockedUntil, lastLoginAt sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.PasswordHash, &u.LoginAttempts,
		&lockedUntil, &u.EmailVerified, &u.Plan, &lastLoginAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return u, nil
}

// GetUserByEmail returns a user by its canonical email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser returns a user by its UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// IncrementLoginAttempts bumps the failed-login counter in place and returns
// the new value. The increment happens in SQL so concurrent failures can only
// undercount, never decrease the counter.
func (s *Storage) IncrementLoginAttempts(ctx context.Context, userUID string) (int, error) {
	const op = "storage.IncrementLoginAttempts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET login_attempts = login_attempts + 1
			  WHERE uid = $1
			  RETURNING login_attempts`
	var attempts int
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return attempts, nil
}

// LockAccount sets the lockout timestamp on a user.
func (s *Storage) LockAccount(ctx context.Context, userUID string, until time.Time) error {
	const op = "storage.LockAccount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET locked_until = $1
			  WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, until, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetLoginState clears the attempt counter and lockout timestamp.
func (s *Storage) ResetLoginState(ctx context.Context, userUID string) error {
	const op = "storage.ResetLoginState"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET login_attempts = 0, locked_until = NULL
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (s *Storage) UpdateLastLogin(ctx context.Context, userUID string, at time.Time) error {
	const op = "storage.UpdateLastLogin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET last_login_at = $1
			  WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, at, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash and clears lockout state.
func (s *Storage) UpdatePasswordHash(ctx context.Context, userUID, hash string) error {
	const op = "storage.UpdatePasswordHash"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_hash = $1, login_attempts = 0, locked_until = NULL
			  WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, hash, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetEmailVerified marks the account as verified.
func (s *Storage) SetEmailVerified(ctx context.Context, userUID string) error {
	const op = "storage.SetEmailVerified"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET email_verified = TRUE
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
