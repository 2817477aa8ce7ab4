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

// CreateToken inserts a new security token, deleting any earlier tokens of the
// same purpose in the same transaction. At most one outstanding token exists
// per (user, purpose).
func (s *Storage) CreateToken(ctx context.Context, tok models.SecurityToken) error {
	const op = "storage.CreateToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM security_tokens WHERE user_uid = $1 AND purpose = $2`,
		tok.UserUID, tok.Purpose); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO security_tokens (token_hash, user_uid, purpose, expires_at, used)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		tok.TokenHash, tok.UserUID, tok.Purpose, tok.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetToken returns a token row by its storage hash and purpose.
func (s *Storage) GetToken(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (*models.SecurityToken, error) {
	const op = "storage.GetToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT token_hash, user_uid, purpose, expires_at, used, created_at
			  FROM security_tokens
			  WHERE token_hash = $1 AND purpose = $2`
	var tok models.SecurityToken
	row := s.DB.QueryRowContext(ctx, query, tokenHash, purpose)
	if err := row.Scan(&tok.TokenHash, &tok.UserUID, &tok.Purpose,
		&tok.ExpiresAt, &tok.Used, &tok.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tok, nil
}

// MarkTokenUsed flips a token to used only if it is still unused, so two
// concurrent redemptions of the same token cannot both succeed. Returns
// errs.ErrTokenUsed when the compare-and-swap loses.
func (s *Storage) MarkTokenUsed(ctx context.Context, tokenHash string) error {
	const op = "storage.MarkTokenUsed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE security_tokens
			  SET used = TRUE
			  WHERE token_hash = $1 AND used = FALSE`
	result, err := s.DB.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return errs.ErrTokenUsed
	}
	return nil
}

// RedeemResetTokenTx performs the password-reset state transition atomically:
// the token is flipped to used (compare-and-swap, so concurrent redemptions
// cannot both succeed), the password hash is replaced, lockout state cleared
// and every session of the user revoked. All of it commits or none of it does.
func (s *Storage) RedeemResetTokenTx(ctx context.Context, tokenHash, userUID, newHash string) error {
	const op = "storage.RedeemResetTokenTx"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE security_tokens
		 SET used = TRUE
		 WHERE token_hash = $1 AND used = FALSE`, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return errs.ErrTokenUsed
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = $1, login_attempts = 0, locked_until = NULL
		 WHERE uid = $2`, newHash, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_uid = $1`, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteToken removes a token row, used for eager cleanup of expired tokens.
func (s *Storage) DeleteToken(ctx context.Context, tokenHash string) error {
	const op = "storage.DeleteToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM security_tokens WHERE token_hash = $1`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteExpiredTokens removes tokens past their expiry; used by the sweep.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.DeleteExpiredTokens"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM security_tokens WHERE expires_at < $1`
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
