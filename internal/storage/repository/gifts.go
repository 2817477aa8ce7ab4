package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/models"
)

// CreateGift inserts a gift page and returns its id.
func (s *Storage) CreateGift(ctx context.Context, gift models.Gift) (int, error) {
	const op = "storage.CreateGift"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO gifts (user_uid, title, slug)
			  VALUES ($1, $2, $3)
			  RETURNING id`
	var newID int
	if err := s.DB.QueryRowContext(ctx, query,
		gift.UserUID, gift.Title, gift.Slug).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetGift returns a gift scoped to its owner; cross-user reads surface as not found.
func (s *Storage) GetGift(ctx context.Context, id int, userUID string) (*models.Gift, error) {
	const op = "storage.GetGift"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, title, slug, photo_count, music_count, created_at
			  FROM gifts
			  WHERE id = $1 AND user_uid = $2`
	var g models.Gift
	row := s.DB.QueryRowContext(ctx, query, id, userUID)
	if err := row.Scan(&g.ID, &g.UserUID, &g.Title, &g.Slug,
		&g.PhotoCount, &g.MusicCount, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &g, nil
}

// CountGifts returns how many gift pages a user owns.
func (s *Storage) CountGifts(ctx context.Context, userUID string) (int, error) {
	const op = "storage.CountGifts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM gifts WHERE user_uid = $1`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// IncrementPhotoCount bumps the photo counter of an owned gift.
func (s *Storage) IncrementPhotoCount(ctx context.Context, id int, userUID string) error {
	const op = "storage.IncrementPhotoCount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE gifts SET photo_count = photo_count + 1
			  WHERE id = $1 AND user_uid = $2`
	result, err := s.DB.ExecContext(ctx, query, id, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// IncrementMusicCount bumps the music counter of an owned gift.
func (s *Storage) IncrementMusicCount(ctx context.Context, id int, userUID string) error {
	const op = "storage.IncrementMusicCount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE gifts SET music_count = music_count + 1
			  WHERE id = $1 AND user_uid = $2`
	result, err := s.DB.ExecContext(ctx, query, id, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
