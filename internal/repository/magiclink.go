package repository

import (
	"context"
	"fmt"
	"time"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MagicLinkRepository handles database operations for magic links
type MagicLinkRepository struct {
	db *pgxpool.Pool
}

// NewMagicLinkRepository creates a new magic link repository
func NewMagicLinkRepository(db *pgxpool.Pool) *MagicLinkRepository {
	return &MagicLinkRepository{db: db}
}

// Create creates a new magic link row
func (r *MagicLinkRepository) Create(ctx context.Context, link *models.MagicLink) error {
	query := `
		INSERT INTO magic_links (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	_, err := r.db.Exec(ctx, query, link.ID, link.UserID, link.TokenHash, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create magic link: %w", err)
	}
	return nil
}

// Consume marks the unused, unexpired link with the given token hash as used
// and returns its owning user ID. The conditional update is the single-use
// guard: of N concurrent calls with the same hash, exactly one sees a row.
func (r *MagicLinkRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		UPDATE magic_links
		SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND expires_at > $2
		RETURNING user_id
	`
	var userID string
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("magic link not consumable: %w", err)
		}
		return "", fmt.Errorf("failed to consume magic link: %w", err)
	}
	return userID, nil
}

// DeleteExpired removes links whose window has lapsed
func (r *MagicLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM magic_links WHERE expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic links: %w", err)
	}
	return result.RowsAffected(), nil
}
