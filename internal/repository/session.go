package repository

import (
	"context"
	"fmt"
	"time"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session row
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.TokenHash,
		session.ExpiresAt, session.LastUsedAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Touch refreshes last_used_at for the live session with the given credential
// hash and returns its owning user ID. Expired or revoked sessions match no row.
func (r *SessionRepository) Touch(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		UPDATE sessions
		SET last_used_at = $2
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING user_id
	`
	var userID string
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("session not found: %w", err)
		}
		return "", fmt.Errorf("failed to touch session: %w", err)
	}
	return userID, nil
}

// DeleteByHash removes the session with the given credential hash.
// Deleting an already-gone session is not an error.
func (r *SessionRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM sessions WHERE token_hash = $1`
	if _, err := r.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
