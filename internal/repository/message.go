package repository

import (
	"context"
	"fmt"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles database operations for class messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new class message
func (r *MessageRepository) Create(ctx context.Context, m *models.ClassMessage) error {
	query := `
		INSERT INTO class_messages (id, class_id, user_id, anonymous_id, content, parent_id, flagged_count, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, $7)
	`
	_, err := r.db.Exec(ctx, query,
		m.ID, m.ClassID, m.UserID, m.AnonymousID, m.Content, m.ParentID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.ClassMessage, error) {
	query := `
		SELECT id, class_id, user_id, anonymous_id, content, parent_id, flagged_count, hidden, created_at
		FROM class_messages
		WHERE id = $1
	`
	var m models.ClassMessage
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.ClassID, &m.UserID, &m.AnonymousID, &m.Content,
		&m.ParentID, &m.FlaggedCount, &m.Hidden, &m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("message not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

// ListVisible retrieves non-hidden top-level messages for a class, newest
// first, each with its count of non-hidden replies.
func (r *MessageRepository) ListVisible(ctx context.Context, classID string, limit, offset int) ([]*models.MessageView, error) {
	query := `
		SELECT m.id, m.class_id, m.user_id, m.anonymous_id, m.content, m.parent_id, m.flagged_count, m.hidden, m.created_at,
		       (SELECT count(*) FROM class_messages r WHERE r.parent_id = m.id AND NOT r.hidden) AS reply_count
		FROM class_messages m
		WHERE m.class_id = $1 AND NOT m.hidden AND m.parent_id IS NULL
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, classID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.MessageView
	for rows.Next() {
		var v models.MessageView
		err := rows.Scan(
			&v.ID, &v.ClassID, &v.UserID, &v.AnonymousID, &v.Content,
			&v.ParentID, &v.FlaggedCount, &v.Hidden, &v.CreatedAt, &v.ReplyCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return out, nil
}

// CountVisible counts non-hidden top-level messages for a class
func (r *MessageRepository) CountVisible(ctx context.Context, classID string) (int, error) {
	query := `SELECT count(*) FROM class_messages WHERE class_id = $1 AND NOT hidden AND parent_id IS NULL`
	var total int
	if err := r.db.QueryRow(ctx, query, classID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return total, nil
}

// Flag atomically increments the flag counter and flips hidden once the
// post-increment count reaches the threshold. Read-modify-write in two
// steps would lose updates under concurrent flags.
func (r *MessageRepository) Flag(ctx context.Context, messageID string, hideThreshold int) (int, bool, error) {
	query := `
		UPDATE class_messages
		SET flagged_count = flagged_count + 1,
		    hidden = hidden OR (flagged_count + 1 >= $2)
		WHERE id = $1
		RETURNING flagged_count, hidden
	`
	var count int
	var hidden bool
	err := r.db.QueryRow(ctx, query, messageID, hideThreshold).Scan(&count, &hidden)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, fmt.Errorf("message not found: %w", err)
		}
		return 0, false, fmt.Errorf("failed to flag message: %w", err)
	}
	return count, hidden, nil
}
