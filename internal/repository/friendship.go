package repository

import (
	"context"
	"fmt"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FriendshipRepository handles database operations for friendships
type FriendshipRepository struct {
	db *pgxpool.Pool
}

// NewFriendshipRepository creates a new friendship repository
func NewFriendshipRepository(db *pgxpool.Pool) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

const friendshipColumns = `id, requester_id, addressee_id, status, created_at, updated_at`

func scanFriendship(row pgx.Row) (*models.Friendship, error) {
	var f models.Friendship
	err := row.Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create creates a new friendship row
func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) error {
	query := `
		INSERT INTO friendships (id, requester_id, addressee_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err := r.db.Exec(ctx, query, f.ID, f.RequesterID, f.AddresseeID, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

// GetByID retrieves a friendship by ID
func (r *FriendshipRepository) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE id = $1`
	f, err := scanFriendship(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("friendship not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return f, nil
}

// GetBetween retrieves the friendship between two users regardless of direction
func (r *FriendshipRepository) GetBetween(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE (requester_id = $1 AND addressee_id = $2)
		   OR (requester_id = $2 AND addressee_id = $1)
	`
	f, err := scanFriendship(r.db.QueryRow(ctx, query, userA, userB))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("friendship not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get friendship between users: %w", err)
	}
	return f, nil
}

// UpdateStatus changes the status of a friendship
func (r *FriendshipRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE friendships SET status = $1, updated_at = now() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update friendship status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("friendship not found: %w", pgx.ErrNoRows)
	}
	return nil
}

// Delete deletes a friendship by ID
func (r *FriendshipRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM friendships WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("friendship not found: %w", pgx.ErrNoRows)
	}
	return nil
}

// ListForUser retrieves friendships involving a user, optionally filtered by status
func (r *FriendshipRepository) ListForUser(ctx context.Context, userID, status string) ([]*models.Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE (requester_id = $1 OR addressee_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	defer rows.Close()

	var out []*models.Friendship
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	return out, nil
}
