package repository

import (
	"context"
	"fmt"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, phone_hash, handle, email_verified, phone_verified, push_token, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PhoneHash, &user.Handle,
		&user.EmailVerified, &user.PhoneVerified, &user.PushToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreateByEmail returns the user with the given normalized email,
// creating the row if it does not exist. The upsert is atomic so two
// concurrent first-login requests cannot create two rows.
func (r *UserRepository) FindOrCreateByEmail(ctx context.Context, id, email string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, id, email))
	if err != nil {
		return nil, fmt.Errorf("failed to find or create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByHandleOrEmail retrieves a user by handle or by email
func (r *UserRepository) GetByHandleOrEmail(ctx context.Context, s string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE handle = $1 OR email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, s))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get user by handle or email: %w", err)
	}
	return user, nil
}

// SetEmailVerified marks a user's email as verified
func (r *UserRepository) SetEmailVerified(ctx context.Context, userID string) error {
	query := `UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to set email verified: %w", err)
	}
	return nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1, updated_at = now() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, pushToken, userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

// Delete removes a user. Dependent rows cascade at the schema level.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", pgx.ErrNoRows)
	}
	return nil
}
