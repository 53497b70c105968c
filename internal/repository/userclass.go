package repository

import (
	"context"
	"errors"
	"fmt"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEnrollment is returned when the (user, class) pair already exists
var ErrDuplicateEnrollment = errors.New("duplicate enrollment")

// UserClassRepository handles database operations for enrollments
type UserClassRepository struct {
	db *pgxpool.Pool
}

// NewUserClassRepository creates a new enrollment repository
func NewUserClassRepository(db *pgxpool.Pool) *UserClassRepository {
	return &UserClassRepository{db: db}
}

// Enroll creates an enrollment row. The unique (user_id, class_id) index
// rejects duplicates, which surface as ErrDuplicateEnrollment.
func (r *UserClassRepository) Enroll(ctx context.Context, uc *models.UserClass) error {
	query := `
		INSERT INTO user_classes (id, user_id, class_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, uc.ID, uc.UserID, uc.ClassID, uc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user already enrolled: %w", ErrDuplicateEnrollment)
		}
		return fmt.Errorf("failed to enroll: %w", err)
	}
	return nil
}

// Drop removes an enrollment row
func (r *UserClassRepository) Drop(ctx context.Context, userID, classID string) error {
	query := `DELETE FROM user_classes WHERE user_id = $1 AND class_id = $2`
	result, err := r.db.Exec(ctx, query, userID, classID)
	if err != nil {
		return fmt.Errorf("failed to drop enrollment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("enrollment not found: %w", pgx.ErrNoRows)
	}
	return nil
}

// IsEnrolled checks whether an enrollment row exists
func (r *UserClassRepository) IsEnrolled(ctx context.Context, userID, classID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_classes WHERE user_id = $1 AND class_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, classID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return exists, nil
}

// ListForUser retrieves the classes a user is enrolled in
func (r *UserClassRepository) ListForUser(ctx context.Context, userID string) ([]*models.Class, error) {
	query := `
		SELECT c.id, c.subject, c.catalog_number, c.term, c.external_id, c.title, c.instructor, c.meeting_times, c.updated_at
		FROM classes c
		JOIN user_classes uc ON uc.class_id = c.id
		WHERE uc.user_id = $1
		ORDER BY c.subject, c.catalog_number
	`
	return r.queryClasses(ctx, query, userID)
}

// CommonClasses retrieves classes both users are enrolled in
func (r *UserClassRepository) CommonClasses(ctx context.Context, userA, userB string) ([]*models.Class, error) {
	query := `
		SELECT c.id, c.subject, c.catalog_number, c.term, c.external_id, c.title, c.instructor, c.meeting_times, c.updated_at
		FROM classes c
		JOIN user_classes a ON a.class_id = c.id AND a.user_id = $1
		JOIN user_classes b ON b.class_id = c.id AND b.user_id = $2
		ORDER BY c.subject, c.catalog_number
	`
	return r.queryClasses(ctx, query, userA, userB)
}

func (r *UserClassRepository) queryClasses(ctx context.Context, query string, args ...any) ([]*models.Class, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	var out []*models.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	return out, nil
}
