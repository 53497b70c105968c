package repository

import (
	"context"
	"fmt"

	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClassRepository handles database operations for classes
type ClassRepository struct {
	db *pgxpool.Pool
}

// NewClassRepository creates a new class repository
func NewClassRepository(db *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, subject, catalog_number, term, external_id, title, instructor, meeting_times, updated_at`

func scanClass(row pgx.Row) (*models.Class, error) {
	var c models.Class
	err := row.Scan(
		&c.ID, &c.Subject, &c.CatalogNumber, &c.Term, &c.ExternalID,
		&c.Title, &c.Instructor, &c.MeetingTimes, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert inserts or refreshes a class keyed by (subject, catalog_number, term,
// external_id) and returns the stored row.
func (r *ClassRepository) Upsert(ctx context.Context, c *models.Class) (*models.Class, error) {
	query := `
		INSERT INTO classes (id, subject, catalog_number, term, external_id, title, instructor, meeting_times, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (subject, catalog_number, term, external_id) DO UPDATE
		SET title = EXCLUDED.title,
		    instructor = EXCLUDED.instructor,
		    meeting_times = EXCLUDED.meeting_times,
		    updated_at = now()
		RETURNING ` + classColumns
	stored, err := scanClass(r.db.QueryRow(ctx, query,
		c.ID, c.Subject, c.CatalogNumber, c.Term, c.ExternalID,
		c.Title, c.Instructor, c.MeetingTimes,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert class: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a class by ID
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	c, err := scanClass(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("class not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return c, nil
}

// Search retrieves cached classes matching a catalog query. Term is optional.
func (r *ClassRepository) Search(ctx context.Context, subject, catalogNumber, term string) ([]*models.Class, error) {
	query := `
		SELECT ` + classColumns + `
		FROM classes
		WHERE subject = $1 AND catalog_number = $2 AND ($3 = '' OR term = $3)
		ORDER BY term DESC, external_id
	`
	rows, err := r.db.Query(ctx, query, subject, catalogNumber, term)
	if err != nil {
		return nil, fmt.Errorf("failed to search classes: %w", err)
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
		return nil, fmt.Errorf("failed to search classes: %w", err)
	}
	return out, nil
}
