package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// WorkRepository handles canonical catalog work persistence. Works are
// immutable once created.
type WorkRepository interface {
	// Create inserts a new work.
	Create(ctx context.Context, work *domain.Work) error

	// Get retrieves a work by ID.
	// Returns domain.ErrNotFound if no matching work exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Work, error)

	// FindByExternalID retrieves a work by its ASIN/ISBN.
	// Returns domain.ErrNotFound if no matching work exists.
	FindByExternalID(ctx context.Context, externalID string) (*domain.Work, error)
}

// Compile-time interface verification.
var _ WorkRepository = (*PgWorkRepository)(nil)

// PgWorkRepository is a PostgreSQL implementation of WorkRepository.
type PgWorkRepository struct {
	db DBTX
}

// NewPgWorkRepository creates a new PostgreSQL work repository.
func NewPgWorkRepository(db DBTX) *PgWorkRepository {
	return &PgWorkRepository{db: db}
}

// Create inserts a new work.
func (r *PgWorkRepository) Create(ctx context.Context, work *domain.Work) error {
	if work == nil {
		return domain.NewValidationError("work", "work cannot be nil")
	}
	if work.ID == uuid.Nil {
		return domain.NewValidationError("id", "work ID is required")
	}
	if work.Title == "" {
		return domain.NewValidationError("title", "title is required")
	}

	query := `
		INSERT INTO works (id, external_id, title, author, narrator, duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		work.ID, work.ExternalID, work.Title, work.Author,
		work.Narrator, work.DurationMinutes, work.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create work: %w", err)
	}
	return nil
}

// Get retrieves a work by ID.
func (r *PgWorkRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Work, error) {
	query := `SELECT id, external_id, title, author, narrator, duration_minutes, created_at
		FROM works WHERE id = $1`

	var work domain.Work
	err := r.db.QueryRow(ctx, query, id).Scan(
		&work.ID, &work.ExternalID, &work.Title, &work.Author,
		&work.Narrator, &work.DurationMinutes, &work.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "work", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get work: %w", err)
	}
	return &work, nil
}

// FindByExternalID retrieves a work by its ASIN/ISBN.
func (r *PgWorkRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Work, error) {
	if externalID == "" {
		return nil, domain.NewValidationError("external_id", "external ID is required")
	}

	query := `SELECT id, external_id, title, author, narrator, duration_minutes, created_at
		FROM works WHERE external_id = $1`

	var work domain.Work
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&work.ID, &work.ExternalID, &work.Title, &work.Author,
		&work.Narrator, &work.DurationMinutes, &work.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "work", ID: externalID}
		}
		return nil, fmt.Errorf("failed to find work: %w", err)
	}
	return &work, nil
}
