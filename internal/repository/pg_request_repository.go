package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// Compile-time interface verification.
var _ RequestRepository = (*PgRequestRepository)(nil)

// requestColumns is the column list shared by every request SELECT.
const requestColumns = `id, work_id, user_id, status, selected_candidate, priority, progress,
	created_at, updated_at, deleted_at, deleted_by`

// PgRequestRepository is a PostgreSQL implementation of RequestRepository.
type PgRequestRepository struct {
	db DBTX
}

// NewPgRequestRepository creates a new PostgreSQL request repository.
func NewPgRequestRepository(db DBTX) *PgRequestRepository {
	return &PgRequestRepository{db: db}
}

// Create inserts a new request.
func (r *PgRequestRepository) Create(ctx context.Context, request *domain.Request) error {
	if request == nil {
		return domain.NewValidationError("request", "request cannot be nil")
	}
	if request.ID == uuid.Nil {
		return domain.NewValidationError("id", "request ID is required")
	}
	if request.WorkID == uuid.Nil {
		return domain.NewValidationError("work_id", "work ID is required")
	}
	if request.UserID == "" {
		return domain.NewValidationError("user_id", "user ID is required")
	}

	query := `
		INSERT INTO requests (
			id, work_id, user_id, status, selected_candidate, priority, progress,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		request.ID, request.WorkID, request.UserID, request.Status,
		request.SelectedCandidate, request.Priority, request.Progress,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID, including soft-deleted rows.
func (r *PgRequestRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	request, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "request", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

// FindActiveByWorkAndUser returns the non-soft-deleted request for the given
// work and user.
func (r *PgRequestRepository) FindActiveByWorkAndUser(ctx context.Context, workID uuid.UUID, userID string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE work_id = $1 AND user_id = $2 AND deleted_at IS NULL`

	request, err := scanRequest(r.db.QueryRow(ctx, query, workID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "request", ID: workID.String()}
		}
		return nil, fmt.Errorf("failed to find active request: %w", err)
	}
	return request, nil
}

// CompareAndSetStatus transitions the request status with an optimistic
// concurrency check. The WHERE clause on the expected status makes the
// read-validate-write sequence a single atomic operation; a lost race
// surfaces as domain.ErrConflict rather than a silent double transition.
func (r *PgRequestRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.RequestStatus, candidate []byte) error {
	var tag pgconn.CommandTag
	var err error

	if candidate != nil {
		query := `UPDATE requests
			SET status = $1, selected_candidate = $2, updated_at = now()
			WHERE id = $3 AND status = $4 AND deleted_at IS NULL`
		tag, err = r.db.Exec(ctx, query, next, candidate, id, expected)
	} else {
		query := `UPDATE requests
			SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3 AND deleted_at IS NULL`
		tag, err = r.db.Exec(ctx, query, next, id, expected)
	}
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost race.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("request %s: status is no longer %s: %w", id, expected, domain.ErrConflict)
	}
	return nil
}

// UpdateProgress stores download progress without touching status.
func (r *PgRequestRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	query := `UPDATE requests SET progress = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update request progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "request", ID: id.String()}
	}
	return nil
}

// SoftDelete marks the request deleted. Idempotent for already-deleted rows.
func (r *PgRequestRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error {
	query := `UPDATE requests SET deleted_at = now(), deleted_by = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, deletedBy, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already deleted; only the former is an error.
		existing, getErr := r.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.Deleted() {
			return nil
		}
		return fmt.Errorf("failed to soft-delete request %s", id)
	}
	return nil
}

// List retrieves requests matching the filter, newest first.
func (r *PgRequestRepository) List(ctx context.Context, filter RequestFilter) ([]*domain.Request, error) {
	var conditions []string
	var args []interface{}
	arg := 1

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", arg))
		args = append(args, filter.UserID)
		arg++
	}
	if len(filter.Status) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", arg))
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		arg++
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", arg, arg+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return requests, nil
}

// scanRequest scans a request from a row.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	var request domain.Request
	var deletedAt *time.Time

	err := row.Scan(
		&request.ID, &request.WorkID, &request.UserID, &request.Status,
		&request.SelectedCandidate, &request.Priority, &request.Progress,
		&request.CreatedAt, &request.UpdatedAt, &deletedAt, &request.DeletedBy,
	)
	if err != nil {
		return nil, err
	}
	request.DeletedAt = deletedAt
	return &request, nil
}
