package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// RequestRepository handles acquisition request persistence. Status writes go
// through CompareAndSetStatus so concurrent transitions on the same request
// resolve to exactly one winner; soft-deleted rows are invisible to every
// query except audit listing.
type RequestRepository interface {
	// Create inserts a new request.
	// Returns domain.ErrInvalidInput if required fields are missing.
	Create(ctx context.Context, request *domain.Request) error

	// Get retrieves a request by ID, including soft-deleted rows.
	// Returns domain.ErrNotFound if no matching request exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Request, error)

	// FindActiveByWorkAndUser returns the non-soft-deleted request for the
	// given work and user, or domain.ErrNotFound when none exists. Used for
	// duplicate detection.
	FindActiveByWorkAndUser(ctx context.Context, workID uuid.UUID, userID string) (*domain.Request, error)

	// CompareAndSetStatus transitions the request from the expected current
	// status to the new status in one conditional update, optionally storing
	// the selected candidate payload when candidate is non-nil.
	// Returns domain.ErrNotFound if the request does not exist and
	// domain.ErrConflict if the current status no longer matches expected
	// (a concurrent transition won the race).
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.RequestStatus, candidate []byte) error

	// UpdateProgress stores download progress without touching status.
	// Returns domain.ErrNotFound if no active request matches.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error

	// SoftDelete marks the request deleted, recording who deleted it.
	// Idempotent: deleting an already-deleted request is not an error.
	// Returns domain.ErrNotFound if the request does not exist.
	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy string) error

	// List retrieves requests matching the filter, newest first.
	List(ctx context.Context, filter RequestFilter) ([]*domain.Request, error)
}

// RequestFilter specifies criteria for listing requests.
type RequestFilter struct {
	// UserID filters by requesting user (optional).
	UserID string

	// Status filters by one or more statuses (optional).
	Status []domain.RequestStatus

	// IncludeDeleted includes soft-deleted rows. Only the audit surface sets
	// this; every other caller sees active rows only.
	IncludeDeleted bool

	// Limit caps the number of results (default 100, max 500).
	Limit int

	// Offset is the pagination offset.
	Offset int
}
