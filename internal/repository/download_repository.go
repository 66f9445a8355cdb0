package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// DownloadRepository handles download-attempt persistence. A partial unique
// index guarantees at most one selected record per request.
type DownloadRepository interface {
	// Create inserts a new download record. Inserting a second selected
	// record for the same request returns domain.ErrConflict.
	Create(ctx context.Context, record *domain.DownloadRecord) error

	// GetSelectedByRequest retrieves the authoritative download record for a
	// request. Returns domain.ErrNotFound when none is selected.
	GetSelectedByRequest(ctx context.Context, requestID uuid.UUID) (*domain.DownloadRecord, error)

	// DeselectByRequest clears the selected flag on a request's current
	// authoritative record, keeping the row for history. No-op when the
	// request has no selected record.
	DeselectByRequest(ctx context.Context, requestID uuid.UUID) error

	// UpdateStatus sets the download client status of a record.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error

	// MarkAwaitingCleanup flags a record whose torrent is kept alive for
	// seeding so the cleanup worker will finish its disposal later.
	MarkAwaitingCleanup(ctx context.Context, id uuid.UUID) error

	// ClearAwaitingCleanup removes the cleanup flag after disposal finishes.
	ClearAwaitingCleanup(ctx context.Context, id uuid.UUID) error

	// ListAwaitingCleanup returns all records flagged for deferred cleanup.
	ListAwaitingCleanup(ctx context.Context) ([]*domain.DownloadRecord, error)
}

// Compile-time interface verification.
var _ DownloadRepository = (*PgDownloadRepository)(nil)

// PgDownloadRepository is a PostgreSQL implementation of DownloadRepository.
type PgDownloadRepository struct {
	db DBTX
}

// NewPgDownloadRepository creates a new PostgreSQL download repository.
func NewPgDownloadRepository(db DBTX) *PgDownloadRepository {
	return &PgDownloadRepository{db: db}
}

const downloadColumns = `id, request_id, indexer_name, torrent_name, download_client_id,
	download_status, selected, awaiting_cleanup, created_at, updated_at`

// Create inserts a new download record.
func (r *PgDownloadRepository) Create(ctx context.Context, record *domain.DownloadRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "download record cannot be nil")
	}
	if record.ID == uuid.Nil {
		return domain.NewValidationError("id", "download record ID is required")
	}
	if record.RequestID == uuid.Nil {
		return domain.NewValidationError("request_id", "request ID is required")
	}

	query := `
		INSERT INTO download_records (id, request_id, indexer_name, torrent_name,
			download_client_id, download_status, selected, awaiting_cleanup, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.RequestID, record.IndexerName, record.TorrentName,
		record.DownloadClientID, record.DownloadStatus, record.Selected,
		record.AwaitingCleanup, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("request %s already has a selected download: %w",
				record.RequestID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to create download record: %w", err)
	}
	return nil
}

// GetSelectedByRequest retrieves the authoritative download record for a request.
func (r *PgDownloadRepository) GetSelectedByRequest(ctx context.Context, requestID uuid.UUID) (*domain.DownloadRecord, error) {
	query := `SELECT ` + downloadColumns + `
		FROM download_records WHERE request_id = $1 AND selected`

	record, err := scanDownload(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "download record", ID: requestID.String()}
		}
		return nil, fmt.Errorf("failed to get selected download: %w", err)
	}
	return record, nil
}

// DeselectByRequest clears the selected flag on a request's current
// authoritative record.
func (r *PgDownloadRepository) DeselectByRequest(ctx context.Context, requestID uuid.UUID) error {
	query := `UPDATE download_records SET selected = FALSE, updated_at = now()
		WHERE request_id = $1 AND selected`

	if _, err := r.db.Exec(ctx, query, requestID); err != nil {
		return fmt.Errorf("failed to deselect download: %w", err)
	}
	return nil
}

// UpdateStatus sets the download client status of a record.
func (r *PgDownloadRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DownloadStatus) error {
	query := `UPDATE download_records SET download_status = $1, updated_at = now() WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "download record", ID: id.String()}
	}
	return nil
}

// MarkAwaitingCleanup flags a record for deferred cleanup.
func (r *PgDownloadRepository) MarkAwaitingCleanup(ctx context.Context, id uuid.UUID) error {
	return r.setAwaitingCleanup(ctx, id, true)
}

// ClearAwaitingCleanup removes the cleanup flag.
func (r *PgDownloadRepository) ClearAwaitingCleanup(ctx context.Context, id uuid.UUID) error {
	return r.setAwaitingCleanup(ctx, id, false)
}

func (r *PgDownloadRepository) setAwaitingCleanup(ctx context.Context, id uuid.UUID, flag bool) error {
	query := `UPDATE download_records SET awaiting_cleanup = $1, updated_at = now() WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, flag, id)
	if err != nil {
		return fmt.Errorf("failed to update cleanup flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "download record", ID: id.String()}
	}
	return nil
}

// ListAwaitingCleanup returns all records flagged for deferred cleanup.
func (r *PgDownloadRepository) ListAwaitingCleanup(ctx context.Context) ([]*domain.DownloadRecord, error) {
	query := `SELECT ` + downloadColumns + `
		FROM download_records WHERE awaiting_cleanup ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads awaiting cleanup: %w", err)
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		record, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download records: %w", err)
	}
	return records, nil
}

func scanDownload(row pgx.Row) (*domain.DownloadRecord, error) {
	var record domain.DownloadRecord
	err := row.Scan(
		&record.ID, &record.RequestID, &record.IndexerName, &record.TorrentName,
		&record.DownloadClientID, &record.DownloadStatus, &record.Selected,
		&record.AwaitingCleanup, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
