// Package outbox implements the transactional outbox: lifecycle effects are
// persisted next to the state change that produced them, and a poller
// delivers them to the broker. Queue retry semantics live with the broker
// consumer, not here.
package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/domain"
)

// Repository persists and drains outbox events.
type Repository interface {
	// Insert stores an event. Pass the surrounding transaction as db to make
	// the insert atomic with the state change that produced the event.
	Insert(ctx context.Context, db database.DBTX, event *domain.OutboxEvent) error

	// FetchUnpublished returns up to limit undelivered events, oldest first,
	// skipping events that have exhausted maxAttempts.
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]*domain.OutboxEvent, error)

	// MarkPublished records successful delivery.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// RecordFailure increments the delivery attempt counter.
	RecordFailure(ctx context.Context, id uuid.UUID) error
}

// Compile-time interface verification.
var _ Repository = (*PgRepository)(nil)

// PgRepository is a PostgreSQL implementation of Repository.
type PgRepository struct {
	db database.DBTX
}

// NewPgRepository creates a PostgreSQL outbox repository. The given db is
// used for every operation that does not supply its own transaction.
func NewPgRepository(db database.DBTX) *PgRepository {
	return &PgRepository{db: db}
}

// Insert stores an event, inside the given transaction when one is supplied.
func (r *PgRepository) Insert(ctx context.Context, db database.DBTX, event *domain.OutboxEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if db == nil {
		db = r.db
	}

	query := `
		INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.Exec(ctx, query,
		event.EventID, event.AggregateID, event.AggregateType,
		event.EventType, event.Payload, event.CreatedAt, event.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchUnpublished returns undelivered events, oldest first.
func (r *PgRepository) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]*domain.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		err := rows.Scan(
			&event.EventID, &event.AggregateID, &event.AggregateType,
			&event.EventType, &event.Payload, &event.CreatedAt,
			&event.PublishedAt, &event.Attempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkPublished records successful delivery.
func (r *PgRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET published_at = now() WHERE id = $1 AND published_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missing(ctx, id)
	}
	return nil
}

// RecordFailure increments the delivery attempt counter.
func (r *PgRepository) RecordFailure(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET attempts = attempts + 1 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox delivery failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "outbox event", ID: id.String()}
	}
	return nil
}

// missing distinguishes an absent row from an already-published one.
func (r *PgRepository) missing(ctx context.Context, id uuid.UUID) error {
	var publishedAt interface{}
	err := r.db.QueryRow(ctx, `SELECT published_at FROM outbox_events WHERE id = $1`, id).Scan(&publishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.NotFoundError{Entity: "outbox event", ID: id.String()}
		}
		return fmt.Errorf("failed to check outbox event: %w", err)
	}
	// Already published; marking again is a no-op.
	return nil
}
