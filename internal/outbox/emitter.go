package outbox

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
)

// Emitter persists lifecycle effects as outbox events.
type Emitter struct {
	repo   Repository
	logger zerolog.Logger
}

// NewEmitter creates an emitter over the given outbox repository.
func NewEmitter(repo Repository, logger zerolog.Logger) *Emitter {
	return &Emitter{
		repo:   repo,
		logger: logger.With().Str("component", "outbox").Logger(),
	}
}

// EmitEffects stores every effect as an outbox event. Pass the surrounding
// transaction as db to make the events atomic with the state change that
// produced them; pass nil outside a transaction.
func (e *Emitter) EmitEffects(ctx context.Context, db database.DBTX, effects []lifecycle.Effect) error {
	for _, eff := range effects {
		event, err := eff.OutboxEvent()
		if err != nil {
			return fmt.Errorf("failed to build outbox event: %w", err)
		}
		if err := e.repo.Insert(ctx, db, event); err != nil {
			return err
		}
		e.logger.Debug().
			Str("event_type", event.EventType).
			Str("aggregate_id", event.AggregateID).
			Msg("Effect queued in outbox")
	}
	return nil
}
