package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/observability"
)

const (
	// DefaultPollInterval is how often the processor drains the outbox.
	DefaultPollInterval = 5 * time.Second

	// DefaultBatchSize is the maximum events fetched per poll.
	DefaultBatchSize = 100

	// DefaultMaxAttempts is the delivery attempt limit per event. Events that
	// exhaust it stay in the table for manual inspection.
	DefaultMaxAttempts = 5
)

// Processor polls unpublished events and delivers them to the broker.
type Processor struct {
	repo        Repository
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewProcessor creates an outbox processor.
func NewProcessor(repo Repository, publisher Publisher, cfg *config.OutboxConfig, metrics *observability.Metrics, logger zerolog.Logger) *Processor {
	interval := cfg.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Processor{
		repo:        repo,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger.With().Str("component", "outbox-processor").Logger(),
	}
}

// Run polls until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("Outbox processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Outbox processor stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Outbox drain failed")
			}
		}
	}
}

// Drain delivers one batch of unpublished events. Per-event delivery failures
// are recorded and skipped; they do not abort the batch. Returns the number
// of events delivered.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	events, err := p.repo.FetchUnpublished(ctx, p.batchSize, p.maxAttempts)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}

		if err := p.publisher.Publish(ctx, event); err != nil {
			p.logger.Warn().
				Err(err).
				Str("event_id", event.EventID.String()).
				Str("event_type", event.EventType).
				Int("attempts", event.Attempts+1).
				Msg("Event delivery failed")
			if p.metrics != nil {
				p.metrics.OutboxFailed.Inc()
			}
			if err := p.repo.RecordFailure(ctx, event.EventID); err != nil {
				p.logger.Error().Err(err).Str("event_id", event.EventID.String()).
					Msg("Failed to record delivery failure")
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, event.EventID); err != nil {
			// The event went out but the bookkeeping failed; the next pass
			// will redeliver. Consumers must tolerate duplicates.
			p.logger.Error().Err(err).Str("event_id", event.EventID.String()).
				Msg("Failed to mark event published")
			continue
		}
		if p.metrics != nil {
			p.metrics.OutboxPublished.Inc()
		}
		published++
	}
	return published, nil
}
