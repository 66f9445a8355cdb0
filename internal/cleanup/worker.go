// Package cleanup runs the periodic pass that finishes kept-seeding
// disposals: downloads whose request was deleted while a seeding obligation
// was still open are removed from the client once the obligation is met.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
)

// DefaultInterval is how often the cleanup pass runs.
const DefaultInterval = 15 * time.Minute

// Disposer finishes deferred disposals; satisfied by *lifecycle.Manager.
type Disposer interface {
	DisposeKeptSeeding(ctx context.Context) (int, error)
}

// Worker periodically disposes kept-seeding downloads.
type Worker struct {
	disposer Disposer
	interval time.Duration
	logger   zerolog.Logger
}

// NewWorker creates a cleanup worker.
func NewWorker(disposer Disposer, cfg *config.CleanupConfig, logger zerolog.Logger) *Worker {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Worker{
		disposer: disposer,
		interval: interval,
		logger:   logger.With().Str("component", "cleanup").Logger(),
	}
}

// Run executes cleanup passes until the context is cancelled. A failing pass
// is logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("Cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Cleanup worker stopped")
			return ctx.Err()
		case <-ticker.C:
			disposed, err := w.disposer.DisposeKeptSeeding(ctx)
			if err != nil {
				w.logger.Error().Err(err).Msg("Cleanup pass failed")
				continue
			}
			if disposed > 0 {
				w.logger.Info().Int("disposed", disposed).Msg("Cleanup pass finished")
			}
		}
	}
}
