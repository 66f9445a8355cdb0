// Package main provides the entry point for the Shelfarr background worker:
// the seeding-cleanup sweeper and the outbox publisher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shelfarr/shelfarr/internal/cleanup"
	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/downloadclient"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
	"github.com/shelfarr/shelfarr/internal/observability"
	"github.com/shelfarr/shelfarr/internal/outbox"
	"github.com/shelfarr/shelfarr/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("shelfarr worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	metrics := observability.NewMetrics()

	requests := repository.NewPgRequestRepository(db)
	works := repository.NewPgWorkRepository(db)
	downloads := repository.NewPgDownloadRepository(db)
	outboxRepo := outbox.NewPgRepository(db)

	dlClient := downloadclient.NewClient(&cfg.DownloadClient, logger)
	files := lifecycle.NewMediaStore(cfg.Media.RootDir, logger)
	manager := lifecycle.NewManager(requests, downloads, works, dlClient, files,
		lifecycle.NewApprovalPolicy(cfg.Approval), cfg.Indexers, metrics, logger)

	var wg sync.WaitGroup

	sweeper := cleanup.NewWorker(manager, &cfg.Cleanup, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := sweeper.Run(ctx); runErr != nil {
			logger.Error().Err(runErr).Msg("cleanup worker stopped with error")
		}
	}()

	if cfg.Kafka.Enabled {
		publisher := outbox.NewKafkaPublisher(&cfg.Kafka)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()

		processor := outbox.NewProcessor(outboxRepo, publisher, &cfg.Outbox, metrics, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if runErr := processor.Run(ctx); runErr != nil {
				logger.Error().Err(runErr).Msg("outbox processor stopped with error")
			}
		}()
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).
			Msg("outbox processor started")
	} else {
		logger.Warn().Msg("kafka disabled, outbox events will accumulate unpublished")
	}

	logger.Info().Msg("shelfarr worker is ready")

	<-ctx.Done()
	logger.Info().Msg("received shutdown signal")
	wg.Wait()

	logger.Info().Msg("shelfarr worker shutdown complete")
	return nil
}
