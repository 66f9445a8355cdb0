// Package main provides the entry point for the Shelfarr API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/downloadclient"
	"github.com/shelfarr/shelfarr/internal/library"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
	"github.com/shelfarr/shelfarr/internal/match"
	"github.com/shelfarr/shelfarr/internal/observability"
	"github.com/shelfarr/shelfarr/internal/orchestrator"
	"github.com/shelfarr/shelfarr/internal/outbox"
	"github.com/shelfarr/shelfarr/internal/rank"
	"github.com/shelfarr/shelfarr/internal/repository"
	"github.com/shelfarr/shelfarr/internal/search"
	httpserver "github.com/shelfarr/shelfarr/internal/server/http"
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
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("shelfarr server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics()

	requests := repository.NewPgRequestRepository(db)
	works := repository.NewPgWorkRepository(db)
	downloads := repository.NewPgDownloadRepository(db)
	outboxRepo := outbox.NewPgRepository(db)

	dlClient := downloadclient.NewClient(&cfg.DownloadClient, logger)
	libClient := library.NewClient(&cfg.Library, logger)
	prowlarr := search.NewProwlarrClient(&cfg.Prowlarr, logger)
	searchSvc := search.NewService(prowlarr, cfg.IndexerGroups(), metrics, logger)

	files := lifecycle.NewMediaStore(cfg.Media.RootDir, logger)
	manager := lifecycle.NewManager(requests, downloads, works, dlClient, files,
		lifecycle.NewApprovalPolicy(cfg.Approval), cfg.Indexers, metrics, logger)

	emitter := outbox.NewEmitter(outboxRepo, logger)
	matcher := match.NewEngine(orchestrator.MatchConfigFrom(cfg.Matching), logger)
	ranker := rank.NewRanker(logger)

	orch := orchestrator.New(orchestrator.Deps{
		Requests:  requests,
		Works:     works,
		Downloads: downloads,
		Lifecycle: manager,
		Library:   libClient,
		Searcher:  searchSvc,
		Matcher:   matcher,
		Ranker:    ranker,
		Client:    dlClient,
		Effects:   emitter,
	}, orchestrator.RankConfigFrom(cfg.Ranking, cfg.Indexers, cfg.Matching.Region),
		orchestrator.TimeoutsFrom(cfg), metrics, logger)

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, manager, orch, emitter, requests, works, downloads, db, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)).
		Str("metrics_address", metricsServer.Addr).
		Msg("shelfarr is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down shelfarr")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("shelfarr shutdown complete")
	return nil
}
