// Package main provides the Shelfarr schema migration tool.
//
// Usage:
//
//	migrate [-path DIR] up         apply all pending migrations
//	migrate [-path DIR] down       roll back all migrations
//	migrate [-path DIR] version    print the current schema version
//	migrate [-path DIR] force N    mark version N as applied after a failed run
//
// Database settings come from the usual SHELFARR_DATABASE_* environment
// variables; -path overrides SHELFARR_DATABASE_MIGRATION_PATH.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/observability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: migrate [-path DIR] up|down|version|force N")
	fs.PrintDefaults()
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	pathOverride := fs.String("path", "", "migrations directory (default: SHELFARR_DATABASE_MIGRATION_PATH)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := fs.Arg(0)
	if command == "" {
		usage(fs)
		return fmt.Errorf("no command given")
	}

	var forceVersion int
	switch command {
	case "up", "down", "version":
		if fs.NArg() > 1 {
			return fmt.Errorf("%s takes no arguments", command)
		}
	case "force":
		if fs.NArg() != 2 {
			return fmt.Errorf("force requires a version number")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version %q", fs.Arg(1))
		}
		forceVersion = v
	default:
		usage(fs)
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
	logger = logger.With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if *pathOverride != "" {
		migrationDir = *pathOverride
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch command {
	case "up":
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		logger.Warn().Msg("rolling back all migrations")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "force":
		logger.Warn().Int("version", forceVersion).Msg("forcing schema version")
		if err := migrator.Force(forceVersion); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	case "version":
		// Fall through to the version report below.
	}

	reportVersion(migrator, logger)
	return nil
}

// reportVersion logs the schema version the database is currently at.
func reportVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
