//go:build integration

// Package integration exercises the PostgreSQL repositories against a real
// database. A disposable container is started per test run unless
// SHELFARR_TEST_DB_HOST points at an existing server.
package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
)

const (
	testDBName     = "shelfarr_test"
	testDBUser     = "shelfarr"
	testDBPassword = "shelfarr"
)

var (
	testDB   *database.DB
	testPool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dbCfg := config.DatabaseConfig{
		Host:            os.Getenv("SHELFARR_TEST_DB_HOST"),
		Port:            5432,
		User:            testDBUser,
		Password:        testDBPassword,
		Name:            testDBName,
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
	}
	if port := os.Getenv("SHELFARR_TEST_DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SHELFARR_TEST_DB_PORT: %v\n", err)
			return 1
		}
		dbCfg.Port = p
	}

	if dbCfg.Host == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase(testDBName),
			tcpostgres.WithUsername(testDBUser),
			tcpostgres.WithPassword(testDBPassword),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			return 1
		}
		defer func() {
			if termErr := testcontainers.TerminateContainer(container); termErr != nil {
				fmt.Fprintf(os.Stderr, "failed to terminate postgres container: %v\n", termErr)
			}
		}()

		host, err := container.Host(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve container host: %v\n", err)
			return 1
		}
		mapped, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve container port: %v\n", err)
			return 1
		}
		dbCfg.Host = host
		dbCfg.Port = mapped.Int()
	}

	db, err := database.New(ctx, &dbCfg, zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		return 1
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		return 1
	}
	if err := migrator.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close migrator: %v\n", err)
		return 1
	}

	testDB = db
	testPool = db.Pool()

	return m.Run()
}

// cleanTable truncates the given tables between tests. CASCADE handles
// foreign key dependencies.
func cleanTable(t *testing.T, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := testPool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}
