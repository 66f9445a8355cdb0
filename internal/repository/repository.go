// Package repository provides data access interfaces and PostgreSQL
// implementations for Shelfarr.
//
// Repositories follow the repository pattern over the DBTX interface, which
// both *pgxpool.Pool and pgx.Tx satisfy, so every method works inside or
// outside a transaction. All methods return domain-specific errors: wrap
// database errors with fmt.Errorf and %w, map missing rows to
// domain.ErrNotFound, and map lost conditional updates to domain.ErrConflict.
//
// All implementations are safe for concurrent use; the underlying pgxpool
// handles connection pooling and synchronization.
package repository

import (
	"github.com/shelfarr/shelfarr/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts.
type DBTX = database.DBTX

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)
