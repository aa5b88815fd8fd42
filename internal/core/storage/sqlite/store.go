// Package sqlite implements the storage interfaces on an embedded
// SQLite database. This is the default persistence engine: one file
// per installation, one writer, fully offline-capable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 driver
)

// Store owns the database handle shared by the event, dedup, and
// snapshot adapters.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and applies the
// required pragmas. Schema is initialized separately via
// migrations.RunMigrations.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// The connection pool is capped at one connection: SQLite supports a
// single writer, and a second connection only buys SQLITE_BUSY errors.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	slog.Info("[SQLite] Store opened", "path", path)

	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// DB returns the underlying *sql.DB. The adapters and the migration
// runner share this handle rather than opening a second connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports database health. Used by the HTTP health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Should be called during
// graceful shutdown.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
