// Package store is the time-series store adapter (C1): a narrow typed
// upsert/select surface over SQLite continuous aggregates, with OI
// materialized natively at every timeframe and no read-time JOINs.
// Grounded on the teacher's internal/database/db.go (WAL pragmas,
// connection-pool sizing, pure-Go modernc.org/sqlite driver).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// Config configures the underlying SQLite connection.
type Config struct {
	// Path is a filesystem path, or "file::memory:?cache=shared" for an
	// in-process test database.
	Path        string
	MaxOpenConns int
}

// Store is the C1 adapter. All public methods are safe for concurrent
// use from aggregator, backfill, and query-surface callers alike.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens the database, applies WAL-mode pragmas, and configures the
// connection pool, mirroring the teacher's database.New flow.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }
