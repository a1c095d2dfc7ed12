// Package store persists articles and snippets in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Driver names accepted in Config.Driver.
const (
	// DriverSQLite is the pure Go modernc.org/sqlite driver.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo github.com/mattn/go-sqlite3 driver.
	DriverSQLite3 = "sqlite3"
)

// Config describes the database to open.
type Config struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	// Reset drops and recreates the tables on open.
	Reset bool `mapstructure:"reset" yaml:"reset"`
	// Attempts bounds how often a unit of work is tried when it keeps
	// failing with transient errors.
	Attempts uint          `mapstructure:"attempts" yaml:"attempts,omitempty"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay,omitempty"`

	Logger *slog.Logger `mapstructure:"-" yaml:"-" json:"-"`
}

// Store is a handle on the snippets database.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	attempts uint
	delay    time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	page_id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snippets (
	id TEXT PRIMARY KEY,
	snippet TEXT NOT NULL,
	section TEXT NOT NULL,
	article_id TEXT NOT NULL REFERENCES articles(page_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_snippets_article ON snippets(article_id);
`

// Open opens (creating if needed) the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := registerFunctions(); err != nil {
		return nil, err
	}

	var driver string
	switch cfg.Driver {
	case "", DriverSQLite:
		driver = DriverSQLite
	case DriverSQLite3:
		driver = sqlite3Driver
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if cfg.Path == "" {
		return nil, errors.New("no database path")
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := sql.Open(driver, cfg.Path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps the pragmas in effect and serializes
	// writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if cfg.Reset {
		if _, err := db.ExecContext(ctx,
			"DROP TABLE IF EXISTS snippets; DROP TABLE IF EXISTS articles;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("resetting database: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, log: cfg.Logger, attempts: cfg.Attempts, delay: cfg.Delay}, nil
}

// DB exposes the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
