// Package store persists analysis runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var ErrRunNotFound = errors.New("run not found")

// Store is a SQLite-backed run history
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates the database directory if needed, opens the database and
// applies pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the database file location
func (s *Store) Path() string {
	return s.dbPath
}

// ExpectedSchemaVersion is the schema version Migrate brings a database to
const ExpectedSchemaVersion = 2

type migration struct {
	Version     int
	Description string
	Queries     []string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		Queries: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				config_hash TEXT NOT NULL,
				treatment TEXT NOT NULL,
				outcome TEXT NOT NULL,
				comparisons INTEGER NOT NULL,
				failures INTEGER NOT NULL,
				result_json TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		},
	},
	{
		Version:     2,
		Description: "Per-comparison summary rows",
		Queries: []string{
			`CREATE TABLE IF NOT EXISTS comparisons (
				run_id TEXT NOT NULL,
				control TEXT NOT NULL,
				level_did REAL,
				level_p REAL,
				slope_did REAL,
				slope_p REAL,
				trends_verdict TEXT,
				ratio_ci_upper REAL,
				errors INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (run_id, control),
				FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_config ON runs(config_hash)`,
		},
	},
}

// Migrate applies every migration newer than the database's user_version
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for _, q := range m.Queries {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d failed: %w", m.Version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
		slog.Debug("Applied migration", "version", m.Version, "description", m.Description)
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}
