// Package store is the relational repository (spec.md §4.A): durable state
// for runs, events, permissions, tools, skills, memory, pending messages,
// metrics, and browser sessions/audits, with upsert-by-natural-key
// semantics, a WAL-mode SQLite connection, and schema_version bookkeeping.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection plus migration bookkeeping.
type Store struct {
	DB *sql.DB
}

// Config configures the underlying SQLite connection.
type Config struct {
	Path        string
	JournalMode string
	BusyTimeoutMS int
	ForeignKeys bool
}

// Open opens or creates the database at cfg.Path, applying WAL journaling
// and a busy timeout, then runs migrations.
func Open(cfg Config) (*Store, error) {
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeoutMS == 0 {
		cfg.BusyTimeoutMS = 5000
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", cfg.Path, cfg.JournalMode, cfg.BusyTimeoutMS)
	if cfg.ForeignKeys {
		dsn += "&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	if _, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if _, err := s.DB.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var current int
	if err := s.DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current == 0 {
		if _, err := s.DB.Exec(`INSERT INTO schema_version (version) VALUES (1)`); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// Health returns a small connection-pool status map.
func (s *Store) Health() map[string]any {
	stats := s.DB.Stats()
	return map[string]any{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}
}
