// Package store provides the embedded SQLite persistence layer for roadmap
// sessions and their child entities.
//
// The database runs in embedded mode with WAL for concurrent reads. Deleting
// a session cascades to items, segments, dependencies, themes, and
// milestones through foreign keys. The session status column doubles as the
// pipeline lock: TransitionStatus performs the optimistic compare-and-set
// that keeps at most one run active per session.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic version check fails on
// a segment write.
var ErrVersionConflict = errors.New("version conflict")

// Store wraps the SQLite connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates a connection at the given path, creating the parent
// directory and the schema as needed. The caller must Close it.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.db = nil
	return nil
}

// InitSchema creates all tables and indexes. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		sprint_length_weeks INTEGER NOT NULL,
		team_velocity INTEGER NOT NULL,
		team_count INTEGER NOT NULL,
		buffer_percentage REAL NOT NULL,
		start_date TEXT NOT NULL,
		artifact_ids TEXT,    -- JSON array
		feasibility_ids TEXT, -- JSON array
		ideation_ids TEXT,    -- JSON array
		custom_items TEXT,    -- JSON array
		status TEXT NOT NULL DEFAULT 'draft',
		progress_step INTEGER NOT NULL DEFAULT 0,
		progress_total INTEGER NOT NULL DEFAULT 0,
		progress_message TEXT,
		error_message TEXT,
		has_cycles INTEGER NOT NULL DEFAULT 0,
		cycle_items TEXT, -- JSON array
		total_items INTEGER NOT NULL DEFAULT 0,
		total_sprints INTEGER NOT NULL DEFAULT 0,
		total_themes INTEGER NOT NULL DEFAULT 0,
		total_milestones INTEGER NOT NULL DEFAULT 0,
		total_dependencies INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_artifact_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		item_type TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		effort_points INTEGER NOT NULL DEFAULT 0,
		risk_level TEXT NOT NULL,
		value_score REAL,
		sequence_order INTEGER NOT NULL DEFAULT 0,
		theme_id TEXT,
		status TEXT NOT NULL,
		is_excluded INTEGER NOT NULL DEFAULT 0,
		is_manually_positioned INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		assigned_team INTEGER NOT NULL,
		start_sprint INTEGER NOT NULL,
		sprint_count INTEGER NOT NULL,
		effort_points INTEGER NOT NULL,
		sequence_order INTEGER NOT NULL DEFAULT 0,
		row_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		is_manually_positioned INTEGER NOT NULL DEFAULT 0,
		label TEXT,
		color_override TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		from_item_id TEXT NOT NULL,
		to_item_id TEXT,
		dependency_type TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		rationale TEXT,
		is_manual INTEGER NOT NULL DEFAULT 0,
		is_validated INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS themes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		business_objective TEXT,
		success_metrics TEXT, -- JSON array
		total_effort_points INTEGER NOT NULL DEFAULT 0,
		total_items INTEGER NOT NULL DEFAULT 0,
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		theme_id TEXT,
		name TEXT NOT NULL,
		target_sprint INTEGER NOT NULL,
		target_date TEXT NOT NULL,
		status TEXT NOT NULL,
		criteria TEXT, -- JSON array
		completion_percentage REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_session ON items(session_id);
	CREATE INDEX IF NOT EXISTS idx_items_sequence ON items(session_id, sequence_order);
	CREATE INDEX IF NOT EXISTS idx_items_theme ON items(theme_id);
	CREATE INDEX IF NOT EXISTS idx_segments_item ON segments(item_id);
	CREATE INDEX IF NOT EXISTS idx_segments_placement ON segments(assigned_team, start_sprint);
	CREATE INDEX IF NOT EXISTS idx_deps_session ON dependencies(session_id);
	CREATE INDEX IF NOT EXISTS idx_deps_from ON dependencies(from_item_id);
	CREATE INDEX IF NOT EXISTS idx_deps_to ON dependencies(to_item_id);
	CREATE INDEX IF NOT EXISTS idx_themes_session ON themes(session_id);
	CREATE INDEX IF NOT EXISTS idx_milestones_session ON milestones(session_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// RawDB exposes the underlying connection for integration points that
// expect *sql.DB.
func (s *Store) RawDB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// prefixColumns rewrites a comma-separated column list to qualify each
// column with a table alias, for use in joined queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// marshalStrings serializes a string slice as a JSON column value.
func marshalStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	data, _ := json.Marshal(ss)
	return string(data)
}

// unmarshalStrings parses a JSON array column, tolerating NULL.
func unmarshalStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(ns.String), &ss); err != nil {
		return nil
	}
	if len(ss) == 0 {
		return nil
	}
	return ss
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
