/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements staffing.Store, assignment.Store and directory.Store on one
  SQLite database. This is the default backend; store/postgres carries the
  same semantics with PostgreSQL dialect differences.

ATOMICITY:
  Every operation that must be atomic with respect to an identity key is a
  single statement:
  - staffing writes and carry-forward: INSERT ... ON CONFLICT DO UPDATE
  - materialization: INSERT ... SELECT ... WHERE NOT EXISTS
  SQLite serializes writers, so a single statement never races another.
  Status edits are read-modify-write and run in a BEGIN IMMEDIATE
  transaction (_txlock=immediate) so the read already holds the write lock.

KEY TABLES:
  deputies:                   Directory, keyed by full_name
  staffing_events:            Staffing facts, PRIMARY KEY (date, row, column)
  court_assignment_templates: Recurring slots
  court_assignments:          Materialized slots per date

NULLS:
  Optional text is stored as NULL when empty and read back as "". Identity
  comparisons use COALESCE(col, '') so NULL and "" match.

WAL MODE:
  The database is opened with WAL and a busy timeout:
  - Multiple readers don't block
  - Single writer at a time
  - Writers wait instead of failing with SQLITE_BUSY

USAGE:
  store, err := sqlite.New("./data/roster.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is created on New() with CREATE TABLE IF NOT EXISTS. Existing
  tables are never altered, which is how older deputies tables without
  division/rank keep working.

SEE ALSO:
  - staffing/log.go, assignment/types.go, directory/directory.go: Interfaces
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	inMemory := dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle (for tests and tooling).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Deputy directory. division and rank are absent on older deployments.
	CREATE TABLE IF NOT EXISTS deputies (
		full_name TEXT PRIMARY KEY,
		email TEXT,
		capacity_tag TEXT,
		status TEXT,
		division TEXT,
		rank TEXT
	);

	-- Staffing grid as dated facts; one fact per key, last write wins
	CREATE TABLE IF NOT EXISTS staffing_events (
		staffing_date TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		deputy_name TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (staffing_date, row_number, column_name)
	);

	-- Carry-forward looks up the latest earlier date per column
	CREATE INDEX IF NOT EXISTS idx_staffing_events_column_date
		ON staffing_events(column_name, staffing_date);

	-- Recurring slots
	CREATE TABLE IF NOT EXISTS court_assignment_templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		courthouse TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		location_group TEXT,
		location_detail TEXT,
		part TEXT,
		judge_name TEXT,
		shift_time TEXT,
		assignment_notes TEXT
	);

	-- Materialized slots. No unique index: Fixed Post slots may share
	-- location_detail; materialization guards duplicates itself.
	CREATE TABLE IF NOT EXISTS court_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_date TEXT NOT NULL,
		courthouse TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		location_group TEXT,
		location_detail TEXT,
		part TEXT,
		judge_name TEXT,
		shift_time TEXT,
		assigned_member TEXT,
		assignment_notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_court_assignments_date_courthouse
		ON court_assignments(assignment_date, courthouse);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"staffing_events", "court_assignments", "court_assignment_templates", "deputies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(s))
	return "%" + s + "%"
}
