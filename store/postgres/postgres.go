/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, with the same semantics as store/sqlite.

DIALECT DIFFERENCES:
  - $n placeholders, DATE and TIMESTAMPTZ columns
  - as-of reads use DISTINCT ON instead of a MAX() self-join
  - materialization takes a transaction-scoped advisory lock per date
    before its INSERT ... SELECT ... WHERE NOT EXISTS. Under READ
    COMMITTED two concurrent anti-joins can both see "no row"; the lock
    makes the second wait and then see the first one's rows.
  - status edits lock the deputy row with SELECT ... FOR UPDATE
  - optional deputy columns are probed through information_schema.columns

SEE ALSO:
  - store/sqlite/sqlite.go: Default backend, schema notes
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/warp/court-roster/config"
)

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects, sizes the pool, pings and creates the schema.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewWithDB(db)
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an open handle without touching the schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deputies (
		full_name TEXT PRIMARY KEY,
		email TEXT,
		capacity_tag TEXT,
		status TEXT,
		division TEXT,
		rank TEXT
	);

	CREATE TABLE IF NOT EXISTS staffing_events (
		staffing_date DATE NOT NULL,
		row_number INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		deputy_name TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (staffing_date, row_number, column_name)
	);

	CREATE INDEX IF NOT EXISTS idx_staffing_events_column_date
		ON staffing_events(column_name, staffing_date);

	CREATE TABLE IF NOT EXISTS court_assignment_templates (
		id BIGSERIAL PRIMARY KEY,
		courthouse TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		location_group TEXT,
		location_detail TEXT,
		part TEXT,
		judge_name TEXT,
		shift_time TEXT,
		assignment_notes TEXT
	);

	CREATE TABLE IF NOT EXISTS court_assignments (
		id BIGSERIAL PRIMARY KEY,
		assignment_date DATE NOT NULL,
		courthouse TEXT NOT NULL,
		assignment_type TEXT NOT NULL,
		location_group TEXT,
		location_detail TEXT,
		part TEXT,
		judge_name TEXT,
		shift_time TEXT,
		assigned_member TEXT,
		assignment_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_court_assignments_date_courthouse
		ON court_assignments(assignment_date, courthouse);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// params collects positional arguments and hands out their $n placeholders.
type params struct {
	vals []any
}

func (p *params) add(v any) string {
	p.vals = append(p.vals, v)
	return "$" + strconv.Itoa(len(p.vals))
}

func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(s))
	return "%" + s + "%"
}
