/*
Package staffing keeps the staffing grid as a dated event log.

PURPOSE:
  Each grid cell (row_number, column_name) is written as a dated fact
  (staffing_date, row_number, column_name) -> deputy_name. The grid shown
  for any day is reconstructed from that sparse history: a cell set on
  day 1 is still visible on day 50 unless a later-dated fact at or before
  day 50 overwrote it.

KEY RULES:
  1. ONE FACT PER KEY: Writing the same (date, row, column) again replaces
     the value (last write wins). It never appends a duplicate.
  2. AS-OF READS: For every cell with at least one fact on or before the
     queried date, the fact with the greatest date not after it wins.
     Cells with no such fact are omitted, not defaulted.
  3. CARRY FORWARD: Copies one column from the latest earlier date that
     has data for it onto the target date. Repeating it is a no-op
     because every copy is a keyed upsert.

CONCURRENCY:
  No locking here. Writes are single keyed upserts and the carry-forward
  copy is a single statement in the SQL backends.

SEE ALSO:
  - store/sqlite/staffing.go: SQLite implementation
  - store/postgres/staffing.go: PostgreSQL implementation
*/
package staffing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/court-roster/roster"
)

// =============================================================================
// TYPES
// =============================================================================

// Record is one stored fact.
type Record struct {
	Date       roster.Date
	Row        int
	Column     string
	DeputyName string
}

// Cell is one grid value as of some date.
type Cell struct {
	Row        int    `json:"row_number"`
	Column     string `json:"column_name"`
	DeputyName string `json:"deputy_name"`
}

// CarryStatus is the outcome of a carry-forward.
type CarryStatus string

const (
	CarrySuccess        CarryStatus = "success"
	CarryNoPreviousData CarryStatus = "no_previous_data"
)

// CarryResult describes what a carry-forward did.
type CarryResult struct {
	Status     CarryStatus
	SourceDate roster.Date // zero when Status is CarryNoPreviousData
	Copied     int64
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists staffing facts. Implementations must make PutCell and
// CopyColumn atomic with respect to the (date, row, column) key.
type Store interface {
	// PutCell inserts the fact or overwrites the deputy for an existing key.
	PutCell(ctx context.Context, rec Record) error

	// GetCell returns the fact written exactly on day, or nil.
	GetCell(ctx context.Context, day roster.Date, row int, column string) (*Record, error)

	// CellsAsOf returns the latest fact per (row, column) with date <= asOf,
	// ordered by row then column.
	CellsAsOf(ctx context.Context, asOf roster.Date) ([]Cell, error)

	// PreviousDate returns the greatest date strictly before `before` that
	// has any fact for column.
	PreviousDate(ctx context.Context, column string, before roster.Date) (roster.Date, bool, error)

	// CopyColumn upserts every fact of column on `from` onto `to`.
	CopyColumn(ctx context.Context, column string, from, to roster.Date) (int64, error)
}

// =============================================================================
// LOG
// =============================================================================

// Log is the staffing event log.
type Log struct {
	store  Store
	logger *zap.Logger
}

// NewLog creates a log over the given store.
func NewLog(store Store, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{store: store, logger: logger.Named("staffing")}
}

// Write records deputyName in the cell for the given date. An empty name
// is a valid value and clears the cell from that date on.
func (l *Log) Write(ctx context.Context, day roster.Date, row int, column, deputyName string) error {
	rec := Record{Date: day, Row: row, Column: strings.TrimSpace(column), DeputyName: deputyName}
	if err := validateKey(rec.Date, rec.Row, rec.Column); err != nil {
		return err
	}

	if err := l.store.PutCell(ctx, rec); err != nil {
		return roster.Storage("write staffing cell", err)
	}

	l.logger.Debug("staffing cell written",
		zap.Stringer("date", day),
		zap.Int("row", row),
		zap.String("column", rec.Column),
	)
	return nil
}

// Lookup returns the fact written exactly on day, or nil when that date
// has no fact for the cell.
func (l *Log) Lookup(ctx context.Context, day roster.Date, row int, column string) (*Record, error) {
	column = strings.TrimSpace(column)
	if err := validateKey(day, row, column); err != nil {
		return nil, err
	}

	rec, err := l.store.GetCell(ctx, day, row, column)
	if err != nil {
		return nil, roster.Storage("lookup staffing cell", err)
	}
	return rec, nil
}

// ReadEffective reconstructs the grid as of the given date.
func (l *Log) ReadEffective(ctx context.Context, asOf roster.Date) ([]Cell, error) {
	if asOf.IsZero() {
		return nil, &roster.ValidationError{Field: "as_of", Message: "date is required"}
	}

	cells, err := l.store.CellsAsOf(ctx, asOf)
	if err != nil {
		return nil, roster.Storage("read staffing as of", err)
	}
	if cells == nil {
		cells = []Cell{}
	}
	return cells, nil
}

// CarryForward copies column from the most recent earlier date that has
// data for it onto target. With no earlier data nothing is written and the
// result status is CarryNoPreviousData.
func (l *Log) CarryForward(ctx context.Context, target roster.Date, column string) (CarryResult, error) {
	column = strings.TrimSpace(column)
	if target.IsZero() {
		return CarryResult{}, &roster.ValidationError{Field: "date", Message: "date is required"}
	}
	if column == "" {
		return CarryResult{}, &roster.ValidationError{Field: "column_name", Message: "column is required"}
	}

	source, found, err := l.store.PreviousDate(ctx, column, target)
	if err != nil {
		return CarryResult{}, roster.Storage("find previous staffing date", err)
	}
	if !found {
		l.logger.Info("carry forward found no previous data",
			zap.Stringer("date", target),
			zap.String("column", column),
		)
		return CarryResult{Status: CarryNoPreviousData}, nil
	}

	copied, err := l.store.CopyColumn(ctx, column, source, target)
	if err != nil {
		return CarryResult{}, roster.Storage("carry staffing forward", err)
	}

	l.logger.Info("staffing carried forward",
		zap.Stringer("from", source),
		zap.Stringer("to", target),
		zap.String("column", column),
		zap.Int64("copied", copied),
	)
	return CarryResult{Status: CarrySuccess, SourceDate: source, Copied: copied}, nil
}

func validateKey(day roster.Date, row int, column string) error {
	if day.IsZero() {
		return &roster.ValidationError{Field: "date", Message: "date is required"}
	}
	if row < 0 {
		return &roster.ValidationError{Field: "row_number", Message: fmt.Sprintf("must not be negative, got %d", row)}
	}
	if column == "" {
		return &roster.ValidationError{Field: "column_name", Message: "column is required"}
	}
	return nil
}
