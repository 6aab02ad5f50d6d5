package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
)

// =============================================================================
// STAFFING STORE (staffing.Store interface)
// =============================================================================

const upsertStaffingEvent = `
	ON CONFLICT(staffing_date, row_number, column_name) DO UPDATE SET
		deputy_name = excluded.deputy_name,
		updated_at = excluded.updated_at
`

// PutCell upserts one fact by its composite key.
func (s *Store) PutCell(ctx context.Context, rec staffing.Record) error {
	query := `
		INSERT INTO staffing_events (staffing_date, row_number, column_name, deputy_name, updated_at)
		VALUES (?, ?, ?, ?, ?)
	` + upsertStaffingEvent

	_, err := s.db.ExecContext(ctx, query,
		rec.Date.String(), rec.Row, rec.Column, rec.DeputyName, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write staffing event: %w", err)
	}
	return nil
}

// GetCell returns the fact written exactly on day.
func (s *Store) GetCell(ctx context.Context, day roster.Date, row int, column string) (*staffing.Record, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT deputy_name FROM staffing_events WHERE staffing_date = ? AND row_number = ? AND column_name = ?",
		day.String(), row, column,
	).Scan(&name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &staffing.Record{Date: day, Row: row, Column: column, DeputyName: name.String}, nil
}

// CellsAsOf joins every cell to its latest fact on or before asOf.
func (s *Store) CellsAsOf(ctx context.Context, asOf roster.Date) ([]staffing.Cell, error) {
	query := `
		SELECT e.row_number, e.column_name, COALESCE(e.deputy_name, '')
		FROM staffing_events e
		JOIN (
			SELECT row_number, column_name, MAX(staffing_date) AS latest
			FROM staffing_events
			WHERE staffing_date <= ?
			GROUP BY row_number, column_name
		) m ON e.row_number = m.row_number
		   AND e.column_name = m.column_name
		   AND e.staffing_date = m.latest
		ORDER BY e.row_number, e.column_name
	`

	rows, err := s.db.QueryContext(ctx, query, asOf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query staffing as of %s: %w", asOf, err)
	}
	defer rows.Close()

	var cells []staffing.Cell
	for rows.Next() {
		var c staffing.Cell
		if err := rows.Scan(&c.Row, &c.Column, &c.DeputyName); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// PreviousDate returns the latest date before `before` with data for column.
func (s *Store) PreviousDate(ctx context.Context, column string, before roster.Date) (roster.Date, bool, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(staffing_date) FROM staffing_events WHERE column_name = ? AND staffing_date < ?",
		column, before.String(),
	).Scan(&latest)
	if err != nil {
		return roster.Date{}, false, err
	}
	if !latest.Valid {
		return roster.Date{}, false, nil
	}

	d, err := roster.ParseDate(latest.String)
	if err != nil {
		return roster.Date{}, false, err
	}
	return d, true, nil
}

// CopyColumn upserts column's facts from one date onto another in one
// statement.
func (s *Store) CopyColumn(ctx context.Context, column string, from, to roster.Date) (int64, error) {
	query := `
		INSERT INTO staffing_events (staffing_date, row_number, column_name, deputy_name, updated_at)
		SELECT ?, row_number, column_name, deputy_name, ?
		FROM staffing_events
		WHERE column_name = ? AND staffing_date = ?
	` + upsertStaffingEvent

	result, err := s.db.ExecContext(ctx, query, to.String(), now(), column, from.String())
	if err != nil {
		return 0, fmt.Errorf("failed to copy staffing column: %w", err)
	}
	return result.RowsAffected()
}
