package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
)

// =============================================================================
// STAFFING STORE (staffing.Store interface)
// =============================================================================

const upsertStaffingEvent = `
	ON CONFLICT (staffing_date, row_number, column_name) DO UPDATE SET
		deputy_name = EXCLUDED.deputy_name,
		updated_at = EXCLUDED.updated_at
`

func (s *Store) PutCell(ctx context.Context, rec staffing.Record) error {
	query := `
		INSERT INTO staffing_events (staffing_date, row_number, column_name, deputy_name, updated_at)
		VALUES ($1, $2, $3, $4, now())
	` + upsertStaffingEvent

	_, err := s.db.ExecContext(ctx, query, rec.Date.String(), rec.Row, rec.Column, rec.DeputyName)
	if err != nil {
		return fmt.Errorf("failed to write staffing event: %w", err)
	}
	return nil
}

func (s *Store) GetCell(ctx context.Context, day roster.Date, row int, column string) (*staffing.Record, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT deputy_name FROM staffing_events WHERE staffing_date = $1 AND row_number = $2 AND column_name = $3",
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

// CellsAsOf keeps the newest fact per cell with DISTINCT ON.
func (s *Store) CellsAsOf(ctx context.Context, asOf roster.Date) ([]staffing.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (row_number, column_name)
		       row_number, column_name, COALESCE(deputy_name, '')
		FROM staffing_events
		WHERE staffing_date <= $1
		ORDER BY row_number, column_name, staffing_date DESC
	`, asOf.String())
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

func (s *Store) PreviousDate(ctx context.Context, column string, before roster.Date) (roster.Date, bool, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(staffing_date) FROM staffing_events WHERE column_name = $1 AND staffing_date < $2",
		column, before.String(),
	).Scan(&latest)
	if err != nil {
		return roster.Date{}, false, err
	}
	if !latest.Valid {
		return roster.Date{}, false, nil
	}
	return dateOf(latest.Time), true, nil
}

func (s *Store) CopyColumn(ctx context.Context, column string, from, to roster.Date) (int64, error) {
	query := `
		INSERT INTO staffing_events (staffing_date, row_number, column_name, deputy_name, updated_at)
		SELECT $1::date, row_number, column_name, deputy_name, now()
		FROM staffing_events
		WHERE column_name = $2 AND staffing_date = $3
	` + upsertStaffingEvent

	result, err := s.db.ExecContext(ctx, query, to.String(), column, from.String())
	if err != nil {
		return 0, fmt.Errorf("failed to copy staffing column: %w", err)
	}
	return result.RowsAffected()
}

// dateOf converts a scanned DATE column. The calendar fields are taken as
// returned; converting zones first could move the day.
func dateOf(t time.Time) roster.Date {
	return roster.FromTime(t)
}
