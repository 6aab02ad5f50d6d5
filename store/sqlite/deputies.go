package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/status"
)

// =============================================================================
// DEPUTY STORE (directory.Store interface)
// =============================================================================

// ProbeCapabilities reports which optional columns the deputies table has.
func (s *Store) ProbeCapabilities(ctx context.Context) (directory.Capabilities, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info('deputies')")
	if err != nil {
		return directory.Capabilities{}, fmt.Errorf("failed to inspect deputies table: %w", err)
	}
	defer rows.Close()

	var caps directory.Capabilities
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return directory.Capabilities{}, err
		}
		switch strings.ToLower(name) {
		case "division":
			caps.Division = true
		case "rank":
			caps.Rank = true
		}
	}
	return caps, rows.Err()
}

// optionalColumns lists the optional columns enabled in caps with their
// values from d.
func optionalColumns(d directory.Deputy, caps directory.Capabilities) ([]string, []any) {
	var (
		cols []string
		vals []any
	)
	if caps.Division {
		cols = append(cols, "division")
		vals = append(vals, nullString(d.Division))
	}
	if caps.Rank {
		cols = append(cols, "rank")
		vals = append(vals, nullString(d.Rank))
	}
	return cols, vals
}

// SaveDeputy inserts the deputy or updates its attributes.
func (s *Store) SaveDeputy(ctx context.Context, d directory.Deputy, caps directory.Capabilities) error {
	optCols, optVals := optionalColumns(d, caps)

	cols := append([]string{"full_name", "email", "capacity_tag"}, optCols...)
	vals := append([]any{d.FullName, nullString(d.Email), nullString(d.CapacityTag)}, optVals...)

	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}

	query := fmt.Sprintf(`
		INSERT INTO deputies (%s) VALUES (%s)
		ON CONFLICT(full_name) DO UPDATE SET %s
	`, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(updates, ", "))

	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("failed to save deputy: %w", err)
	}
	return nil
}

// UpdateDeputy updates the row named originalName, renaming it if needed.
func (s *Store) UpdateDeputy(ctx context.Context, originalName string, d directory.Deputy, caps directory.Capabilities) (bool, error) {
	optCols, optVals := optionalColumns(d, caps)

	cols := append([]string{"full_name", "email", "capacity_tag"}, optCols...)
	vals := append([]any{d.FullName, nullString(d.Email), nullString(d.CapacityTag)}, optVals...)

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}

	query := fmt.Sprintf("UPDATE deputies SET %s WHERE full_name = ?", strings.Join(sets, ", "))
	result, err := s.db.ExecContext(ctx, query, append(vals, originalName)...)
	if err != nil {
		return false, fmt.Errorf("failed to update deputy: %w", err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func selectDeputy(caps directory.Capabilities) string {
	cols := []string{"full_name", "email", "capacity_tag", "status"}
	if caps.Division {
		cols = append(cols, "division")
	}
	if caps.Rank {
		cols = append(cols, "rank")
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM deputies"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeputy(row rowScanner, caps directory.Capabilities) (directory.Deputy, error) {
	var d directory.Deputy
	var email, capacity, division, rank sql.NullString

	dest := []any{&d.FullName, &email, &capacity, &d.Status}
	if caps.Division {
		dest = append(dest, &division)
	}
	if caps.Rank {
		dest = append(dest, &rank)
	}
	if err := row.Scan(dest...); err != nil {
		return d, err
	}

	d.Email = email.String
	d.CapacityTag = capacity.String
	d.Division = division.String
	d.Rank = rank.String
	return d, nil
}

// GetDeputy retrieves a deputy by name.
func (s *Store) GetDeputy(ctx context.Context, fullName string, caps directory.Capabilities) (*directory.Deputy, error) {
	row := s.db.QueryRowContext(ctx, selectDeputy(caps)+" WHERE full_name = ?", fullName)

	d, err := scanDeputy(row, caps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeputies returns all deputies ordered by name.
func (s *Store) ListDeputies(ctx context.Context, caps directory.Capabilities) ([]directory.Deputy, error) {
	rows, err := s.db.QueryContext(ctx, selectDeputy(caps)+" ORDER BY full_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deputies []directory.Deputy
	for rows.Next() {
		d, err := scanDeputy(rows, caps)
		if err != nil {
			return nil, err
		}
		deputies = append(deputies, d)
	}
	return deputies, rows.Err()
}

// DeleteDeputy removes a deputy.
func (s *Store) DeleteDeputy(ctx context.Context, fullName string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM deputies WHERE full_name = ?", fullName)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// UpdateStatus applies fn to the stored payload inside one transaction.
// Every statement goes through tx; with a single connection the pool has
// nothing else to hand out.
func (s *Store) UpdateStatus(ctx context.Context, fullName string, fn func(*status.Payload) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p status.Payload
	err = tx.QueryRowContext(ctx, "SELECT status FROM deputies WHERE full_name = ?", fullName).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := fn(&p); err != nil {
		return true, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE deputies SET status = ? WHERE full_name = ?", p, fullName); err != nil {
		return true, fmt.Errorf("failed to store status: %w", err)
	}
	return true, tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
