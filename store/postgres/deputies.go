package postgres

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

// ProbeCapabilities reads the deputies columns from information_schema.
func (s *Store) ProbeCapabilities(ctx context.Context) (directory.Capabilities, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = 'deputies'
		  AND column_name IN ('division', 'rank')
	`)
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
		switch name {
		case "division":
			caps.Division = true
		case "rank":
			caps.Rank = true
		}
	}
	return caps, rows.Err()
}

// deputyColumns returns the writable columns for caps and binds their values.
func deputyColumns(p *params, d directory.Deputy, caps directory.Capabilities) ([]string, []string) {
	cols := []string{"full_name", "email", "capacity_tag"}
	marks := []string{p.add(d.FullName), p.add(nullString(d.Email)), p.add(nullString(d.CapacityTag))}
	if caps.Division {
		cols = append(cols, "division")
		marks = append(marks, p.add(nullString(d.Division)))
	}
	if caps.Rank {
		cols = append(cols, "rank")
		marks = append(marks, p.add(nullString(d.Rank)))
	}
	return cols, marks
}

func (s *Store) SaveDeputy(ctx context.Context, d directory.Deputy, caps directory.Capabilities) error {
	var p params
	cols, marks := deputyColumns(&p, d, caps)

	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = EXCLUDED."+c)
	}

	query := fmt.Sprintf(`
		INSERT INTO deputies (%s) VALUES (%s)
		ON CONFLICT (full_name) DO UPDATE SET %s
	`, strings.Join(cols, ", "), strings.Join(marks, ", "), strings.Join(updates, ", "))

	if _, err := s.db.ExecContext(ctx, query, p.vals...); err != nil {
		return fmt.Errorf("failed to save deputy: %w", err)
	}
	return nil
}

func (s *Store) UpdateDeputy(ctx context.Context, originalName string, d directory.Deputy, caps directory.Capabilities) (bool, error) {
	var p params
	cols, marks := deputyColumns(&p, d, caps)

	sets := make([]string, len(cols))
	for i := range cols {
		sets[i] = cols[i] + " = " + marks[i]
	}

	query := fmt.Sprintf("UPDATE deputies SET %s WHERE full_name = %s", strings.Join(sets, ", "), p.add(originalName))
	result, err := s.db.ExecContext(ctx, query, p.vals...)
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

func (s *Store) GetDeputy(ctx context.Context, fullName string, caps directory.Capabilities) (*directory.Deputy, error) {
	d, err := scanDeputy(s.db.QueryRowContext(ctx, selectDeputy(caps)+" WHERE full_name = $1", fullName), caps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

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

func (s *Store) DeleteDeputy(ctx context.Context, fullName string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM deputies WHERE full_name = $1", fullName)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// UpdateStatus locks the deputy row for the read-modify-write.
func (s *Store) UpdateStatus(ctx context.Context, fullName string, fn func(*status.Payload) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p status.Payload
	err = tx.QueryRowContext(ctx, "SELECT status FROM deputies WHERE full_name = $1 FOR UPDATE", fullName).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := fn(&p); err != nil {
		return true, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE deputies SET status = $1 WHERE full_name = $2", p, fullName); err != nil {
		return true, fmt.Errorf("failed to store status: %w", err)
	}
	return true, tx.Commit()
}
