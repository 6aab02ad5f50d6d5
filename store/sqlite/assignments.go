package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/roster"
)

// =============================================================================
// ASSIGNMENT STORE (assignment.Store interface)
// =============================================================================

// MaterializeDay copies every template onto day unless the day already has
// a slot with the same courthouse, type, location_detail and part.
func (s *Store) MaterializeDay(ctx context.Context, day roster.Date, createdAt time.Time) (int64, error) {
	query := `
		INSERT INTO court_assignments
		(assignment_date, courthouse, assignment_type, location_group, location_detail, part,
		 judge_name, shift_time, assigned_member, assignment_notes, created_at)
		SELECT ?, t.courthouse, t.assignment_type, t.location_group, t.location_detail, t.part,
		       t.judge_name, t.shift_time, NULL, t.assignment_notes, ?
		FROM court_assignment_templates t
		WHERE NOT EXISTS (
			SELECT 1 FROM court_assignments a
			WHERE a.assignment_date = ?
			  AND a.courthouse = t.courthouse
			  AND a.assignment_type = t.assignment_type
			  AND COALESCE(a.location_detail, '') = COALESCE(t.location_detail, '')
			  AND COALESCE(a.part, '') = COALESCE(t.part, '')
		)
		ORDER BY t.id
	`

	result, err := s.db.ExecContext(ctx, query,
		day.String(), createdAt.UTC().Format(time.RFC3339), day.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to materialize %s: %w", day, err)
	}
	return result.RowsAffected()
}

const assignmentColumns = `
	id, assignment_date, courthouse, assignment_type, location_group, location_detail, part,
	judge_name, shift_time, assigned_member, assignment_notes, created_at
`

// SearchAssignments filters by assigned member substring, date and
// courthouse, newest date first.
func (s *Store) SearchAssignments(ctx context.Context, f assignment.Filter) ([]assignment.CourtAssignment, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, `LOWER(COALESCE(assigned_member, '')) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Name))
	}
	if !f.Date.IsZero() {
		where = append(where, "assignment_date = ?")
		args = append(args, f.Date.String())
	}
	if f.Courthouse != "" {
		where = append(where, "courthouse = ?")
		args = append(args, f.Courthouse)
	}

	query := "SELECT " + assignmentColumns + " FROM court_assignments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY assignment_date DESC, courthouse, assignment_type, location_group, location_detail, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search assignments: %w", err)
	}
	defer rows.Close()

	var results []assignment.CourtAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func scanAssignment(rows *sql.Rows) (assignment.CourtAssignment, error) {
	var a assignment.CourtAssignment
	var date, createdAt string
	var group, detail, part, judge, shift, member, notes sql.NullString
	err := rows.Scan(&a.ID, &date, &a.Courthouse, &a.AssignmentType, &group, &detail, &part,
		&judge, &shift, &member, &notes, &createdAt)
	if err != nil {
		return a, err
	}

	a.Date, err = roster.ParseDate(date)
	if err != nil {
		return a, err
	}
	a.LocationGroup = group.String
	a.LocationDetail = detail.String
	a.Part = part.String
	a.JudgeName = judge.String
	a.ShiftTime = shift.String
	a.AssignedMember = member.String
	a.AssignmentNotes = notes.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

// UpdateAssignment sets the given fields on the slot named by key.
func (s *Store) UpdateAssignment(ctx context.Context, key assignment.SlotKey, u assignment.Update) (int64, error) {
	var (
		sets []string
		args []any
	)
	if u.AssignedMember != nil {
		sets = append(sets, "assigned_member = ?")
		args = append(args, nullString(*u.AssignedMember))
	}
	if u.AssignmentNotes != nil {
		sets = append(sets, "assignment_notes = ?")
		args = append(args, nullString(*u.AssignmentNotes))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	location := "location_detail"
	if key.ByGroup() {
		location = "location_group"
	}

	query := fmt.Sprintf(`
		UPDATE court_assignments SET %s
		WHERE assignment_date = ?
		  AND courthouse = ?
		  AND assignment_type = ?
		  AND COALESCE(%s, '') = ?
		  AND COALESCE(part, '') = ?
	`, strings.Join(sets, ", "), location)
	args = append(args, key.Date.String(), key.Courthouse, key.AssignmentType, key.Location, key.Part)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update assignment: %w", err)
	}
	return result.RowsAffected()
}

// CountSlots returns total and filled slots for day.
func (s *Store) CountSlots(ctx context.Context, day roster.Date, courthouse string) (int, int, error) {
	var total, filled int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN TRIM(COALESCE(assigned_member, '')) <> '' THEN 1 END)
		FROM court_assignments
		WHERE assignment_date = ? AND (? = '' OR courthouse = ?)
	`, day.String(), courthouse, courthouse).Scan(&total, &filled)
	return total, filled, err
}

// =============================================================================
// TEMPLATES
// =============================================================================

// ListTemplates returns every template in insertion order.
func (s *Store) ListTemplates(ctx context.Context) ([]assignment.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, courthouse, assignment_type, location_group, location_detail, part,
		       judge_name, shift_time, assignment_notes
		FROM court_assignment_templates
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []assignment.Template
	for rows.Next() {
		var t assignment.Template
		var group, detail, part, judge, shift, notes sql.NullString
		if err := rows.Scan(&t.ID, &t.Courthouse, &t.AssignmentType, &group, &detail, &part, &judge, &shift, &notes); err != nil {
			return nil, err
		}
		t.LocationGroup = group.String
		t.LocationDetail = detail.String
		t.Part = part.String
		t.JudgeName = judge.String
		t.ShiftTime = shift.String
		t.AssignmentNotes = notes.String
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// SaveTemplate inserts a template, or replaces the one with t.ID.
func (s *Store) SaveTemplate(ctx context.Context, t assignment.Template) (int64, error) {
	args := []any{
		t.Courthouse, t.AssignmentType,
		nullString(t.LocationGroup), nullString(t.LocationDetail), nullString(t.Part),
		nullString(t.JudgeName), nullString(t.ShiftTime), nullString(t.AssignmentNotes),
	}

	if t.ID == 0 {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO court_assignment_templates
			(courthouse, assignment_type, location_group, location_detail, part, judge_name, shift_time, assignment_notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert template: %w", err)
		}
		return result.LastInsertId()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO court_assignment_templates
		(id, courthouse, assignment_type, location_group, location_detail, part, judge_name, shift_time, assignment_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			courthouse = excluded.courthouse,
			assignment_type = excluded.assignment_type,
			location_group = excluded.location_group,
			location_detail = excluded.location_detail,
			part = excluded.part,
			judge_name = excluded.judge_name,
			shift_time = excluded.shift_time,
			assignment_notes = excluded.assignment_notes
	`, append([]any{t.ID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to save template %d: %w", t.ID, err)
	}
	return t.ID, nil
}
