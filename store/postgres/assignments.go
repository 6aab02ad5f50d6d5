package postgres

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

// materializeLockSpace namespaces the per-day advisory locks.
const materializeLockSpace int32 = 0x43525354

// MaterializeDay serializes materializations of the same day with an
// advisory lock, then runs the anti-join insert.
func (s *Store) MaterializeDay(ctx context.Context, day roster.Date, createdAt time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dayKey := int32(day.Time.Unix() / 86400)
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", materializeLockSpace, dayKey); err != nil {
		return 0, fmt.Errorf("failed to lock %s: %w", day, err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO court_assignments
		(assignment_date, courthouse, assignment_type, location_group, location_detail, part,
		 judge_name, shift_time, assigned_member, assignment_notes, created_at)
		SELECT $1::date, t.courthouse, t.assignment_type, t.location_group, t.location_detail, t.part,
		       t.judge_name, t.shift_time, NULL, t.assignment_notes, $2
		FROM court_assignment_templates t
		WHERE NOT EXISTS (
			SELECT 1 FROM court_assignments a
			WHERE a.assignment_date = $1::date
			  AND a.courthouse = t.courthouse
			  AND a.assignment_type = t.assignment_type
			  AND COALESCE(a.location_detail, '') = COALESCE(t.location_detail, '')
			  AND COALESCE(a.part, '') = COALESCE(t.part, '')
		)
		ORDER BY t.id
	`, day.String(), createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to materialize %s: %w", day, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return inserted, tx.Commit()
}

const assignmentColumns = `
	id, assignment_date, courthouse, assignment_type, location_group, location_detail, part,
	judge_name, shift_time, assigned_member, assignment_notes, created_at
`

func (s *Store) SearchAssignments(ctx context.Context, f assignment.Filter) ([]assignment.CourtAssignment, error) {
	var (
		p     params
		where []string
	)
	if f.Name != "" {
		where = append(where, `LOWER(COALESCE(assigned_member, '')) LIKE `+p.add(likePattern(f.Name))+` ESCAPE '\'`)
	}
	if !f.Date.IsZero() {
		where = append(where, "assignment_date = "+p.add(f.Date.String()))
	}
	if f.Courthouse != "" {
		where = append(where, "courthouse = "+p.add(f.Courthouse))
	}

	query := "SELECT " + assignmentColumns + " FROM court_assignments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY assignment_date DESC, courthouse, assignment_type, location_group NULLS FIRST, location_detail NULLS FIRST, id"
	if f.Limit > 0 {
		query += " LIMIT " + p.add(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, p.vals...)
	if err != nil {
		return nil, fmt.Errorf("failed to search assignments: %w", err)
	}
	defer rows.Close()

	var results []assignment.CourtAssignment
	for rows.Next() {
		var a assignment.CourtAssignment
		var date time.Time
		var group, detail, part, judge, shift, member, notes sql.NullString
		err := rows.Scan(&a.ID, &date, &a.Courthouse, &a.AssignmentType, &group, &detail, &part,
			&judge, &shift, &member, &notes, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		a.Date = dateOf(date)
		a.LocationGroup = group.String
		a.LocationDetail = detail.String
		a.Part = part.String
		a.JudgeName = judge.String
		a.ShiftTime = shift.String
		a.AssignedMember = member.String
		a.AssignmentNotes = notes.String
		results = append(results, a)
	}
	return results, rows.Err()
}

func (s *Store) UpdateAssignment(ctx context.Context, key assignment.SlotKey, u assignment.Update) (int64, error) {
	var (
		p    params
		sets []string
	)
	if u.AssignedMember != nil {
		sets = append(sets, "assigned_member = "+p.add(nullString(*u.AssignedMember)))
	}
	if u.AssignmentNotes != nil {
		sets = append(sets, "assignment_notes = "+p.add(nullString(*u.AssignmentNotes)))
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
		WHERE assignment_date = %s
		  AND courthouse = %s
		  AND assignment_type = %s
		  AND COALESCE(%s, '') = %s
		  AND COALESCE(part, '') = %s
	`, strings.Join(sets, ", "),
		p.add(key.Date.String()), p.add(key.Courthouse), p.add(key.AssignmentType),
		location, p.add(key.Location), p.add(key.Part))

	result, err := s.db.ExecContext(ctx, query, p.vals...)
	if err != nil {
		return 0, fmt.Errorf("failed to update assignment: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) CountSlots(ctx context.Context, day roster.Date, courthouse string) (int, int, error) {
	var total, filled int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE TRIM(COALESCE(assigned_member, '')) <> '')
		FROM court_assignments
		WHERE assignment_date = $1 AND ($2::text = '' OR courthouse = $2)
	`, day.String(), courthouse).Scan(&total, &filled)
	return total, filled, err
}

// =============================================================================
// TEMPLATES
// =============================================================================

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

func (s *Store) SaveTemplate(ctx context.Context, t assignment.Template) (int64, error) {
	args := []any{
		t.Courthouse, t.AssignmentType,
		nullString(t.LocationGroup), nullString(t.LocationDetail), nullString(t.Part),
		nullString(t.JudgeName), nullString(t.ShiftTime), nullString(t.AssignmentNotes),
	}

	if t.ID == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO court_assignment_templates
			(courthouse, assignment_type, location_group, location_detail, part, judge_name, shift_time, assignment_notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, args...).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert template: %w", err)
		}
		return id, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO court_assignment_templates
		(id, courthouse, assignment_type, location_group, location_detail, part, judge_name, shift_time, assignment_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			courthouse = EXCLUDED.courthouse,
			assignment_type = EXCLUDED.assignment_type,
			location_group = EXCLUDED.location_group,
			location_detail = EXCLUDED.location_detail,
			part = EXCLUDED.part,
			judge_name = EXCLUDED.judge_name,
			shift_time = EXCLUDED.shift_time,
			assignment_notes = EXCLUDED.assignment_notes
	`, append([]any{t.ID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to save template %d: %w", t.ID, err)
	}
	return t.ID, nil
}
