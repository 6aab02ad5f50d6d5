// Package memory provides an in-memory Store for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/status"
)

// ErrDuplicateName mirrors a primary-key violation on deputies.full_name.
var ErrDuplicateName = errors.New("memory: deputy full_name already exists")

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	caps        directory.Capabilities
	deputies    map[string]directory.Deputy
	cells       map[cellKey]string
	templates   []assignment.Template
	assignments []assignment.CourtAssignment
	nextID      int64
}

type cellKey struct {
	Date   string
	Row    int
	Column string
}

// Option configures a Memory store.
type Option func(*Memory)

// WithCapabilities simulates a deputies table with only some optional
// columns.
func WithCapabilities(caps directory.Capabilities) Option {
	return func(m *Memory) { m.caps = caps }
}

func New(opts ...Option) *Memory {
	m := &Memory{
		caps:     directory.Capabilities{Division: true, Rank: true},
		deputies: make(map[string]directory.Deputy),
		cells:    make(map[cellKey]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Ping(context.Context) error { return nil }
// =============================================================================
// STAFFING (staffing.Store)
// =============================================================================

func (m *Memory) PutCell(_ context.Context, rec staffing.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[cellKey{Date: rec.Date.String(), Row: rec.Row, Column: rec.Column}] = rec.DeputyName
	return nil
}

func (m *Memory) GetCell(_ context.Context, day roster.Date, row int, column string) (*staffing.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.cells[cellKey{Date: day.String(), Row: row, Column: column}]
	if !ok {
		return nil, nil
	}
	return &staffing.Record{Date: day, Row: row, Column: column, DeputyName: name}, nil
}

func (m *Memory) CellsAsOf(_ context.Context, asOf roster.Date) ([]staffing.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type latest struct {
		date string
		name string
	}
	type pos struct {
		Row    int
		Column string
	}

	bound := asOf.String()
	best := make(map[pos]latest)
	for k, name := range m.cells {
		if k.Date > bound {
			continue
		}
		p := pos{Row: k.Row, Column: k.Column}
		if cur, ok := best[p]; !ok || k.Date > cur.date {
			best[p] = latest{date: k.Date, name: name}
		}
	}

	cells := make([]staffing.Cell, 0, len(best))
	for p, l := range best {
		cells = append(cells, staffing.Cell{Row: p.Row, Column: p.Column, DeputyName: l.name})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Column < cells[j].Column
	})
	return cells, nil
}

func (m *Memory) PreviousDate(_ context.Context, column string, before roster.Date) (roster.Date, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bound := before.String()
	found := ""
	for k := range m.cells {
		if k.Column == column && k.Date < bound && k.Date > found {
			found = k.Date
		}
	}
	if found == "" {
		return roster.Date{}, false, nil
	}
	d, err := roster.ParseDate(found)
	return d, err == nil, err
}

func (m *Memory) CopyColumn(_ context.Context, column string, from, to roster.Date) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := from.String()
	var copied int64
	updates := make(map[cellKey]string)
	for k, name := range m.cells {
		if k.Date == src && k.Column == column {
			updates[cellKey{Date: to.String(), Row: k.Row, Column: column}] = name
			copied++
		}
	}
	for k, name := range updates {
		m.cells[k] = name
	}
	return copied, nil
}

// =============================================================================
// ASSIGNMENTS (assignment.Store)
// =============================================================================

func (m *Memory) MaterializeDay(_ context.Context, day roster.Date, createdAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Existence is judged against the rows present before this call, like
	// the NOT EXISTS subquery of a single INSERT ... SELECT.
	existing := make(map[[4]string]bool)
	for _, a := range m.assignments {
		if a.Date.Equal(day) {
			existing[[4]string{a.Courthouse, a.AssignmentType, a.LocationDetail, a.Part}] = true
		}
	}

	var inserted int64
	for _, t := range m.templates {
		if existing[[4]string{t.Courthouse, t.AssignmentType, t.LocationDetail, t.Part}] {
			continue
		}
		m.nextID++
		m.assignments = append(m.assignments, assignment.CourtAssignment{
			ID:              m.nextID,
			Date:            day,
			Courthouse:      t.Courthouse,
			AssignmentType:  t.AssignmentType,
			LocationGroup:   t.LocationGroup,
			LocationDetail:  t.LocationDetail,
			Part:            t.Part,
			JudgeName:       t.JudgeName,
			ShiftTime:       t.ShiftTime,
			AssignmentNotes: t.AssignmentNotes,
			CreatedAt:       createdAt,
		})
		inserted++
	}
	return inserted, nil
}

func (m *Memory) SearchAssignments(_ context.Context, f assignment.Filter) ([]assignment.CourtAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := strings.ToLower(f.Name)
	var out []assignment.CourtAssignment
	for _, a := range m.assignments {
		if name != "" && !strings.Contains(strings.ToLower(a.AssignedMember), name) {
			continue
		}
		if !f.Date.IsZero() && !a.Date.Equal(f.Date) {
			continue
		}
		if f.Courthouse != "" && a.Courthouse != f.Courthouse {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Courthouse != b.Courthouse {
			return a.Courthouse < b.Courthouse
		}
		if a.AssignmentType != b.AssignmentType {
			return a.AssignmentType < b.AssignmentType
		}
		if a.LocationGroup != b.LocationGroup {
			return a.LocationGroup < b.LocationGroup
		}
		if a.LocationDetail != b.LocationDetail {
			return a.LocationDetail < b.LocationDetail
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) UpdateAssignment(_ context.Context, key assignment.SlotKey, u assignment.Update) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for i := range m.assignments {
		a := &m.assignments[i]
		if !sameSlot(assignment.KeyOf(*a), key) {
			continue
		}
		if u.AssignedMember != nil {
			a.AssignedMember = *u.AssignedMember
		}
		if u.AssignmentNotes != nil {
			a.AssignmentNotes = *u.AssignmentNotes
		}
		changed++
	}
	return changed, nil
}

// sameSlot compares slot identities with part NULL-as-empty, as the SQL
// stores do.
func sameSlot(a, b assignment.SlotKey) bool {
	return a.Date.Equal(b.Date) &&
		a.Courthouse == b.Courthouse &&
		a.AssignmentType == b.AssignmentType &&
		a.Location == b.Location &&
		a.Part == b.Part
}

func (m *Memory) CountSlots(_ context.Context, day roster.Date, courthouse string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, filled int
	for _, a := range m.assignments {
		if !a.Date.Equal(day) || (courthouse != "" && a.Courthouse != courthouse) {
			continue
		}
		total++
		if strings.TrimSpace(a.AssignedMember) != "" {
			filled++
		}
	}
	return total, filled, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]assignment.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]assignment.Template, len(m.templates))
	copy(out, m.templates)
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t assignment.Template) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID != 0 {
		for i := range m.templates {
			if m.templates[i].ID == t.ID {
				m.templates[i] = t
				return t.ID, nil
			}
		}
	}
	m.nextID++
	t.ID = m.nextID
	m.templates = append(m.templates, t)
	return t.ID, nil
}

// Assignments returns every stored assignment (for tests).
func (m *Memory) Assignments() []assignment.CourtAssignment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]assignment.CourtAssignment, len(m.assignments))
	copy(out, m.assignments)
	return out
}

// =============================================================================
// DEPUTIES (directory.Store)
// =============================================================================

func (m *Memory) ProbeCapabilities(_ context.Context) (directory.Capabilities, error) {
	return m.caps, nil
}

// narrow keeps only the optional attributes the simulated schema has, plus
// whatever the row already held for columns that are not being written.
func (m *Memory) narrow(d directory.Deputy, caps directory.Capabilities, prev directory.Deputy) directory.Deputy {
	if !caps.Division || !m.caps.Division {
		d.Division = prev.Division
	}
	if !caps.Rank || !m.caps.Rank {
		d.Rank = prev.Rank
	}
	return d
}

func (m *Memory) SaveDeputy(_ context.Context, d directory.Deputy, caps directory.Capabilities) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.deputies[d.FullName]
	d = m.narrow(d, caps, prev)
	d.Status = prev.Status
	m.deputies[d.FullName] = d
	return nil
}

func (m *Memory) UpdateDeputy(_ context.Context, originalName string, d directory.Deputy, caps directory.Capabilities) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.deputies[originalName]
	if !ok {
		return false, nil
	}
	if d.FullName != originalName {
		if _, taken := m.deputies[d.FullName]; taken {
			return false, ErrDuplicateName
		}
	}

	d = m.narrow(d, caps, prev)
	d.Status = prev.Status
	delete(m.deputies, originalName)
	m.deputies[d.FullName] = d
	return true, nil
}

func (m *Memory) GetDeputy(_ context.Context, fullName string, _ directory.Capabilities) (*directory.Deputy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deputies[fullName]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) ListDeputies(_ context.Context, _ directory.Capabilities) ([]directory.Deputy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]directory.Deputy, 0, len(m.deputies))
	for _, d := range m.deputies {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (m *Memory) DeleteDeputy(_ context.Context, fullName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deputies[fullName]; !ok {
		return false, nil
	}
	delete(m.deputies, fullName)
	return true, nil
}

func (m *Memory) UpdateStatus(_ context.Context, fullName string, fn func(*status.Payload) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deputies[fullName]
	if !ok {
		return false, nil
	}

	// Work on a copy so a failing fn leaves the record untouched.
	p := status.Payload{Legacy: d.Status.Legacy, Ranges: append([]status.Range(nil), d.Status.Ranges...)}
	if err := fn(&p); err != nil {
		return true, err
	}

	// Round-trip through the stored encoding, as the SQL stores do.
	raw, _ := status.Serialize(p)
	d.Status = status.Parse(raw)
	m.deputies[fullName] = d
	return true, nil
}
