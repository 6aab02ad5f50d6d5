package assignment

import (
	"context"
	"time"

	"github.com/warp/court-roster/roster"
)

// FixedPost is the assignment type whose slots are told apart by
// location_group instead of location_detail.
const FixedPost = "Fixed Post"

// DefaultSearchLimit caps search results.
const DefaultSearchLimit = 200

// =============================================================================
// TYPES
// =============================================================================

// Template is a recurring slot that seeds each day. Optional text fields
// are stored as NULL when empty.
type Template struct {
	ID              int64
	Courthouse      string
	AssignmentType  string
	LocationGroup   string
	LocationDetail  string
	Part            string
	JudgeName       string
	ShiftTime       string
	AssignmentNotes string
}

// CourtAssignment is a concrete slot on one date.
type CourtAssignment struct {
	ID              int64
	Date            roster.Date
	Courthouse      string
	AssignmentType  string
	LocationGroup   string
	LocationDetail  string
	Part            string
	JudgeName       string
	ShiftTime       string
	AssignedMember  string
	AssignmentNotes string
	CreatedAt       time.Time
}

// SlotKey is the logical identity of an assignment.
//
// Location holds location_group for Fixed Post slots and location_detail
// for every other type. Part compares with NULL and "" as equal.
type SlotKey struct {
	Date           roster.Date
	Courthouse     string
	AssignmentType string
	Location       string
	Part           string
}

// ByGroup reports whether the slot is identified by location_group.
func (k SlotKey) ByGroup() bool {
	return k.AssignmentType == FixedPost
}

// KeyOf returns the logical identity of an assignment.
func KeyOf(a CourtAssignment) SlotKey {
	k := SlotKey{
		Date:           a.Date,
		Courthouse:     a.Courthouse,
		AssignmentType: a.AssignmentType,
		Location:       a.LocationDetail,
		Part:           a.Part,
	}
	if k.ByGroup() {
		k.Location = a.LocationGroup
	}
	return k
}

// Update names the fields to change on a slot. Nil leaves a field as is;
// a pointer to "" clears it.
type Update struct {
	AssignedMember  *string
	AssignmentNotes *string
}

// Filter selects assignments for search. Zero fields do not filter.
type Filter struct {
	Name       string // substring of assigned_member
	Date       roster.Date
	Courthouse string
	Limit      int
}

// Coverage summarizes how many slots of a day are staffed.
type Coverage struct {
	Date       roster.Date
	Courthouse string
	Total      int
	Filled     int
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists templates and assignments.
type Store interface {
	// MaterializeDay inserts one assignment per template for day unless a
	// row already exists for that day with the template's courthouse,
	// assignment_type, location_detail and part (NULL-as-empty). It must be
	// atomic with respect to the day and return the number of rows inserted.
	MaterializeDay(ctx context.Context, day roster.Date, createdAt time.Time) (int64, error)

	// SearchAssignments returns assignments matching f, newest date first.
	SearchAssignments(ctx context.Context, f Filter) ([]CourtAssignment, error)

	// UpdateAssignment applies u to the slot identified by key and returns
	// the number of rows changed.
	UpdateAssignment(ctx context.Context, key SlotKey, u Update) (int64, error)

	// CountSlots returns total and filled slots for a day.
	CountSlots(ctx context.Context, day roster.Date, courthouse string) (total, filled int, err error)

	ListTemplates(ctx context.Context) ([]Template, error)
	SaveTemplate(ctx context.Context, t Template) (int64, error)
}
