/*
Package assignment turns recurring court-assignment templates into daily
rosters and serves searches over them.

PURPOSE:
  Templates describe the slots every court day needs (courthouse, type,
  location, part, judge, shift). A day's roster is materialized from the
  templates exactly once: running EnsureDay again for the same date never
  duplicates a slot and never touches a slot someone was assigned to.

MATERIALIZATION:
  A single "insert where not exists" statement per day. A template is
  skipped when the day already has a row with the same courthouse,
  assignment_type, location_detail and part (NULL and "" equal).

IMPLICIT SEEDING:
  Search with a date, Day and Coverage materialize the day before reading.
  The first query for a date is the one that populates it.

SLOT IDENTITY:
  Updates address a slot by (date, courthouse, type, location, part),
  where location is location_group for "Fixed Post" and location_detail
  otherwise. See SlotKey.

SEE ALSO:
  - store/sqlite/assignments.go: INSERT ... SELECT ... WHERE NOT EXISTS
  - api/scheduler.go: Pre-seeds upcoming days in the background
*/
package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/court-roster/metrics"
	"github.com/warp/court-roster/roster"
)

// Service runs assignment operations over a Store.
type Service struct {
	store       Store
	logger      *zap.Logger
	searchLimit int
	now         func() time.Time
}

// NewService creates a service. searchLimit <= 0 uses DefaultSearchLimit.
func NewService(store Store, logger *zap.Logger, searchLimit int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Service{
		store:       store,
		logger:      logger.Named("assignment"),
		searchLimit: searchLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

// EnsureDay materializes the template slots for day and returns how many
// new rows were created. Safe to call any number of times.
func (s *Service) EnsureDay(ctx context.Context, day roster.Date) (int64, error) {
	if day.IsZero() {
		return 0, &roster.ValidationError{Field: "date", Message: "date is required"}
	}

	inserted, err := s.store.MaterializeDay(ctx, day, s.now())
	if err != nil {
		return 0, roster.Storage("materialize day", err)
	}
	metrics.Materialized(inserted)
	if inserted > 0 {
		s.logger.Info("day materialized from templates",
			zap.Stringer("date", day),
			zap.Int64("inserted", inserted),
		)
	}
	return inserted, nil
}

// =============================================================================
// SEARCH / UPDATE
// =============================================================================

// Search returns assignments matching f. When f.Date is set the day is
// materialized first.
func (s *Service) Search(ctx context.Context, f Filter) ([]CourtAssignment, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Courthouse = strings.TrimSpace(f.Courthouse)
	if f.Limit <= 0 || f.Limit > s.searchLimit {
		f.Limit = s.searchLimit
	}

	if !f.Date.IsZero() {
		if _, err := s.EnsureDay(ctx, f.Date); err != nil {
			return nil, err
		}
	}

	results, err := s.store.SearchAssignments(ctx, f)
	if err != nil {
		return nil, roster.Storage("search assignments", err)
	}
	if results == nil {
		results = []CourtAssignment{}
	}
	return results, nil
}

// Day materializes day and returns every slot on it, ignoring the search
// limit.
func (s *Service) Day(ctx context.Context, day roster.Date) ([]CourtAssignment, error) {
	if _, err := s.EnsureDay(ctx, day); err != nil {
		return nil, err
	}

	results, err := s.store.SearchAssignments(ctx, Filter{Date: day})
	if err != nil {
		return nil, roster.Storage("read day", err)
	}
	if results == nil {
		results = []CourtAssignment{}
	}
	return results, nil
}

// Assign applies u to the slot identified by key.
func (s *Service) Assign(ctx context.Context, key SlotKey, u Update) error {
	switch {
	case key.Date.IsZero():
		return &roster.ValidationError{Field: "assignment_date", Message: "date is required"}
	case strings.TrimSpace(key.Courthouse) == "":
		return &roster.ValidationError{Field: "courthouse", Message: "courthouse is required"}
	case strings.TrimSpace(key.AssignmentType) == "":
		return &roster.ValidationError{Field: "assignment_type", Message: "assignment type is required"}
	case u.AssignedMember == nil && u.AssignmentNotes == nil:
		return &roster.ValidationError{Field: "update", Message: "nothing to update"}
	}

	changed, err := s.store.UpdateAssignment(ctx, key, u)
	if err != nil {
		return roster.Storage("update assignment", err)
	}
	if changed == 0 {
		return roster.ErrSlotNotFound
	}

	s.logger.Info("assignment updated",
		zap.Stringer("date", key.Date),
		zap.String("courthouse", key.Courthouse),
		zap.String("type", key.AssignmentType),
		zap.String("location", key.Location),
		zap.String("part", key.Part),
		zap.Int64("rows", changed),
	)
	return nil
}

// =============================================================================
// COVERAGE
// =============================================================================

// Coverage materializes the day and counts its filled slots. An empty
// courthouse counts every courthouse.
func (s *Service) Coverage(ctx context.Context, day roster.Date, courthouse string) (Coverage, error) {
	courthouse = strings.TrimSpace(courthouse)
	if _, err := s.EnsureDay(ctx, day); err != nil {
		return Coverage{}, err
	}

	total, filled, err := s.store.CountSlots(ctx, day, courthouse)
	if err != nil {
		return Coverage{}, roster.Storage("count slots", err)
	}
	return Coverage{Date: day, Courthouse: courthouse, Total: total, Filled: filled}, nil
}

// Open returns the number of unfilled slots.
func (c Coverage) Open() int {
	return c.Total - c.Filled
}

// FillRate is the filled share of slots as a percentage, one decimal place.
func (c Coverage) FillRate() decimal.Decimal {
	if c.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.Filled)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(c.Total))).
		Round(1)
}

// =============================================================================
// TEMPLATES
// =============================================================================

// Templates lists every template.
func (s *Service) Templates(ctx context.Context) ([]Template, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, roster.Storage("list templates", err)
	}
	if templates == nil {
		templates = []Template{}
	}
	return templates, nil
}

// SaveTemplate stores a template and returns its id.
func (s *Service) SaveTemplate(ctx context.Context, t Template) (int64, error) {
	if strings.TrimSpace(t.Courthouse) == "" {
		return 0, &roster.ValidationError{Field: "courthouse", Message: "courthouse is required"}
	}
	if strings.TrimSpace(t.AssignmentType) == "" {
		return 0, &roster.ValidationError{Field: "assignment_type", Message: "assignment type is required"}
	}

	id, err := s.store.SaveTemplate(ctx, t)
	if err != nil {
		return 0, roster.Storage("save template", err)
	}
	return id, nil
}
