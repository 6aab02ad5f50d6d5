/*
Package directory maintains deputy records keyed by full name.

PURPOSE:
  Insert-or-update of deputy records, plus the status edits that hang off
  them. full_name is the natural key; renaming is an update addressed by
  the old name.

SCHEMA CAPABILITIES:
  division and rank are optional columns that older deployments lack.
  Which ones exist is probed once, when the Directory is built, and kept
  in a Capabilities descriptor. Writes branch on the descriptor: columns
  the schema does not have are left out and the result reports them as
  not persisted. This is never an error, and it never writes NULL over
  data the caller did not intend to clear.

STATUS EDITS:
  Status changes are read-modify-write of the payload. They run inside a
  single storage transaction (Store.UpdateStatus).

SEE ALSO:
  - status/payload.go: Payload operations used by the status edits
  - store/sqlite/deputies.go: pragma_table_info probe
  - store/postgres/deputies.go: information_schema probe
*/
package directory

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/status"
)

// =============================================================================
// TYPES
// =============================================================================

// Deputy is a directory record.
type Deputy struct {
	FullName    string
	Email       string
	CapacityTag string
	Status      status.Payload
	Division    string
	Rank        string
}

// Attrs are the mutable attributes of a deputy.
type Attrs struct {
	Email       string
	CapacityTag string
	Division    string
	Rank        string
}

// Capabilities describes which optional columns the schema carries.
type Capabilities struct {
	Division bool `json:"division"`
	Rank     bool `json:"rank"`
}

// Full reports whether every optional column is present.
func (c Capabilities) Full() bool {
	return c.Division && c.Rank
}

// UpsertStatus is the outcome of an upsert.
type UpsertStatus string

const (
	UpsertSuccess  UpsertStatus = "success"
	UpsertNotFound UpsertStatus = "not_found"
)

// UpsertResult reports what an upsert wrote.
type UpsertResult struct {
	Status    UpsertStatus
	Persisted Capabilities // optional attributes actually written
	Dropped   []string     // optional attributes given but not written
}

// StatusView is a deputy's effective status on a date.
type StatusView struct {
	FullName  string
	On        roster.Date
	Status    string
	HasStatus bool
	Payload   status.Payload
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store persists deputies.
type Store interface {
	// ProbeCapabilities inspects the deputies table once.
	ProbeCapabilities(ctx context.Context) (Capabilities, error)

	// SaveDeputy inserts d or, when full_name exists, updates its
	// attributes. Only optional columns enabled in caps are written.
	// The status column is left untouched on update.
	SaveDeputy(ctx context.Context, d Deputy, caps Capabilities) error

	// UpdateDeputy updates the row named originalName, including its
	// full_name, and reports whether a row matched.
	UpdateDeputy(ctx context.Context, originalName string, d Deputy, caps Capabilities) (bool, error)

	GetDeputy(ctx context.Context, fullName string, caps Capabilities) (*Deputy, error)
	ListDeputies(ctx context.Context, caps Capabilities) ([]Deputy, error)
	DeleteDeputy(ctx context.Context, fullName string) (bool, error)

	// UpdateStatus loads the payload of fullName, applies fn and stores the
	// result in one transaction. It reports whether the deputy exists.
	UpdateStatus(ctx context.Context, fullName string, fn func(*status.Payload) error) (bool, error)
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory is the deputy directory.
type Directory struct {
	store  Store
	logger *zap.Logger
	caps   Capabilities
}

// New probes the schema once and returns a directory bound to the result.
func New(ctx context.Context, store Store, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	caps, err := store.ProbeCapabilities(ctx)
	if err != nil {
		return nil, roster.Storage("probe deputy schema", err)
	}

	logger = logger.Named("directory")
	logger.Info("deputy schema capabilities",
		zap.Bool("division", caps.Division),
		zap.Bool("rank", caps.Rank),
	)
	return &Directory{store: store, logger: logger, caps: caps}, nil
}

// Capabilities returns the cached schema descriptor.
func (d *Directory) Capabilities() Capabilities {
	return d.caps
}

// Upsert inserts a deputy, or updates the one named originalName when it
// is given. Attributes the schema cannot hold are dropped and reported.
func (d *Directory) Upsert(ctx context.Context, fullName string, attrs Attrs, originalName string) (UpsertResult, error) {
	fullName = strings.TrimSpace(fullName)
	originalName = strings.TrimSpace(originalName)
	if fullName == "" {
		return UpsertResult{}, &roster.ValidationError{Field: "full_name", Message: "name is required"}
	}

	rec := Deputy{
		FullName:    fullName,
		Email:       strings.TrimSpace(attrs.Email),
		CapacityTag: strings.TrimSpace(attrs.CapacityTag),
		Division:    strings.TrimSpace(attrs.Division),
		Rank:        strings.TrimSpace(attrs.Rank),
	}
	result := UpsertResult{Status: UpsertSuccess, Persisted: d.caps, Dropped: d.dropped(rec)}

	if originalName != "" {
		found, err := d.store.UpdateDeputy(ctx, originalName, rec, d.caps)
		if err != nil {
			return UpsertResult{}, roster.Storage("update deputy", err)
		}
		if !found {
			result.Status = UpsertNotFound
			result.Persisted = Capabilities{}
			result.Dropped = nil
			return result, nil
		}
	} else if err := d.store.SaveDeputy(ctx, rec, d.caps); err != nil {
		return UpsertResult{}, roster.Storage("save deputy", err)
	}

	if len(result.Dropped) > 0 {
		d.logger.Warn("optional deputy attributes not persisted",
			zap.String("full_name", fullName),
			zap.Strings("dropped", result.Dropped),
		)
	}
	d.logger.Info("deputy upserted",
		zap.String("full_name", fullName),
		zap.String("original_full_name", originalName),
	)
	return result, nil
}

// dropped lists the optional attributes that carry a value the schema
// cannot store.
func (d *Directory) dropped(rec Deputy) []string {
	var out []string
	if rec.Division != "" && !d.caps.Division {
		out = append(out, "division")
	}
	if rec.Rank != "" && !d.caps.Rank {
		out = append(out, "rank")
	}
	return out
}

// Get returns the deputy or nil.
func (d *Directory) Get(ctx context.Context, fullName string) (*Deputy, error) {
	dep, err := d.store.GetDeputy(ctx, strings.TrimSpace(fullName), d.caps)
	if err != nil {
		return nil, roster.Storage("get deputy", err)
	}
	return dep, nil
}

// List returns every deputy ordered by name.
func (d *Directory) List(ctx context.Context) ([]Deputy, error) {
	deputies, err := d.store.ListDeputies(ctx, d.caps)
	if err != nil {
		return nil, roster.Storage("list deputies", err)
	}
	if deputies == nil {
		deputies = []Deputy{}
	}
	return deputies, nil
}

// Delete removes a deputy and reports whether it existed.
func (d *Directory) Delete(ctx context.Context, fullName string) (bool, error) {
	found, err := d.store.DeleteDeputy(ctx, strings.TrimSpace(fullName))
	if err != nil {
		return false, roster.Storage("delete deputy", err)
	}
	return found, nil
}

// =============================================================================
// STATUS
// =============================================================================

// EffectiveStatus resolves the deputy's status on a date. A zero date
// yields the legacy status. Returns nil when the deputy does not exist.
func (d *Directory) EffectiveStatus(ctx context.Context, fullName string, on roster.Date) (*StatusView, error) {
	dep, err := d.Get(ctx, fullName)
	if err != nil || dep == nil {
		return nil, err
	}
	view := Effective(*dep, on)
	return &view, nil
}

// Effective resolves the status of an already loaded deputy.
func Effective(dep Deputy, on roster.Date) StatusView {
	s, ok := status.Resolve(dep.Status, on)
	return StatusView{FullName: dep.FullName, On: on, Status: s, HasStatus: ok, Payload: dep.Status}
}

// SetLegacyStatus replaces the legacy status. An empty value clears it.
func (d *Directory) SetLegacyStatus(ctx context.Context, fullName, legacy string) (bool, error) {
	return d.editStatus(ctx, "set legacy status", fullName, func(p *status.Payload) error {
		p.SetLegacy(strings.TrimSpace(legacy))
		return nil
	})
}

// AddStatusRange upserts a dated status range.
func (d *Directory) AddStatusRange(ctx context.Context, fullName string, r status.Range) (bool, error) {
	r, err := normalizeRange(r)
	if err != nil {
		return false, err
	}
	return d.editStatus(ctx, "add status range", fullName, func(p *status.Payload) error {
		p.UpsertRange(r)
		return nil
	})
}

// RemoveStatusRange deletes a dated status range. Removing a range that is
// not present is not an error.
func (d *Directory) RemoveStatusRange(ctx context.Context, fullName string, r status.Range) (bool, error) {
	r.Status = strings.TrimSpace(r.Status)
	return d.editStatus(ctx, "remove status range", fullName, func(p *status.Payload) error {
		p.RemoveRange(r)
		return nil
	})
}

func (d *Directory) editStatus(ctx context.Context, op, fullName string, fn func(*status.Payload) error) (bool, error) {
	fullName = strings.TrimSpace(fullName)
	found, err := d.store.UpdateStatus(ctx, fullName, fn)
	if err != nil {
		return false, roster.Storage(op, err)
	}
	if found {
		d.logger.Info("deputy status changed", zap.String("full_name", fullName), zap.String("op", op))
	}
	return found, nil
}

// normalizeRange validates new ranges. Stored ranges are never validated;
// only edits coming through the directory are.
func normalizeRange(r status.Range) (status.Range, error) {
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return r, &roster.ValidationError{Field: "status", Message: "status is required"}
	}
	start, err := roster.ParseDate(r.StartDate)
	if err != nil {
		return r, &roster.ValidationError{Field: "start_date", Message: err.Error()}
	}
	end, err := roster.ParseDate(r.EndDate)
	if err != nil {
		return r, &roster.ValidationError{Field: "end_date", Message: err.Error()}
	}
	if end.Before(start) {
		return r, &roster.ValidationError{Field: "end_date", Message: "end date is before start date"}
	}
	return r, nil
}
