/*
Package status models a deputy's availability as a layered, date-ranged record.

PURPOSE:
  A deputy's status is a legacy single value plus an insertion-ordered list
  of date-bounded ranges. All logic in this package works on the typed
  Payload; text only exists at the storage edge (Scan/Value) where the
  payload is kept in a single column.

STORED SHAPE:
  {"legacy": "On Duty", "ranges": [{"status": "Vacation",
    "start_date": "2024-01-01", "end_date": "2024-01-10"}]}

  An empty payload (no legacy, no ranges) is stored as NULL, never as an
  empty object. Absent in, absent out.

BACKWARD COMPATIBILITY:
  Rows written before ranged status existed hold a plain string such as
  "Light Duty". Anything that does not decode as an object carrying a
  "ranges" attribute is taken verbatim as the legacy value.

SEE ALSO:
  - resolve.go: Effective status as of a date
  - directory/directory.go: Status edits on deputy records
*/
package status

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Range is one date-bounded status. Dates are kept as their stored text
// (YYYY-MM-DD) so payloads written by other schema versions round-trip
// untouched; they are parsed only when resolving.
type Range struct {
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Payload is the typed status record owned by one deputy.
// Legacy "" means no legacy status.
type Payload struct {
	Legacy string
	Ranges []Range
}

// wirePayload is the stored encoding.
type wirePayload struct {
	Legacy *string `json:"legacy"`
	Ranges []Range `json:"ranges"`
}

// IsEmpty reports whether the payload would be stored as NULL.
func (p Payload) IsEmpty() bool {
	return p.Legacy == "" && len(p.Ranges) == 0
}

// =============================================================================
// PARSE / SERIALIZE
// =============================================================================

// Parse decodes a stored status value. It never fails.
//
// Once the value is an object carrying "ranges", its fields are decoded one
// by one: a non-string field keeps its JSON text, so a numeric date simply
// never matches, and an element that is not an object is skipped.
func Parse(raw string) Payload {
	if raw == "" {
		return Payload{Ranges: []Range{}}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return legacyOnly(raw)
	}
	rangesJSON, ok := fields["ranges"]
	if !ok {
		return legacyOnly(raw)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(rangesJSON, &elems); err != nil {
		return legacyOnly(raw)
	}

	p := Payload{Legacy: fieldText(fields["legacy"]), Ranges: make([]Range, 0, len(elems))}
	for _, elem := range elems {
		var rf map[string]json.RawMessage
		if err := json.Unmarshal(elem, &rf); err != nil || rf == nil {
			continue
		}
		p.Ranges = append(p.Ranges, Range{
			Status:    fieldText(rf["status"]),
			StartDate: fieldText(rf["start_date"]),
			EndDate:   fieldText(rf["end_date"]),
		})
	}
	return p
}

// fieldText returns a JSON string's value, "" for null or absent, and the
// raw JSON text for any other type.
func fieldText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

func legacyOnly(raw string) Payload {
	return Payload{Legacy: raw, Ranges: []Range{}}
}

// Serialize encodes the payload for storage. ok is false when the payload
// is empty and the column should hold NULL.
func Serialize(p Payload) (raw string, ok bool) {
	if p.IsEmpty() {
		return "", false
	}

	w := wirePayload{Ranges: p.Ranges}
	if w.Ranges == nil {
		w.Ranges = []Range{}
	}
	if p.Legacy != "" {
		legacy := p.Legacy
		w.Legacy = &legacy
	}

	// Encoding a struct of strings cannot fail.
	b, _ := json.Marshal(w)
	return string(b), true
}

// =============================================================================
// MUTATIONS
// =============================================================================

// UpsertRange drops any range identical to r and appends r at the end.
// Overlapping ranges with a different status are kept as they are.
func (p *Payload) UpsertRange(r Range) {
	p.RemoveRange(r)
	p.Ranges = append(p.Ranges, r)
}

// RemoveRange deletes every range identical to r and reports whether any
// was removed.
func (p *Payload) RemoveRange(r Range) bool {
	kept := make([]Range, 0, len(p.Ranges))
	for _, existing := range p.Ranges {
		if existing != r {
			kept = append(kept, existing)
		}
	}
	removed := len(kept) != len(p.Ranges)
	p.Ranges = kept
	return removed
}

// SetLegacy replaces the legacy value. Ranges are untouched.
func (p *Payload) SetLegacy(status string) {
	p.Legacy = status
}

// =============================================================================
// STORAGE EDGE - database/sql integration
// =============================================================================

// Scan implements sql.Scanner. NULL scans to an empty payload.
func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Parse("")
	case string:
		*p = Parse(v)
	case []byte:
		*p = Parse(string(v))
	default:
		return fmt.Errorf("status: cannot scan %T", src)
	}
	return nil
}

// Value implements driver.Valuer. Empty payloads are written as NULL.
func (p Payload) Value() (driver.Value, error) {
	raw, ok := Serialize(p)
	if !ok {
		return nil, nil
	}
	return raw, nil
}
