package status

import "github.com/warp/court-roster/roster"

// Resolve returns the status in effect on the given date.
//
// With a date, ranges are scanned in list order and the first range whose
// [start_date, end_date] contains the date wins. A range added later that
// also covers the date is shadowed, not preferred. Ranges with unparseable
// dates never match. Without a date (zero Date) ranges are ignored.
//
// When nothing matches, the legacy value is returned; ok is false when
// there is no legacy value either.
func Resolve(p Payload, on roster.Date) (status string, ok bool) {
	if !on.IsZero() {
		if r, found := MatchingRange(p, on); found {
			return r.Status, true
		}
	}
	return p.Legacy, p.Legacy != ""
}

// MatchingRange returns the first range covering the date.
func MatchingRange(p Payload, on roster.Date) (Range, bool) {
	for _, r := range p.Ranges {
		if r.Covers(on) {
			return r, true
		}
	}
	return Range{}, false
}

// Covers reports whether the range contains the date, inclusive at both
// ends. Malformed bounds cover nothing.
func (r Range) Covers(on roster.Date) bool {
	start, err := roster.ParseDate(r.StartDate)
	if err != nil {
		return false
	}
	end, err := roster.ParseDate(r.EndDate)
	if err != nil {
		return false
	}
	return on.Between(start, end)
}

// ResolveRaw parses a stored value and resolves it in one step.
func ResolveRaw(raw string, on roster.Date) (string, bool) {
	return Resolve(Parse(raw), on)
}
