package store

import (
	"slices"
	"time"
)

// Filter selects records in Query. Zero-valued fields do not filter.
type Filter struct {
	// ServiceName is an exact match on Record.ServiceName.
	ServiceName string

	// Start and End are inclusive bounds on Record.Timestamp. Any offset is
	// normalized to UTC before comparison.
	Start *time.Time
	End   *time.Time

	// Expr is an optional compiled predicate applied after the structured filters.
	Expr *Expr

	// Limit caps the result to the earliest Limit records. 0 means no limit.
	Limit int
}

// canonical returns a copy of f with both bounds in canonical form.
func (f Filter) canonical() Filter {
	if f.Start != nil {
		t := Canonical(*f.Start)
		f.Start = &t
	}
	if f.End != nil {
		t := Canonical(*f.End)
		f.End = &t
	}
	return f
}

// matches applies the service and time-range predicates, in that order.
func (f Filter) matches(rec Record) bool {
	if f.ServiceName != "" && rec.ServiceName != f.ServiceName {
		return false
	}
	if f.Start != nil && rec.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && rec.Timestamp.After(*f.End) {
		return false
	}
	return true
}

func filterExpr(recs []Record, e *Expr, now time.Time) []Record {
	out := recs[:0]
	for _, rec := range recs {
		if e.Match(rec, now) {
			out = append(out, rec)
		}
	}
	return out
}

// sortByTimestamp orders recs ascending by timestamp. The sort is stable so
// records sharing a timestamp stay in insertion order.
func sortByTimestamp(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

func applyLimit(recs []Record, limit int) []Record {
	if limit > 0 && len(recs) > limit {
		return recs[:limit:limit]
	}
	return recs
}
