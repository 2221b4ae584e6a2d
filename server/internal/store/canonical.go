package store

import (
	"strings"
	"time"
)

// Offset-free layouts are read as UTC. Layouts carrying an offset are tried
// first so "Z" and "+02:00" suffixes are honoured.
var (
	offsetLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// Canonical returns t in the canonical representation used for every stored
// or compared timestamp: UTC location, monotonic clock reading stripped.
func Canonical(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in canonical
// form. Values without an offset are interpreted as UTC. A space may be used
// in place of the "T" separator.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, invalid("timestamp", "empty value")
	}
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Canonical(t), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Canonical(t), nil
		}
	}
	return time.Time{}, invalid("timestamp", "not an ISO-8601 time: "+s)
}
