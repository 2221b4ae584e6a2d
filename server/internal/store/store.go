package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one ingested log event. Records are never mutated once stored;
// the store hands out copies.
type Record struct {
	ID          string
	ServiceName string
	Timestamp   time.Time
	Message     string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used to stamp records inserted without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithInsertHook registers fn to be called once for every stored record.
// Hooks run after the write lock is released, in registration order.
func WithInsertHook(fn func(Record)) Option {
	return func(s *Store) { s.hooks = append(s.hooks, fn) }
}

// Store is a thread-safe in-memory log record store.
// Records are kept in insertion order; ids are indexed for uniqueness.
type Store struct {
	mu      sync.RWMutex
	records []Record
	ids     map[string]struct{}

	now   func() time.Time
	hooks []func(Record)
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		ids: make(map[string]struct{}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert validates rec, fills in a generated ID and the current time when
// they are absent, and stores it. It returns the stored record's ID.
func (s *Store) Insert(rec Record) (string, error) {
	rec, err := s.prepare(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if _, dup := s.ids[rec.ID]; dup {
		s.mu.Unlock()
		return "", fmt.Errorf("insert %q: %w", rec.ID, ErrDuplicateID)
	}
	s.append(rec)
	s.mu.Unlock()

	s.notify(rec)
	return rec.ID, nil
}

// InsertBatch stores all of recs or none of them. Every record is validated
// before the write lock is taken; readers observe the whole batch at once.
func (s *Store) InsertBatch(recs []Record) ([]string, error) {
	prepared := make([]Record, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		p, err := s.prepare(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("record %d: insert %q: %w", i, p.ID, ErrDuplicateID)
		}
		seen[p.ID] = struct{}{}
		prepared[i] = p
	}

	s.mu.Lock()
	for i, p := range prepared {
		if _, dup := s.ids[p.ID]; dup {
			s.mu.Unlock()
			return nil, fmt.Errorf("record %d: insert %q: %w", i, p.ID, ErrDuplicateID)
		}
	}
	for _, p := range prepared {
		s.append(p)
	}
	s.mu.Unlock()

	ids := make([]string, len(prepared))
	for i, p := range prepared {
		ids[i] = p.ID
		s.notify(p)
	}
	return ids, nil
}

// Query returns the records matching f, sorted ascending by timestamp with
// insertion order breaking ties. The result is a fresh slice owned by the caller.
func (s *Store) Query(f Filter) []Record {
	f = f.canonical()

	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if f.matches(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	if f.Expr != nil {
		out = filterExpr(out, f.Expr, Canonical(s.now()))
	}
	sortByTimestamp(out)
	return applyLimit(out, f.Limit)
}

// ExpireOlderThan removes every record whose timestamp is at or before
// threshold and returns how many were removed. Records strictly newer than
// threshold are kept in their original order.
func (s *Store) ExpireOlderThan(threshold time.Time) int {
	threshold = Canonical(threshold)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Timestamp.After(threshold) {
			kept = append(kept, rec)
			continue
		}
		delete(s.ids, rec.ID)
	}
	removed := len(s.records) - len(kept)

	// Clear the tail so removed records can be collected.
	clear(s.records[len(kept):])
	s.records = kept
	return removed
}

// Count returns the number of records currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// prepare validates rec and returns it with defaults applied.
func (s *Store) prepare(rec Record) (Record, error) {
	if rec.ServiceName == "" {
		return Record{}, invalid("service_name", "required")
	}
	if rec.Message == "" {
		return Record{}, invalid("message", "required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Timestamp = Canonical(rec.Timestamp)
	return rec, nil
}

// append must be called with the write lock held.
func (s *Store) append(rec Record) {
	s.records = append(s.records, rec)
	s.ids[rec.ID] = struct{}{}
}

func (s *Store) notify(rec Record) {
	for _, fn := range s.hooks {
		fn(rec)
	}
}
