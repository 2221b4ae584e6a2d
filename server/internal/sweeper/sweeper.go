// Package sweeper runs the periodic expiration of log records older than the
// retention window. A failed sweep is logged and counted; it never stops the
// loop. Run returns when its context is cancelled.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftlog/driftlog/server/internal/metrics"
)

// Expirer removes records at or before a threshold and reports how many were removed.
// *store.Store satisfies it.
type Expirer interface {
	ExpireOlderThan(threshold time.Time) int
}

// Config holds the sweep schedule. Both values are fixed for the sweeper's lifetime.
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration

	// Retention is the maximum age a record may reach before it is removed.
	Retention time.Duration
}

// InternalError wraps an unexpected failure inside one sweep.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "sweep: internal error: " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now as the source of the sweep threshold.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger used for per-tick reports. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.log = l }
}

// WithMetrics records sweep counts, failures and durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// Sweeper periodically calls ExpireOlderThan(now - Retention) on its target.
type Sweeper struct {
	target  Expirer
	cfg     Config
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Sweeper for target. cfg must have positive Interval and Retention.
func New(target Expirer, cfg Config, opts ...Option) *Sweeper {
	s := &Sweeper{
		target: target,
		cfg:    cfg,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	s.log.Info("sweeper: started", "interval", s.cfg.Interval, "retention", s.cfg.Retention)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper: stopped")
			return
		case <-t.C:
			s.tick()
		}
	}
}

// tick performs one sweep and reports its outcome. Errors stay local to the tick.
func (s *Sweeper) tick() {
	now := s.now()
	start := time.Now()
	n, err := s.Sweep(now)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.Sweeps.Inc()
		s.metrics.SweepDuration.Observe(elapsed.Seconds())
	}

	switch {
	case err != nil:
		if s.metrics != nil {
			s.metrics.SweepFailures.Inc()
		}
		s.log.Error("sweeper: sweep failed", "err", err)
	case n > 0:
		if s.metrics != nil {
			s.metrics.Expired.Add(float64(n))
		}
		s.log.Info("sweeper: expired records", "count", n, "duration", elapsed)
	default:
		s.log.Debug("sweeper: no records expired")
	}
}

// Sweep removes every record at or before now - Retention. A panic in the
// target is recovered and returned as an *InternalError.
func (s *Sweeper) Sweep(now time.Time) (removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			removed = 0
			err = &InternalError{Err: fmt.Errorf("%v", r)}
		}
	}()
	threshold := now.Add(-s.cfg.Retention).UTC()
	return s.target.ExpireOlderThan(threshold), nil
}
