package bench

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/driftlog/driftlog/pkg/types"
)

// Services and Messages are the pools random records are drawn from.
var (
	Services = []string{
		"auth-service", "user-service", "payment-service",
		"notification-service", "data-service",
	}
	Messages = []string{
		"User login successful", "Failed login attempt", "Payment processed",
		"User profile updated", "Data sync completed", "Password reset requested",
		"New user registered", "Session expired", "API rate limit exceeded",
		"Database backup completed",
	}
)

// Config controls one benchmark run.
type Config struct {
	BaseURL     string
	Requests    int // per phase
	Concurrency int
	Timeout     time.Duration

	// APIKey is sent in Header when non-empty.
	APIKey string
	Header string
}

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Name  string
	Stats Stats

	latencies []time.Duration
}

// Report is the outcome of a full run.
type Report struct {
	Phases  []PhaseResult
	Overall Stats
	Server  *ServerStats // nil when the scrape failed
}

// Runner sends the write and read phases against a driftlog server.
type Runner struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// New creates a Runner. Zero Requests, Concurrency or Timeout fall back to
// 100, 10 and 10s.
func New(cfg Config) *Runner {
	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Header == "" {
		cfg.Header = "x-api-key"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Run executes the insert phase, then the query phase, then scrapes the
// server's metrics. It returns an error only when ctx is cancelled; failed
// requests are counted in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now()

	insert, err := r.phase(ctx, "insert", r.insert)
	if err != nil {
		return nil, err
	}
	query, err := r.phase(ctx, "query", r.query)
	if err != nil {
		return nil, err
	}
	elapsed := r.now().Sub(start)

	all := slices.Concat(insert.latencies, query.latencies)
	rep := &Report{
		Phases:  []PhaseResult{insert, query},
		Overall: Summarize(all, insert.Stats.Errors+query.Stats.Errors, elapsed),
	}

	if s, err := ScrapeServer(ctx, r.client, r.cfg.BaseURL); err != nil {
		slog.Warn("bench: metrics scrape failed", "err", err)
	} else {
		rep.Server = &s
	}
	return rep, nil
}

// phase runs do Requests times with at most Concurrency in flight.
func (r *Runner) phase(ctx context.Context, name string, do func(ctx context.Context, i int) error) (PhaseResult, error) {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, r.cfg.Requests)
		failures  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	start := r.now()
	for i := 0; i < r.cfg.Requests; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			t0 := time.Now()
			err := do(gctx, i)
			d := time.Since(t0)

			mu.Lock()
			latencies = append(latencies, d)
			if err != nil {
				failures++
			}
			mu.Unlock()

			if err != nil {
				slog.Debug("bench: request failed", "phase", name, "i", i, "err", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	if err := ctx.Err(); err != nil {
		return PhaseResult{}, err
	}

	return PhaseResult{
		Name:      name,
		Stats:     Summarize(latencies, failures, r.now().Sub(start)),
		latencies: latencies,
	}, nil
}

// insert posts one random record.
func (r *Runner) insert(ctx context.Context, _ int) error {
	body, err := gojson.Marshal(types.IngestRequest{
		ServiceName: pick(Services),
		Message:     pick(Messages),
		Timestamp:   r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return r.do(ctx, http.MethodPost, r.cfg.BaseURL+"/log", bytes.NewReader(body), http.StatusCreated)
}

// query issues one GET /log. A third are unfiltered, a third filter by
// service and the rest by a random 1-24h window ending now.
func (r *Runner) query(ctx context.Context, i int) error {
	q := url.Values{}
	switch i % 3 {
	case 1:
		q.Set("service_name", pick(Services))
	case 2:
		end := r.now().UTC()
		start := end.Add(-time.Duration(1+rand.IntN(24)) * time.Hour)
		q.Set("start_time", start.Format(time.RFC3339))
		q.Set("end_time", end.Format(time.RFC3339))
	}
	u := r.cfg.BaseURL + "/log"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return r.do(ctx, http.MethodGet, u, nil, http.StatusOK)
}

func (r *Runner) do(ctx context.Context, method, u string, body io.Reader, want int) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.cfg.APIKey != "" {
		req.Header.Set(r.cfg.Header, r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d, want %d", method, u, resp.StatusCode, want)
	}
	return nil
}

func pick(pool []string) string {
	return pool[rand.IntN(len(pool))]
}
