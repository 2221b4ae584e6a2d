package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- Summarize --------------------------------------------------------------

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 0, time.Second)
	if s.Requests != 0 || s.Min != 0 || s.RPS != 0 {
		t.Errorf("got %+v, want zero stats", s)
	}
}

func TestSummarize_OddCount(t *testing.T) {
	ms := time.Millisecond
	s := Summarize([]time.Duration{30 * ms, 10 * ms, 20 * ms}, 1, 2*time.Second)

	if s.Requests != 3 || s.Errors != 1 {
		t.Errorf("counts: got %d/%d, want 3/1", s.Requests, s.Errors)
	}
	if s.Min != 10*ms || s.Max != 30*ms {
		t.Errorf("min/max: got %v/%v", s.Min, s.Max)
	}
	if s.Mean != 20*ms || s.Median != 20*ms {
		t.Errorf("mean/median: got %v/%v, want 20ms", s.Mean, s.Median)
	}
	if s.RPS != 1.5 {
		t.Errorf("RPS: got %v, want 1.5", s.RPS)
	}
}

func TestSummarize_EvenCountMedian(t *testing.T) {
	ms := time.Millisecond
	in := []time.Duration{40 * ms, 10 * ms, 20 * ms, 30 * ms}
	s := Summarize(in, 0, 0)
	if s.Median != 25*ms {
		t.Errorf("median: got %v, want 25ms", s.Median)
	}
	if in[0] != 40*ms {
		t.Error("Summarize reordered its input")
	}
}

// --- scrape -----------------------------------------------------------------

const exposition = `# HELP driftlog_records_stored Records currently held.
# TYPE driftlog_records_stored gauge
driftlog_records_stored 42
# HELP driftlog_records_ingested_total Log records accepted into the store.
# TYPE driftlog_records_ingested_total counter
driftlog_records_ingested_total{transport="grpc"} 2
driftlog_records_ingested_total{transport="http"} 40
# HELP driftlog_records_rejected_total Insert requests rejected.
# TYPE driftlog_records_rejected_total counter
driftlog_records_rejected_total{reason="invalid",transport="http"} 3
`

func TestParseMetrics_SumsLabels(t *testing.T) {
	mfs, err := parseMetrics(strings.NewReader(exposition))
	if err != nil {
		t.Fatalf("parseMetrics: %v", err)
	}
	if v := sumFamily(mfs[metricIngested]); v != 42 {
		t.Errorf("ingested: got %v, want 42", v)
	}
	if v := sumFamily(mfs["missing"]); v != 0 {
		t.Errorf("missing family: got %v, want 0", v)
	}
}

func TestParseMetrics_Garbage(t *testing.T) {
	if _, err := parseMetrics(strings.NewReader("{not prometheus")); err == nil {
		t.Error("expected error for unparseable input")
	}
}

// --- Runner -----------------------------------------------------------------

// fakeServer mimics the driftlog HTTP API closely enough for the runner.
type fakeServer struct {
	posts    atomic.Int64
	gets     atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu      sync.Mutex
	queries []string
	bodies  []map[string]string

	key string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/metrics" {
		io.WriteString(w, exposition) //nolint:errcheck
		return
	}
	if f.key != "" && r.Header.Get("X-Api-Key") != f.key {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	switch r.Method {
	case http.MethodPost:
		f.posts.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"x","message":"Log entry created successfully"}`) //nolint:errcheck
	case http.MethodGet:
		f.gets.Add(1)
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		f.mu.Unlock()
		io.WriteString(w, `[]`) //nolint:errcheck
	}
}

func TestRunner_Run(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rep, err := New(Config{BaseURL: srv.URL + "/", Requests: 30, Concurrency: 4}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fake.posts.Load() != 30 || fake.gets.Load() != 30 {
		t.Errorf("requests: got %d POST / %d GET, want 30/30", fake.posts.Load(), fake.gets.Load())
	}
	if p := fake.peak.Load(); p > 4 {
		t.Errorf("peak concurrency: got %d, want <= 4", p)
	}
	if len(rep.Phases) != 2 || rep.Phases[0].Name != "insert" || rep.Phases[1].Name != "query" {
		t.Fatalf("phases: %+v", rep.Phases)
	}
	if rep.Overall.Requests != 60 || rep.Overall.Errors != 0 {
		t.Errorf("overall: got %+v", rep.Overall)
	}
	if rep.Server == nil || rep.Server.Stored != 42 || rep.Server.Ingested != 42 || rep.Server.Rejected != 3 {
		t.Errorf("server stats: got %+v", rep.Server)
	}

	var unfiltered, byService, byRange int
	for _, q := range fake.queries {
		switch {
		case q == "":
			unfiltered++
		case strings.HasPrefix(q, "service_name="):
			byService++
		case strings.Contains(q, "start_time=") && strings.Contains(q, "end_time="):
			byRange++
		}
	}
	if unfiltered != 10 || byService != 10 || byRange != 10 {
		t.Errorf("query mix: %d/%d/%d, want 10/10/10", unfiltered, byService, byRange)
	}

	for _, b := range fake.bodies {
		if b["service_name"] == "" || b["message"] == "" {
			t.Fatalf("POST body missing fields: %v", b)
		}
	}
}

func TestRunner_CountsFailures(t *testing.T) {
	fake := &fakeServer{key: "secret"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rep, err := New(Config{BaseURL: srv.URL, Requests: 5, Concurrency: 2}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Overall.Errors != 10 {
		t.Errorf("errors: got %d, want 10", rep.Overall.Errors)
	}

	rep, err = New(Config{BaseURL: srv.URL, Requests: 5, Concurrency: 2, APIKey: "secret"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run with key: %v", err)
	}
	if rep.Overall.Errors != 0 {
		t.Errorf("errors with key: got %d, want 0", rep.Overall.Errors)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{BaseURL: srv.URL}).Run(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestReport_Print(t *testing.T) {
	rep := &Report{
		Phases:  []PhaseResult{{Name: "insert", Stats: Stats{Requests: 3, Min: time.Millisecond}}},
		Overall: Stats{Requests: 3},
		Server:  &ServerStats{Stored: 3, Ingested: 3},
	}
	var buf bytes.Buffer
	if err := rep.Print(&buf); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"insert", "overall", "1.00ms", "stored=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
