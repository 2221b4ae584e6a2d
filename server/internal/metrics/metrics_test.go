package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_StoredGaugeSampled(t *testing.T) {
	n := 0
	m := New(func() int { return n })
	n = 7

	got, err := testutil.GatherAndCount(m.Registry(), "driftlog_records_stored")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if got != 1 {
		t.Fatalf("records_stored series: got %d, want 1", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "driftlog_records_stored 7") {
		t.Errorf("exposition missing stored gauge:\n%s", rr.Body.String())
	}
}

func TestCounters(t *testing.T) {
	m := New(nil)
	m.Ingested.WithLabelValues(TransportHTTP).Add(3)
	m.Rejected.WithLabelValues(TransportGRPC, ReasonDuplicate).Inc()
	m.Expired.Add(2)

	if v := testutil.ToFloat64(m.Ingested.WithLabelValues(TransportHTTP)); v != 3 {
		t.Errorf("ingested: got %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.Rejected.WithLabelValues(TransportGRPC, ReasonDuplicate)); v != 1 {
		t.Errorf("rejected: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Expired); v != 2 {
		t.Errorf("expired: got %v, want 2", v)
	}
}
