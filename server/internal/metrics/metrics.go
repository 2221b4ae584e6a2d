// Package metrics defines the Prometheus collectors exported by driftlog-server
// on GET /metrics. Collectors are registered on a private registry so tests
// can build independent instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "driftlog"

// Transport label values.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Rejection reason label values.
const (
	ReasonInvalid   = "invalid"
	ReasonDuplicate = "duplicate"
	ReasonMalformed = "malformed"
)

// Metrics groups every collector the server updates.
type Metrics struct {
	reg *prometheus.Registry

	Ingested      *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
	Queries       *prometheus.CounterVec
	QueryDuration prometheus.Histogram

	Sweeps        prometheus.Counter
	SweepFailures prometheus.Counter
	Expired       prometheus.Counter
	SweepDuration prometheus.Histogram
}

// New creates and registers all collectors. stored is sampled on every scrape
// for the driftlog_records_stored gauge; it may be nil.
func New(stored func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Log records accepted into the store.",
		}, []string{"transport"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Insert requests rejected before reaching the store.",
		}, []string{"transport", "reason"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries served.",
		}, []string{"transport"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent filtering and sorting records for a query.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Expiration sweeps attempted.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Expiration sweeps that failed with an internal error.",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_expired_total",
			Help:      "Records removed by expiration sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiration sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	m.reg.MustRegister(
		m.Ingested, m.Rejected, m.Queries, m.QueryDuration,
		m.Sweeps, m.SweepFailures, m.Expired, m.SweepDuration,
		collectors.NewGoCollector(),
	)
	if stored != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_stored",
			Help:      "Records currently held in memory.",
		}, func() float64 { return float64(stored()) }))
	}
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
