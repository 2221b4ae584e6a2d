package bench

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exported by driftlog-server.
const (
	metricStored   = "driftlog_records_stored"
	metricIngested = "driftlog_records_ingested_total"
	metricRejected = "driftlog_records_rejected_total"
)

// ServerStats is what the server reported about itself after the run.
type ServerStats struct {
	Stored   float64
	Ingested float64
	Rejected float64
}

// ScrapeServer reads GET {baseURL}/metrics and extracts the driftlog gauges
// and counters. Counters are summed over all label values.
func ScrapeServer(ctx context.Context, client *http.Client, baseURL string) (ServerStats, error) {
	mfs, err := fetchMetrics(ctx, client, baseURL+"/metrics")
	if err != nil {
		return ServerStats{}, fmt.Errorf("scrape %s/metrics: %w", baseURL, err)
	}
	return ServerStats{
		Stored:   sumFamily(mfs[metricStored]),
		Ingested: sumFamily(mfs[metricIngested]),
		Rejected: sumFamily(mfs[metricRejected]),
	}, nil
}

func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial result with a
// trailing parse error still counts as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in mf; 0 if nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
