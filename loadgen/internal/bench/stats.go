package bench

import (
	"slices"
	"time"
)

// Stats summarises the latencies of one phase or of the whole run.
type Stats struct {
	Requests int
	Errors   int
	Min      time.Duration
	Max      time.Duration
	Mean     time.Duration
	Median   time.Duration
	// RPS is successful plus failed requests divided by wall-clock time.
	RPS float64
}

// Summarize computes Stats over latencies. errors counts requests that
// failed; elapsed is the wall-clock duration used for RPS.
func Summarize(latencies []time.Duration, errors int, elapsed time.Duration) Stats {
	s := Stats{Requests: len(latencies), Errors: errors}
	if len(latencies) == 0 {
		return s
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = total / time.Duration(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	if elapsed > 0 {
		s.RPS = float64(len(sorted)) / elapsed.Seconds()
	}
	return s
}
