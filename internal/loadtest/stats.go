package loadtest

import (
	"math"
	"sort"
)

// ComputeStatistics reduces measurements to a Statistics summary. It has no
// side effects and returns a zero Statistics for empty input.
//
// Throughput is count divided by the span between the earliest and latest
// measurement timestamps. A zero span yields zero throughput.
func ComputeStatistics(measurements []Measurement) Statistics {
	n := len(measurements)
	if n == 0 {
		return Statistics{}
	}

	times := make([]float64, n)
	successes := 0
	var sum float64
	first, last := measurements[0].Timestamp, measurements[0].Timestamp

	for i, m := range measurements {
		times[i] = m.ResponseTimeMs
		sum += m.ResponseTimeMs
		if m.Success {
			successes++
		}
		if m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	sort.Float64s(times)

	stats := Statistics{
		Count:       n,
		SuccessRate: float64(successes) / float64(n),
		ErrorRate:   float64(n-successes) / float64(n),
		ResponseTime: ResponseTimeStats{
			Min:    times[0],
			Max:    times[n-1],
			Avg:    sum / float64(n),
			Median: Percentile(times, 50),
			P95:    Percentile(times, 95),
			P99:    Percentile(times, 99),
		},
	}

	if window := last.Sub(first).Seconds(); window > 0 {
		stats.ThroughputPerSec = float64(n) / window
	}
	return stats
}

// Percentile returns the nearest-rank percentile of an ascending slice:
// index ceil(p/100*n)-1 clamped to [0, n-1]. The result is always an element
// of the input.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// EndpointStatistics computes a Statistics summary per endpoint name.
func EndpointStatistics(measurements []Measurement) map[string]Statistics {
	grouped := make(map[string][]Measurement)
	for _, m := range measurements {
		grouped[m.Endpoint] = append(grouped[m.Endpoint], m)
	}

	out := make(map[string]Statistics, len(grouped))
	for name, ms := range grouped {
		out[name] = ComputeStatistics(ms)
	}
	return out
}
