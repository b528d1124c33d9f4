package loadtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type fakeReader struct {
	mu    sync.Mutex
	usage ResourceUsage
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (r *fakeReader) Read() (ResourceUsage, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage, r.err
}

func (r *fakeReader) set(u ResourceUsage) {
	r.mu.Lock()
	r.usage = u
	r.mu.Unlock()
}

type samplerFunc func(ctx context.Context, req Request) Measurement

func (f samplerFunc) Sample(ctx context.Context, req Request) Measurement { return f(ctx, req) }

func okSampler(latency float64) samplerFunc {
	return func(ctx context.Context, req Request) Measurement {
		return Measurement{
			Endpoint:       req.Endpoint.Name,
			Method:         req.Endpoint.Method,
			ResponseTimeMs: latency,
			StatusCode:     200,
			Success:        true,
			Timestamp:      time.Now(),
		}
	}
}

type sliceSink struct {
	mu    sync.Mutex
	items []Measurement
}

func (s *sliceSink) Record(m Measurement) {
	s.mu.Lock()
	s.items = append(s.items, m)
	s.mu.Unlock()
}

func (s *sliceSink) all() []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Measurement, len(s.items))
	copy(out, s.items)
	return out
}

// countingObserver tracks concurrent actors and the peak seen.
type countingObserver struct {
	nopObserver
	active atomic.Int64
	peak   atomic.Int64
	snaps  atomic.Int64
}

func (o *countingObserver) ActorStarted(string) {
	n := o.active.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (o *countingObserver) ActorStopped(string) { o.active.Add(-1) }

func (o *countingObserver) ObserveSnapshot(ResourceSnapshot) { o.snaps.Add(1) }

func fastProfiles(think time.Duration) map[string]ActorProfile {
	return map[string]ActorProfile{
		"fast": {
			Name:      "fast",
			ThinkTime: think,
			Endpoints: []Endpoint{
				{Name: "health", Method: "GET", Path: "/health", Weight: 3},
				{Name: "items", Method: "GET", Path: "/items", Weight: 1},
			},
		},
	}
}

func stats(avg, p95, throughput, errorRate float64) Statistics {
	return Statistics{
		Count:            1000,
		SuccessRate:      1 - errorRate,
		ErrorRate:        errorRate,
		ThroughputPerSec: throughput,
		ResponseTime: ResponseTimeStats{
			Min: avg / 2, Max: avg * 3, Avg: avg, Median: avg, P95: p95, P99: p95 * 1.2,
		},
	}
}
