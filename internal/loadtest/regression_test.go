package loadtest

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap/zaptest"
)

type countingStore struct {
	BaselineStore
	saves int
	err   error
}

func (s *countingStore) Save(ctx context.Context, suite string, st Statistics, res *ResourceSummary, env map[string]string) (*Baseline, error) {
	s.saves++
	if s.err != nil {
		return nil, s.err
	}
	return s.BaselineStore.Save(ctx, suite, st, res, env)
}

func baselineOf(st Statistics, peakMemory uint64) *Baseline {
	b := &Baseline{TestSuite: "suite", Statistics: st}
	if peakMemory > 0 {
		b.Resources = &ResourceSummary{PeakMemoryBytes: peakMemory}
	}
	return b
}

func TestRegressionAnalyzer_ResponseTimeRegression(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, zaptest.NewLogger(t))

	analysis, err := a.Analyze(context.Background(), "suite",
		CurrentMetrics{Statistics: stats(125, 200, 100, 0)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if err != nil {
		t.Fatal(err)
	}

	avg := analysis.Comparison.Metrics[MetricAvgResponseTime]
	if !avg.IsRegression {
		t.Error("expected avg response time regression")
	}
	if math.Abs(avg.Change-25.0) > 1e-9 {
		t.Errorf("expected change 25.0, got %f", avg.Change)
	}
	if analysis.Comparison.Status != StatusRegression {
		t.Errorf("expected regression status, got %s", analysis.Comparison.Status)
	}
	if len(analysis.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d: %+v", len(analysis.Alerts), analysis.Alerts)
	}
	alert := analysis.Alerts[0]
	if alert.Type != AlertRegression || alert.Metric != MetricAvgResponseTime || alert.Severity != SeverityMedium {
		t.Errorf("unexpected alert: %+v", alert)
	}
	if alert.ThresholdPercent != 20 || math.Abs(alert.ObservedPercent-25) > 1e-9 {
		t.Errorf("unexpected alert percentages: %+v", alert)
	}
}

func TestRegressionAnalyzer_WithinThreshold(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	analysis, err := a.Analyze(context.Background(), "suite",
		CurrentMetrics{Statistics: stats(115, 200, 100, 0)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if err != nil {
		t.Fatal(err)
	}

	if analysis.Comparison.Metrics[MetricAvgResponseTime].IsRegression {
		t.Error("15% slower must not regress against a 20% threshold")
	}
	if analysis.Comparison.Status != StatusPass {
		t.Errorf("expected pass, got %s", analysis.Comparison.Status)
	}
	if len(analysis.Alerts) != 0 {
		t.Errorf("expected no alerts, got %+v", analysis.Alerts)
	}
}

func TestRegressionAnalyzer_Metrics(t *testing.T) {
	tests := []struct {
		name       string
		baseline   *Baseline
		current    CurrentMetrics
		metric     string
		regression bool
	}{
		{
			name:       "p95 regression",
			baseline:   baselineOf(stats(100, 200, 100, 0), 0),
			current:    CurrentMetrics{Statistics: stats(100, 250, 100, 0)},
			metric:     MetricP95ResponseTime,
			regression: true,
		},
		{
			name:       "throughput drop beyond threshold",
			baseline:   baselineOf(stats(100, 200, 100, 0), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 80, 0)},
			metric:     MetricThroughput,
			regression: true,
		},
		{
			name:       "throughput drop within threshold",
			baseline:   baselineOf(stats(100, 200, 100, 0), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 90, 0)},
			metric:     MetricThroughput,
			regression: false,
		},
		{
			name:       "throughput increase",
			baseline:   baselineOf(stats(100, 200, 100, 0), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 150, 0)},
			metric:     MetricThroughput,
			regression: false,
		},
		{
			name:       "error rate up six points",
			baseline:   baselineOf(stats(100, 200, 100, 0.01), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 100, 0.07)},
			metric:     MetricErrorRate,
			regression: true,
		},
		{
			name:       "error rate up four points",
			baseline:   baselineOf(stats(100, 200, 100, 0.01), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 100, 0.05)},
			metric:     MetricErrorRate,
			regression: false,
		},
		{
			name:       "error rate from zero",
			baseline:   baselineOf(stats(100, 200, 100, 0), 0),
			current:    CurrentMetrics{Statistics: stats(100, 200, 100, 0.1)},
			metric:     MetricErrorRate,
			regression: true,
		},
		{
			name:     "memory growth",
			baseline: baselineOf(stats(100, 200, 100, 0), 100<<20),
			current: CurrentMetrics{
				Statistics: stats(100, 200, 100, 0),
				Resources:  &ResourceSummary{PeakMemoryBytes: 130 << 20},
			},
			metric:     MetricMemory,
			regression: true,
		},
		{
			name:     "memory within threshold",
			baseline: baselineOf(stats(100, 200, 100, 0), 100<<20),
			current: CurrentMetrics{
				Statistics: stats(100, 200, 100, 0),
				Resources:  &ResourceSummary{PeakMemoryBytes: 110 << 20},
			},
			metric:     MetricMemory,
			regression: false,
		},
	}

	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := a.Compare("suite", tt.current, tt.baseline)
			m, ok := c.Metrics[tt.metric]
			if !ok {
				t.Fatalf("metric %s not compared", tt.metric)
			}
			if m.IsRegression != tt.regression {
				t.Errorf("expected regression=%v, got %+v", tt.regression, m)
			}
		})
	}
}

func TestRegressionAnalyzer_ErrorRateIsAbsolute(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	// 1% -> 2% doubles the rate but is only one point.
	c := a.Compare("suite",
		CurrentMetrics{Statistics: stats(100, 200, 100, 0.02)},
		baselineOf(stats(100, 200, 100, 0.01), 0))

	m := c.Metrics[MetricErrorRate]
	if m.IsRegression {
		t.Error("one point increase must not regress")
	}
	if math.Abs(m.Change-1) > 1e-9 || !m.Absolute {
		t.Errorf("expected absolute change of 1 point, got %+v", m)
	}
}

func TestRegressionAnalyzer_ThresholdBoundaries(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	tests := []struct {
		name     string
		metric   string
		baseline Statistics
		current  Statistics
	}{
		{"error rate 10% to 15%", MetricErrorRate, stats(100, 200, 100, 0.10), stats(100, 200, 100, 0.15)},
		{"error rate 0% to 5%", MetricErrorRate, stats(100, 200, 100, 0), stats(100, 200, 100, 0.05)},
		{"avg response +20%", MetricAvgResponseTime, stats(0.1, 200, 100, 0), stats(0.12, 200, 100, 0)},
		{"p95 response +20%", MetricP95ResponseTime, stats(100, 1.1, 100, 0), stats(100, 1.32, 100, 0)},
		{"throughput -15%", MetricThroughput, stats(100, 200, 0.3, 0), stats(100, 200, 0.255, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := a.Compare("suite", CurrentMetrics{Statistics: tt.current}, baselineOf(tt.baseline, 0))
			if m := c.Metrics[tt.metric]; !m.IsRegression {
				t.Errorf("change %.17g at threshold %.1f should regress", m.Change, m.Threshold)
			}
		})
	}
}

func TestRegressionAnalyzer_Improvement(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	analysis, err := a.Analyze(context.Background(), "suite",
		CurrentMetrics{Statistics: stats(85, 200, 100, 0)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if err != nil {
		t.Fatal(err)
	}

	if len(analysis.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", analysis.Alerts)
	}
	alert := analysis.Alerts[0]
	if alert.Type != AlertImprovement || alert.Severity != SeverityInfo {
		t.Errorf("expected info improvement, got %s/%s", alert.Type, alert.Severity)
	}
	if analysis.Comparison.Status != StatusPass {
		t.Errorf("improvement must not change status, got %s", analysis.Comparison.Status)
	}

	// Exactly 10% faster is not more than 10%.
	c := a.Compare("suite",
		CurrentMetrics{Statistics: stats(90, 200, 100, 0)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if c.Metrics[MetricAvgResponseTime].IsImprovement {
		t.Error("10% faster should not count as improvement")
	}
}

func TestRegressionAnalyzer_Severity(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	analysis, err := a.Analyze(context.Background(), "suite",
		CurrentMetrics{Statistics: stats(145, 200, 100, 0)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(analysis.Alerts) != 1 || analysis.Alerts[0].Severity != SeverityHigh {
		t.Errorf("expected a single high severity alert, got %+v", analysis.Alerts)
	}
}

func TestRegressionAnalyzer_ZeroBaselineSkipped(t *testing.T) {
	a := NewRegressionAnalyzer(DefaultThresholds(), nil, nil)

	c := a.Compare("suite",
		CurrentMetrics{Statistics: stats(100, 200, 50, 0)},
		baselineOf(Statistics{}, 0))

	for _, name := range []string{MetricAvgResponseTime, MetricP95ResponseTime, MetricThroughput} {
		m := c.Metrics[name]
		if !m.Skipped || m.IsRegression {
			t.Errorf("%s: expected skipped comparison, got %+v", name, m)
		}
	}
	if _, ok := c.Metrics[MetricMemory]; ok {
		t.Error("memory must not be compared without a baseline figure")
	}
}

func TestRegressionAnalyzer_FirstRunCreatesBaseline(t *testing.T) {
	store := &countingStore{BaselineStore: NewMemoryBaselineStore()}
	a := NewRegressionAnalyzer(DefaultThresholds(), store, nil)
	ctx := context.Background()

	current := CurrentMetrics{
		Statistics:  stats(500, 900, 10, 0.5),
		Environment: map[string]string{"os": "linux"},
	}
	analysis, err := a.Analyze(ctx, "fresh", current, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(analysis.Alerts) != 0 {
		t.Errorf("first run must not alert, got %+v", analysis.Alerts)
	}
	if !analysis.Comparison.BaselineCreated || analysis.Comparison.Status != StatusNoBaseline {
		t.Errorf("expected created baseline, got %+v", analysis.Comparison)
	}
	if store.saves != 1 {
		t.Errorf("expected 1 save, got %d", store.saves)
	}

	saved, err := store.Load(ctx, "fresh")
	if err != nil || saved == nil {
		t.Fatalf("expected stored baseline, got %v, %v", saved, err)
	}
	if saved.Statistics != current.Statistics || saved.Environment["os"] != "linux" {
		t.Errorf("stored baseline does not match run: %+v", saved)
	}
}

func TestRegressionAnalyzer_ComparisonDoesNotWrite(t *testing.T) {
	store := &countingStore{BaselineStore: NewMemoryBaselineStore()}
	a := NewRegressionAnalyzer(DefaultThresholds(), store, nil)

	_, err := a.Analyze(context.Background(), "suite",
		CurrentMetrics{Statistics: stats(300, 600, 10, 0.5)},
		baselineOf(stats(100, 200, 100, 0), 0))
	if err != nil {
		t.Fatal(err)
	}
	if store.saves != 0 {
		t.Errorf("comparison run wrote the baseline %d times", store.saves)
	}
}

func TestRegressionAnalyzer_SaveFailure(t *testing.T) {
	store := &countingStore{BaselineStore: NewMemoryBaselineStore(), err: errors.New("disk full")}
	a := NewRegressionAnalyzer(DefaultThresholds(), store, nil)

	analysis, err := a.Analyze(context.Background(), "suite", CurrentMetrics{Statistics: stats(1, 1, 1, 0)}, nil)
	if err == nil {
		t.Fatal("expected save error")
	}
	if analysis == nil || len(analysis.Alerts) != 0 || analysis.Comparison.BaselineCreated {
		t.Errorf("expected usable analysis without baseline, got %+v", analysis)
	}
}

func TestThresholds_Defaults(t *testing.T) {
	a := NewRegressionAnalyzer(Thresholds{ResponseTimePercent: 50}, nil, nil)
	th := a.Thresholds()

	if th.ResponseTimePercent != 50 {
		t.Errorf("expected custom response time threshold, got %f", th.ResponseTimePercent)
	}
	if th.ThroughputPercent != 15 || th.ErrorRatePoints != 5 || th.MemoryPercent != 25 || th.ImprovementPercent != 10 {
		t.Errorf("expected defaults for unset thresholds, got %+v", th)
	}
}
