package loadtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Tracked metric names.
const (
	MetricAvgResponseTime = "avg_response_time_ms"
	MetricP95ResponseTime = "p95_response_time_ms"
	MetricThroughput      = "throughput_per_sec"
	MetricErrorRate       = "error_rate"
	MetricMemory          = "peak_memory_bytes"
)

// Thresholds configures when a metric change counts as a regression.
// ErrorRatePoints is an absolute change in percentage points; the others are
// relative changes in percent.
type Thresholds struct {
	ResponseTimePercent float64 `json:"response_time_percent" yaml:"response_time_percent"`
	ThroughputPercent   float64 `json:"throughput_percent" yaml:"throughput_percent"`
	ErrorRatePoints     float64 `json:"error_rate_points" yaml:"error_rate_points"`
	MemoryPercent       float64 `json:"memory_percent" yaml:"memory_percent"`
	ImprovementPercent  float64 `json:"improvement_percent" yaml:"improvement_percent"`
}

// DefaultThresholds returns the standard regression limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTimePercent: 20,
		ThroughputPercent:   15,
		ErrorRatePoints:     5,
		MemoryPercent:       25,
		ImprovementPercent:  10,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.ResponseTimePercent <= 0 {
		t.ResponseTimePercent = d.ResponseTimePercent
	}
	if t.ThroughputPercent <= 0 {
		t.ThroughputPercent = d.ThroughputPercent
	}
	if t.ErrorRatePoints <= 0 {
		t.ErrorRatePoints = d.ErrorRatePoints
	}
	if t.MemoryPercent <= 0 {
		t.MemoryPercent = d.MemoryPercent
	}
	if t.ImprovementPercent <= 0 {
		t.ImprovementPercent = d.ImprovementPercent
	}
	return t
}

// CurrentMetrics is what a run measured, as handed to the analyzer.
type CurrentMetrics struct {
	Statistics  Statistics
	Resources   *ResourceSummary
	Environment map[string]string
}

// ComparisonStatus is the overall verdict of a comparison.
type ComparisonStatus string

const (
	StatusPass       ComparisonStatus = "pass"
	StatusRegression ComparisonStatus = "regression"
	StatusNoBaseline ComparisonStatus = "no_baseline"
	// StatusUnavailable means the baseline could not be read; nothing was
	// compared and nothing was written.
	StatusUnavailable ComparisonStatus = "baseline_unavailable"
)

// MetricComparison is the delta of one metric against its baseline value.
// Change is in percent, or percentage points for the error rate.
type MetricComparison struct {
	Metric        string  `json:"metric"`
	Baseline      float64 `json:"baseline"`
	Current       float64 `json:"current"`
	Change        float64 `json:"change"`
	Threshold     float64 `json:"threshold"`
	HigherIsWorse bool    `json:"higher_is_worse"`
	Absolute      bool    `json:"absolute"`
	IsRegression  bool    `json:"is_regression"`
	IsImprovement bool    `json:"is_improvement"`
	Skipped       bool    `json:"skipped,omitempty"`
}

// Comparison is the outcome of comparing a run with its suite's baseline.
type Comparison struct {
	TestSuite       string                      `json:"test_suite"`
	Baseline        *Baseline                   `json:"baseline,omitempty"`
	BaselineCreated bool                        `json:"baseline_created"`
	Metrics         map[string]MetricComparison `json:"metrics"`
	Status          ComparisonStatus            `json:"status"`
}

// Analysis bundles a comparison with the alerts it produced.
type Analysis struct {
	Comparison *Comparison
	Alerts     []Alert
}

// RegressionAnalyzer compares statistics against a stored baseline. It only
// writes to the store when no baseline exists for the suite.
type RegressionAnalyzer struct {
	thresholds Thresholds
	store      BaselineStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegressionAnalyzer creates an analyzer. Zero thresholds take defaults.
func NewRegressionAnalyzer(thresholds Thresholds, store BaselineStore, logger *zap.Logger) *RegressionAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegressionAnalyzer{
		thresholds: thresholds.withDefaults(),
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Thresholds returns the effective thresholds.
func (a *RegressionAnalyzer) Thresholds() Thresholds { return a.thresholds }

// Analyze compares current against baseline. With no baseline the current
// statistics are saved as the suite's first baseline and no alerts are
// produced. A save failure is returned alongside a valid analysis.
func (a *RegressionAnalyzer) Analyze(ctx context.Context, testSuite string, current CurrentMetrics, baseline *Baseline) (*Analysis, error) {
	if baseline == nil {
		analysis := &Analysis{
			Comparison: &Comparison{
				TestSuite: testSuite,
				Metrics:   map[string]MetricComparison{},
				Status:    StatusNoBaseline,
			},
		}
		if a.store == nil {
			return analysis, nil
		}
		created, err := a.store.Save(ctx, testSuite, current.Statistics, current.Resources, current.Environment)
		if err != nil {
			return analysis, fmt.Errorf("save initial baseline for %q: %w", testSuite, err)
		}
		analysis.Comparison.Baseline = created
		analysis.Comparison.BaselineCreated = true
		a.logger.Info("initial baseline created", zap.String("test_suite", testSuite))
		return analysis, nil
	}

	comparison := a.Compare(testSuite, current, baseline)
	return &Analysis{
		Comparison: comparison,
		Alerts:     a.alertsFor(comparison),
	}, nil
}

// Compare computes per-metric deltas without touching the store.
func (a *RegressionAnalyzer) Compare(testSuite string, current CurrentMetrics, baseline *Baseline) *Comparison {
	th := a.thresholds
	base := baseline.Statistics
	cur := current.Statistics

	c := &Comparison{
		TestSuite: testSuite,
		Baseline:  baseline,
		Metrics:   make(map[string]MetricComparison, 5),
		Status:    StatusPass,
	}

	c.Metrics[MetricAvgResponseTime] = compareRelative(MetricAvgResponseTime,
		base.ResponseTime.Avg, cur.ResponseTime.Avg, th.ResponseTimePercent, true)
	c.Metrics[MetricP95ResponseTime] = compareRelative(MetricP95ResponseTime,
		base.ResponseTime.P95, cur.ResponseTime.P95, th.ResponseTimePercent, true)
	c.Metrics[MetricThroughput] = compareRelative(MetricThroughput,
		base.ThroughputPerSec, cur.ThroughputPerSec, th.ThroughputPercent, false)
	c.Metrics[MetricErrorRate] = compareErrorRate(base.ErrorRate, cur.ErrorRate, th.ErrorRatePoints)

	if baseline.Resources != nil && current.Resources != nil {
		c.Metrics[MetricMemory] = compareRelative(MetricMemory,
			float64(baseline.Resources.PeakMemoryBytes), float64(current.Resources.PeakMemoryBytes),
			th.MemoryPercent, true)
	}

	if avg, ok := c.Metrics[MetricAvgResponseTime]; ok && !avg.Skipped && avg.Change < -th.ImprovementPercent-changeEpsilon {
		avg.IsImprovement = true
		c.Metrics[MetricAvgResponseTime] = avg
	}

	for _, m := range c.Metrics {
		if m.IsRegression {
			c.Status = StatusRegression
			break
		}
	}
	return c
}

// changeEpsilon absorbs float rounding so a change landing exactly on its
// threshold counts as crossing it.
const changeEpsilon = 1e-9

// compareRelative compares a metric by percent change. A non-positive
// baseline leaves the change undefined and the metric is skipped.
func compareRelative(metric string, baseline, current, threshold float64, higherIsWorse bool) MetricComparison {
	mc := MetricComparison{
		Metric:        metric,
		Baseline:      baseline,
		Current:       current,
		Threshold:     threshold,
		HigherIsWorse: higherIsWorse,
	}
	if baseline <= 0 {
		mc.Skipped = true
		return mc
	}
	mc.Change = (current - baseline) / baseline * 100
	if higherIsWorse {
		mc.IsRegression = mc.Change >= threshold-changeEpsilon
	} else {
		mc.IsRegression = mc.Change <= -threshold+changeEpsilon
	}
	return mc
}

// compareErrorRate compares error rates in absolute percentage points.
func compareErrorRate(baseline, current, thresholdPoints float64) MetricComparison {
	mc := MetricComparison{
		Metric:        MetricErrorRate,
		Baseline:      baseline,
		Current:       current,
		Threshold:     thresholdPoints,
		HigherIsWorse: true,
		Absolute:      true,
	}
	mc.Change = (current - baseline) * 100
	mc.IsRegression = mc.Change >= thresholdPoints-changeEpsilon
	return mc
}

func (a *RegressionAnalyzer) alertsFor(c *Comparison) []Alert {
	now := a.now()
	var alerts []Alert

	for _, name := range []string{MetricAvgResponseTime, MetricP95ResponseTime, MetricThroughput, MetricErrorRate, MetricMemory} {
		m, ok := c.Metrics[name]
		if !ok || !m.IsRegression {
			continue
		}
		severity := SeverityMedium
		if math.Abs(m.Change) >= 2*m.Threshold {
			severity = SeverityHigh
		}
		unit := "%"
		if m.Absolute {
			unit = " points"
		}
		alert := Alert{
			Type:             AlertRegression,
			Severity:         severity,
			Metric:           name,
			TestSuite:        c.TestSuite,
			Message:          fmt.Sprintf("%s regressed: %.2f -> %.2f (%+.1f%s, threshold %.1f%s)", name, m.Baseline, m.Current, m.Change, unit, m.Threshold, unit),
			ThresholdPercent: m.Threshold,
			ObservedPercent:  m.Change,
			Timestamp:        now,
		}
		a.logger.Warn("performance regression",
			zap.String("test_suite", c.TestSuite),
			zap.String("metric", name),
			zap.Float64("change", m.Change),
			zap.Float64("threshold", m.Threshold))
		alerts = append(alerts, alert)
	}

	if m, ok := c.Metrics[MetricAvgResponseTime]; ok && m.IsImprovement {
		alerts = append(alerts, Alert{
			Type:             AlertImprovement,
			Severity:         SeverityInfo,
			Metric:           MetricAvgResponseTime,
			TestSuite:        c.TestSuite,
			Message:          fmt.Sprintf("%s improved: %.2f -> %.2f (%+.1f%%)", MetricAvgResponseTime, m.Baseline, m.Current, m.Change),
			ThresholdPercent: a.thresholds.ImprovementPercent,
			ObservedPercent:  m.Change,
			Timestamp:        now,
		})
	}
	return alerts
}
