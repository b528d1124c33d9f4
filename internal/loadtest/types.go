package loadtest

import (
	"errors"
	"time"
)

var (
	// ErrInvalidScenario is wrapped by every scenario validation failure.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrRunInProgress is returned when Run is called on a busy orchestrator.
	ErrRunInProgress = errors.New("load test already running")
)

// Measurement is the outcome of a single request issued by a virtual user.
type Measurement struct {
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	Timestamp      time.Time `json:"timestamp"`
	ActorID        string    `json:"actor_id"`
	ActorType      string    `json:"actor_type"`
	Error          string    `json:"error,omitempty"`
	// Dropped marks a request that was never sent; actors discard it.
	Dropped bool `json:"-"`
}

// ResourceSnapshot captures process and host usage at one monitor tick.
type ResourceSnapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	ProcessCPUPercent float64   `json:"process_cpu_percent"`
	MemoryBytes       uint64    `json:"memory_bytes"`
	MemoryPercent     float64   `json:"memory_percent"`
	ActiveActorCount  int       `json:"active_actor_count"`
}

// ResponseTimeStats holds the latency distribution in milliseconds.
type ResponseTimeStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// Statistics summarizes a set of measurements. Rates are fractions in [0, 1].
type Statistics struct {
	Count            int               `json:"count"`
	SuccessRate      float64           `json:"success_rate"`
	ResponseTime     ResponseTimeStats `json:"response_time"`
	ThroughputPerSec float64           `json:"throughput_per_sec"`
	ErrorRate        float64           `json:"error_rate"`
}

// ResourceSummary is the part of a resource analysis kept with a baseline.
type ResourceSummary struct {
	PeakMemoryBytes uint64  `json:"peak_memory_bytes"`
	AvgCPUPercent   float64 `json:"avg_cpu_percent"`
}

// Baseline is the last accepted performance reference for a test suite.
// Records are replaced wholesale; the Statistics of a stored Baseline are
// never edited in place.
type Baseline struct {
	TestSuite   string            `json:"test_suite"`
	CreatedAt   time.Time         `json:"created_at"`
	Statistics  Statistics        `json:"statistics"`
	Resources   *ResourceSummary  `json:"resources,omitempty"`
	Environment map[string]string `json:"environment"`
}

// AlertType distinguishes degradations from improvements.
type AlertType string

const (
	AlertRegression  AlertType = "regression"
	AlertImprovement AlertType = "improvement"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a threshold breach or improvement notice.
type Alert struct {
	Type             AlertType `json:"type"`
	Severity         Severity  `json:"severity"`
	Metric           string    `json:"metric"`
	TestSuite        string    `json:"test_suite"`
	Message          string    `json:"message"`
	ThresholdPercent float64   `json:"threshold_percent"`
	ObservedPercent  float64   `json:"observed_percent"`
	Timestamp        time.Time `json:"timestamp"`
}

// ActorSession records the lifetime of one virtual user.
type ActorSession struct {
	ActorID      string     `json:"actor_id"`
	ActorType    string     `json:"actor_type"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	RequestCount int        `json:"request_count"`
	ErrorCount   int        `json:"error_count"`
	Crashed      bool       `json:"crashed,omitempty"`
}

// Finalized reports whether the session's run loop has exited.
func (s ActorSession) Finalized() bool {
	return s.EndTime != nil
}

// ActorTypeSummary aggregates sessions of one actor archetype.
type ActorTypeSummary struct {
	ActorType string `json:"actor_type"`
	Sessions  int    `json:"sessions"`
	Requests  int    `json:"requests"`
	Errors    int    `json:"errors"`
	Crashed   int    `json:"crashed"`
}

// SessionResults is the per-actor outcome of a run.
type SessionResults struct {
	Sessions []ActorSession               `json:"sessions"`
	ByType   map[string]*ActorTypeSummary `json:"by_type"`
}

// ResourceAnalysis is derived from the snapshot sequence of a run.
type ResourceAnalysis struct {
	Snapshots         []ResourceSnapshot `json:"snapshots"`
	SnapshotCount     int                `json:"snapshot_count"`
	PeakCPUPercent    float64            `json:"peak_cpu_percent"`
	AvgCPUPercent     float64            `json:"avg_cpu_percent"`
	PeakMemoryBytes   uint64             `json:"peak_memory_bytes"`
	AvgMemoryBytes    float64            `json:"avg_memory_bytes"`
	PeakMemoryPercent float64            `json:"peak_memory_percent"`
	MemoryGrowth      float64            `json:"memory_growth_percent"`
	MaxActiveActors   int                `json:"max_active_actors"`
}

// Summary returns the subset stored alongside a baseline.
func (r *ResourceAnalysis) Summary() *ResourceSummary {
	if r == nil || r.SnapshotCount == 0 {
		return nil
	}
	return &ResourceSummary{
		PeakMemoryBytes: r.PeakMemoryBytes,
		AvgCPUPercent:   r.AvgCPUPercent,
	}
}

// LoadTestResult is everything a completed run produced.
type LoadTestResult struct {
	RunID            string                `json:"run_id"`
	Scenario         Scenario              `json:"scenario"`
	RampPlan         []RampBatch           `json:"ramp_plan"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          time.Time             `json:"end_time"`
	SessionResults   SessionResults        `json:"session_results"`
	Statistics       Statistics            `json:"statistics"`
	EndpointStats    map[string]Statistics `json:"endpoint_stats"`
	ResourceAnalysis *ResourceAnalysis     `json:"resource_analysis"`
	Comparison       *Comparison           `json:"comparison,omitempty"`
	Alerts           []Alert               `json:"alerts"`
	Measurements     []Measurement         `json:"measurements"`
}

// Regressions returns the regression alerts of the run.
func (r *LoadTestResult) Regressions() []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Type == AlertRegression {
			out = append(out, a)
		}
	}
	return out
}
