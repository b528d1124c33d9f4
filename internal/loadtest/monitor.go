package loadtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSampleInterval is the resource monitor cadence used when none is set.
const DefaultSampleInterval = 10 * time.Second

// ErrMonitorStopped is returned when starting a monitor that was stopped.
var ErrMonitorStopped = errors.New("resource monitor already stopped")

// ResourceUsage is one raw reading from a ResourceReader.
type ResourceUsage struct {
	CPUPercent        float64
	ProcessCPUPercent float64
	MemoryBytes       uint64
	MemoryPercent     float64
}

// ResourceReader reads current process and host usage. Readers may return a
// partial usage together with an error.
type ResourceReader interface {
	Read() (ResourceUsage, error)
}

// MonitorState is the lifecycle of a ResourceMonitor.
type MonitorState int

const (
	MonitorIdle MonitorState = iota
	MonitorRunning
	MonitorStopped
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "idle"
	case MonitorRunning:
		return "running"
	case MonitorStopped:
		return "stopped"
	default:
		return fmt.Sprintf("MonitorState(%d)", int(s))
	}
}

// MonitorConfig holds the sampling interval and alert limits. A zero
// threshold disables that rule.
type MonitorConfig struct {
	Interval               time.Duration
	CPUThresholdPercent    float64
	MemoryThresholdPercent float64
	TestSuite              string
}

// DefaultMonitorConfig returns the default cadence and limits.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:               DefaultSampleInterval,
		CPUThresholdPercent:    80,
		MemoryThresholdPercent: 85,
	}
}

// ResourceMonitor periodically samples resource usage into a time-ordered
// snapshot sequence and raises an alert on every tick that breaches a limit.
type ResourceMonitor struct {
	config   MonitorConfig
	reader   ResourceReader
	active   func() int
	alerts   AlertSink
	observer Observer
	logger   *zap.Logger

	mu        sync.Mutex
	state     MonitorState
	stop      chan struct{}
	done      chan struct{}
	snapshots []ResourceSnapshot
}

// NewResourceMonitor creates an idle monitor. active reports the current
// number of running actors and may be nil.
func NewResourceMonitor(config MonitorConfig, reader ResourceReader, active func() int, alerts AlertSink, logger *zap.Logger) *ResourceMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultSampleInterval
	}
	if reader == nil {
		reader = NewSystemResourceReader()
	}
	if active == nil {
		active = func() int { return 0 }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceMonitor{
		config:    config,
		reader:    reader,
		active:    active,
		alerts:    alerts,
		observer:  nopObserver{},
		logger:    logger,
		snapshots: make([]ResourceSnapshot, 0, 64),
	}
}

// SetObserver attaches an observer notified of every snapshot.
func (m *ResourceMonitor) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	m.observer = o
}

// Start begins sampling. It is a no-op while already running; interval <= 0
// keeps the configured interval. A stopped monitor cannot be restarted.
func (m *ResourceMonitor) Start(interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case MonitorRunning:
		return nil
	case MonitorStopped:
		return ErrMonitorStopped
	}

	if interval > 0 {
		m.config.Interval = interval
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.state = MonitorRunning

	go m.loop(m.config.Interval, m.stop, m.done)

	m.logger.Debug("resource monitor started", zap.Duration("interval", m.config.Interval))
	return nil
}

// Stop cancels sampling and waits for the sampling goroutine to exit. No
// snapshot is appended after Stop returns.
func (m *ResourceMonitor) Stop() {
	m.mu.Lock()
	if m.state != MonitorRunning {
		m.state = MonitorStopped
		m.mu.Unlock()
		return
	}
	m.state = MonitorStopped
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Debug("resource monitor stopped")
}

// State returns the current lifecycle state.
func (m *ResourceMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshots returns a copy of the snapshots taken so far.
func (m *ResourceMonitor) Snapshots() []ResourceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResourceSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// loop samples once immediately, then schedules each tick one interval after
// the previous sample completed.
func (m *ResourceMonitor) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.tick()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			m.tick()
			timer.Reset(interval)
		}
	}
}

func (m *ResourceMonitor) tick() {
	usage, err := m.reader.Read()
	if err != nil {
		m.logger.Warn("resource sample incomplete", zap.Error(err))
	}

	snap := ResourceSnapshot{
		Timestamp:         time.Now(),
		CPUPercent:        usage.CPUPercent,
		ProcessCPUPercent: usage.ProcessCPUPercent,
		MemoryBytes:       usage.MemoryBytes,
		MemoryPercent:     usage.MemoryPercent,
		ActiveActorCount:  m.active(),
	}

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snap)
	observer := m.observer
	m.mu.Unlock()

	observer.ObserveSnapshot(snap)
	m.checkThresholds(snap)
}

func (m *ResourceMonitor) checkThresholds(snap ResourceSnapshot) {
	if m.alerts == nil {
		return
	}

	if limit := m.config.CPUThresholdPercent; limit > 0 && snap.CPUPercent > limit {
		m.raise(snap, "cpu_percent", snap.CPUPercent, limit, 90)
	}
	if limit := m.config.MemoryThresholdPercent; limit > 0 && snap.MemoryPercent > limit {
		m.raise(snap, "memory_percent", snap.MemoryPercent, limit, 95)
	}
}

// raise emits one alert; observed values above highAt are high severity.
func (m *ResourceMonitor) raise(snap ResourceSnapshot, metric string, observed, limit, highAt float64) {
	severity := SeverityMedium
	if observed > highAt {
		severity = SeverityHigh
	}
	alert := Alert{
		Type:             AlertRegression,
		Severity:         severity,
		Metric:           metric,
		TestSuite:        m.config.TestSuite,
		Message:          fmt.Sprintf("%s is %.1f%%, exceeding threshold of %.1f%%", metric, observed, limit),
		ThresholdPercent: limit,
		ObservedPercent:  observed,
		Timestamp:        snap.Timestamp,
	}
	m.logger.Warn("resource threshold exceeded",
		zap.String("metric", metric),
		zap.Float64("observed", observed),
		zap.Float64("threshold", limit))
	m.alerts.Emit(alert)
}
