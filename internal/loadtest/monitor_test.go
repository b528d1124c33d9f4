package loadtest

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestResourceMonitor_Lifecycle(t *testing.T) {
	m := NewResourceMonitor(MonitorConfig{Interval: time.Hour}, &fakeReader{}, nil, nil, zaptest.NewLogger(t))

	if m.State() != MonitorIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if m.State() != MonitorRunning {
		t.Fatalf("expected running, got %s", m.State())
	}
	m.Stop()
	if m.State() != MonitorStopped {
		t.Fatalf("expected stopped, got %s", m.State())
	}
	if err := m.Start(0); !errors.Is(err, ErrMonitorStopped) {
		t.Errorf("expected ErrMonitorStopped, got %v", err)
	}
	// Stop is safe to repeat.
	m.Stop()
}

func TestResourceMonitor_SamplesImmediately(t *testing.T) {
	reader := &fakeReader{usage: ResourceUsage{CPUPercent: 12, MemoryBytes: 1024}}
	m := NewResourceMonitor(MonitorConfig{Interval: time.Hour}, reader, func() int { return 3 }, nil, nil)

	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for len(m.Snapshots()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected exactly 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].CPUPercent != 12 || snaps[0].MemoryBytes != 1024 || snaps[0].ActiveActorCount != 3 {
		t.Errorf("unexpected snapshot: %+v", snaps[0])
	}
}

func TestResourceMonitor_DoubleStartSingleCadence(t *testing.T) {
	interval := 50 * time.Millisecond
	reader := &fakeReader{}
	m := NewResourceMonitor(MonitorConfig{Interval: interval}, reader, nil, nil, nil)

	if err := m.Start(interval); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(interval); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	time.Sleep(275 * time.Millisecond)
	m.Stop()

	// One immediate sample plus about five ticks. Two timers would double it.
	n := len(m.Snapshots())
	if n < 3 || n > 8 {
		t.Errorf("expected ~6 snapshots from a single timer, got %d", n)
	}
	if int64(n) != reader.calls.Load() {
		t.Errorf("expected one read per snapshot, got %d reads for %d snapshots", reader.calls.Load(), n)
	}
}

func TestResourceMonitor_NoSnapshotsAfterStop(t *testing.T) {
	m := NewResourceMonitor(MonitorConfig{Interval: 10 * time.Millisecond}, &fakeReader{}, nil, nil, nil)
	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	m.Stop()

	n := len(m.Snapshots())
	time.Sleep(50 * time.Millisecond)
	if got := len(m.Snapshots()); got != n {
		t.Errorf("snapshots appended after stop: %d -> %d", n, got)
	}
}

func TestResourceMonitor_SlowSampleSchedulesFromCompletion(t *testing.T) {
	reader := &fakeReader{delay: 60 * time.Millisecond}
	m := NewResourceMonitor(MonitorConfig{Interval: 20 * time.Millisecond}, reader, nil, nil, nil)
	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	m.Stop()

	snaps := m.Snapshots()
	if len(snaps) < 2 {
		t.Fatalf("expected at least 2 snapshots, got %d", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		gap := snaps[i].Timestamp.Sub(snaps[i-1].Timestamp)
		if gap < 60*time.Millisecond {
			t.Errorf("snapshot %d taken %s after previous, expected sample time plus interval", i, gap)
		}
	}
}

func TestResourceMonitor_AlertPerBreachingTick(t *testing.T) {
	reader := &fakeReader{usage: ResourceUsage{CPUPercent: 95, MemoryPercent: 50}}
	alerts := NewAlertLog(nil)
	cfg := MonitorConfig{
		Interval:               15 * time.Millisecond,
		CPUThresholdPercent:    80,
		MemoryThresholdPercent: 85,
		TestSuite:              "suite",
	}
	m := NewResourceMonitor(cfg, reader, nil, alerts, nil)
	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	m.Stop()

	snaps := m.Snapshots()
	got := alerts.Alerts()
	if len(got) != len(snaps) {
		t.Fatalf("expected one alert per tick (%d), got %d", len(snaps), len(got))
	}
	for _, a := range got {
		if a.Metric != "cpu_percent" {
			t.Errorf("unexpected metric %q", a.Metric)
		}
		if a.Type != AlertRegression || a.Severity != SeverityHigh {
			t.Errorf("expected high regression alert, got %s/%s", a.Type, a.Severity)
		}
		if a.TestSuite != "suite" || a.ThresholdPercent != 80 || a.ObservedPercent != 95 {
			t.Errorf("unexpected alert fields: %+v", a)
		}
	}
}

func TestResourceMonitor_SeverityBands(t *testing.T) {
	reader := &fakeReader{usage: ResourceUsage{CPUPercent: 85, MemoryPercent: 96}}
	alerts := NewAlertLog(nil)
	cfg := MonitorConfig{Interval: time.Hour, CPUThresholdPercent: 80, MemoryThresholdPercent: 85}
	m := NewResourceMonitor(cfg, reader, nil, alerts, nil)
	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for alerts.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	bySeverity := map[string]Severity{}
	for _, a := range alerts.Alerts() {
		bySeverity[a.Metric] = a.Severity
	}
	if bySeverity["cpu_percent"] != SeverityMedium {
		t.Errorf("expected medium cpu alert, got %q", bySeverity["cpu_percent"])
	}
	if bySeverity["memory_percent"] != SeverityHigh {
		t.Errorf("expected high memory alert, got %q", bySeverity["memory_percent"])
	}
}

func TestResourceMonitor_ReaderErrorKeepsSampling(t *testing.T) {
	reader := &fakeReader{
		usage: ResourceUsage{MemoryBytes: 2048},
		err:   errors.New("proc unavailable"),
	}
	m := NewResourceMonitor(MonitorConfig{Interval: 10 * time.Millisecond}, reader, nil, nil, nil)
	if err := m.Start(0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	snaps := m.Snapshots()
	if len(snaps) < 2 {
		t.Fatalf("expected sampling to continue, got %d snapshots", len(snaps))
	}
	if snaps[0].MemoryBytes != 2048 {
		t.Errorf("expected partial reading kept, got %+v", snaps[0])
	}
}
