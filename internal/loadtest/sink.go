package loadtest

import "sync"

// MeasurementSink receives measurements from virtual users.
type MeasurementSink interface {
	Record(m Measurement)
}

// AlertSink receives alerts from the monitor and the analyzer.
type AlertSink interface {
	Emit(a Alert)
}

// Observer is notified of run activity as it happens. It is used for live
// metrics and must be safe for concurrent use.
type Observer interface {
	ObserveMeasurement(m Measurement)
	ObserveSnapshot(s ResourceSnapshot)
	ObserveAlert(a Alert)
	ActorStarted(actorType string)
	ActorStopped(actorType string)
}

type nopObserver struct{}

func (nopObserver) ObserveMeasurement(Measurement)    {}
func (nopObserver) ObserveSnapshot(ResourceSnapshot) {}
func (nopObserver) ObserveAlert(Alert)               {}
func (nopObserver) ActorStarted(string)              {}
func (nopObserver) ActorStopped(string)              {}

// AlertLog is an append-only AlertSink.
type AlertLog struct {
	mu       sync.Mutex
	alerts   []Alert
	observer Observer
}

// NewAlertLog creates an empty log. observer may be nil.
func NewAlertLog(observer Observer) *AlertLog {
	if observer == nil {
		observer = nopObserver{}
	}
	return &AlertLog{observer: observer}
}

// Emit appends an alert.
func (l *AlertLog) Emit(a Alert) {
	l.mu.Lock()
	l.alerts = append(l.alerts, a)
	l.mu.Unlock()
	l.observer.ObserveAlert(a)
}

// Alerts returns a copy of all alerts emitted so far.
func (l *AlertLog) Alerts() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Len returns the number of alerts emitted so far.
func (l *AlertLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.alerts)
}

// measurementBuffer is the run's measurement stream: a bounded channel with a
// single collector goroutine appending to the buffer.
type measurementBuffer struct {
	ch       chan Measurement
	done     chan struct{}
	observer Observer

	mu    sync.RWMutex
	items []Measurement
}

func newMeasurementBuffer(capacity int, observer Observer) *measurementBuffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &measurementBuffer{
		ch:       make(chan Measurement, capacity),
		done:     make(chan struct{}),
		observer: observer,
		items:    make([]Measurement, 0, 1024),
	}
	go b.collect()
	return b
}

func (b *measurementBuffer) Record(m Measurement) {
	b.ch <- m
}

func (b *measurementBuffer) collect() {
	defer close(b.done)
	for m := range b.ch {
		b.mu.Lock()
		b.items = append(b.items, m)
		b.mu.Unlock()
		b.observer.ObserveMeasurement(m)
	}
}

// Len is safe to call while the run is in progress.
func (b *measurementBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Close stops accepting measurements and returns the collected set. Every
// writer must have finished before Close is called.
func (b *measurementBuffer) Close() []Measurement {
	close(b.ch)
	<-b.done
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.items
}
