// internal/metrics/collector.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "perfharness"

// CollectorConfig configures a collector
type CollectorConfig struct {
	Namespace   string
	ConstLabels prometheus.Labels
	// Buckets for the response time histogram, in seconds.
	Buckets []float64
}

// Validate checks configuration
func (c *CollectorConfig) Validate() error {
	for i := 1; i < len(c.Buckets); i++ {
		if c.Buckets[i] <= c.Buckets[i-1] {
			return errors.New("metrics: buckets must be strictly increasing")
		}
	}
	return nil
}

// Collector exports live run activity as Prometheus metrics. It implements
// loadtest.Observer and owns its registry, so several collectors can coexist
// in one process.
type Collector struct {
	requests      *prometheus.CounterVec
	responseTime  *prometheus.HistogramVec
	activeActors  *prometheus.GaugeVec
	actorsStarted *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	cpuPercent    prometheus.Gauge
	memoryBytes   prometheus.Gauge
	memoryPercent prometheus.Gauge
	registry      *prometheus.Registry
}

var _ loadtest.Observer = (*Collector)(nil)

// NewCollector creates and registers all metrics
func NewCollector(config *CollectorConfig) (*Collector, error) {
	if config == nil {
		config = &CollectorConfig{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Name:        "requests_total",
				Help:        "Requests issued by virtual users",
				ConstLabels: config.ConstLabels,
			},
			[]string{"endpoint", "actor_type", "status", "outcome"},
		),
		responseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Name:        "response_time_seconds",
				Help:        "Response time observed by virtual users",
				ConstLabels: config.ConstLabels,
				Buckets:     buckets,
			},
			[]string{"endpoint"},
		),
		activeActors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Name:        "active_actors",
				Help:        "Virtual users currently running",
				ConstLabels: config.ConstLabels,
			},
			[]string{"actor_type"},
		),
		actorsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Name:        "actors_started_total",
				Help:        "Virtual users started",
				ConstLabels: config.ConstLabels,
			},
			[]string{"actor_type"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Name:        "alerts_total",
				Help:        "Alerts raised during runs",
				ConstLabels: config.ConstLabels,
			},
			[]string{"type", "severity", "metric"},
		),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "host_cpu_percent",
			Help:        "Host CPU usage at the last monitor tick",
			ConstLabels: config.ConstLabels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "process_memory_bytes",
			Help:        "Harness memory usage at the last monitor tick",
			ConstLabels: config.ConstLabels,
		}),
		memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "host_memory_percent",
			Help:        "Host memory usage at the last monitor tick",
			ConstLabels: config.ConstLabels,
		}),
		registry: registry,
	}

	registry.MustRegister(
		c.requests,
		c.responseTime,
		c.activeActors,
		c.actorsStarted,
		c.alerts,
		c.cpuPercent,
		c.memoryBytes,
		c.memoryPercent,
	)
	return c, nil
}

// ObserveMeasurement counts a request and records its latency.
func (c *Collector) ObserveMeasurement(m loadtest.Measurement) {
	outcome := "success"
	if !m.Success {
		outcome = "failure"
	}
	c.requests.WithLabelValues(m.Endpoint, m.ActorType, strconv.Itoa(m.StatusCode), outcome).Inc()
	c.responseTime.WithLabelValues(m.Endpoint).Observe(m.ResponseTimeMs / 1000)
}

func (c *Collector) ObserveSnapshot(s loadtest.ResourceSnapshot) {
	c.cpuPercent.Set(s.CPUPercent)
	c.memoryBytes.Set(float64(s.MemoryBytes))
	c.memoryPercent.Set(s.MemoryPercent)
}

func (c *Collector) ObserveAlert(a loadtest.Alert) {
	c.alerts.WithLabelValues(string(a.Type), string(a.Severity), a.Metric).Inc()
}

func (c *Collector) ActorStarted(actorType string) {
	c.actorsStarted.WithLabelValues(actorType).Inc()
	c.activeActors.WithLabelValues(actorType).Inc()
}

func (c *Collector) ActorStopped(actorType string) {
	c.activeActors.WithLabelValues(actorType).Dec()
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
