package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, which keeps the membrane usable without a registry.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Membrane metrics
	WrappersCreated  *prometheus.CounterVec
	BoundaryFailures prometheus.Counter

	// Sandbox metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	SandboxesActive   prometheus.Gauge

	startTime time.Time
	latency   *Window

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests    int64            `json:"total_requests"`
	TotalErrors      int64            `json:"total_errors"`
	Wrappers         map[string]int64 `json:"wrappers"`
	BoundaryFailures int64            `json:"boundary_failures"`
	Executions       map[string]int64 `json:"executions"`
	ActiveSandboxes  int64            `json:"active_sandboxes"`
	Latency          Latency          `json:"latency"`
	UptimeSeconds    float64          `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered on reg. Passing nil
// registers on the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		latency:   NewWindow(DefaultWindowSize),
		snapshot: Snapshot{
			Wrappers:   make(map[string]int64),
			Executions: make(map[string]int64),
		},

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membrane_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membrane_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Membrane metrics
		WrappersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membrane_wrappers_created_total",
				Help: "Total number of wrappers minted, by strategy",
			},
			[]string{"kind"},
		),
		BoundaryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "membrane_boundary_failures_total",
				Help: "Total number of foreign failures normalized at the boundary",
			},
		),

		// Sandbox metrics
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membrane_executions_total",
				Help: "Total number of guest script executions",
			},
			[]string{"status"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "membrane_execution_duration_seconds",
				Help:    "Guest script execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "membrane_sandboxes_active",
				Help: "Number of sandboxes currently checked out",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "membrane_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordWrapper records a wrapper of the given strategy
func (m *Metrics) RecordWrapper(kind string) {
	if m == nil {
		return
	}
	m.WrappersCreated.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Wrappers[kind]++
	m.mu.Unlock()
}

// RecordBoundaryFailure records one normalized foreign failure
func (m *Metrics) RecordBoundaryFailure() {
	if m == nil {
		return
	}
	m.BoundaryFailures.Inc()
	m.mu.Lock()
	m.snapshot.BoundaryFailures++
	m.mu.Unlock()
}

// RecordExecution records a finished guest execution
func (m *Metrics) RecordExecution(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(duration.Seconds())
	m.latency.Add(duration)
	m.mu.Lock()
	m.snapshot.Executions[status]++
	m.mu.Unlock()
}

// IncSandboxes increments checked out sandboxes
func (m *Metrics) IncSandboxes() {
	if m == nil {
		return
	}
	m.SandboxesActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes++
	m.mu.Unlock()
}

// DecSandboxes decrements checked out sandboxes
func (m *Metrics) DecSandboxes() {
	if m == nil {
		return
	}
	m.SandboxesActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes--
	m.mu.Unlock()
}
