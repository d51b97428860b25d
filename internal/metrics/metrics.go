package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Execution metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Lifecycle metrics
	LifecycleOpsTotal *prometheus.CounterVec

	// SMS metrics
	SMSSendsTotal *prometheus.CounterVec

	// Call-start metrics
	CallStartRunsTotal     prometheus.Counter
	ContextInjectionsTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_type", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_type"},
		),

		LifecycleOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_lifecycle_operations_total",
				Help: "Total number of tool lifecycle operations",
			},
			[]string{"operation", "status"},
		),

		SMSSendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sms_sends_total",
				Help: "Total number of SMS sends, per recipient",
			},
			[]string{"status"},
		),

		CallStartRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "call_start_runs_total",
				Help: "Total number of on-call-start orchestrator runs",
			},
		),
		ContextInjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "context_injections_total",
				Help: "Total number of live-call context injections",
			},
			[]string{"status"},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.LifecycleOpsTotal)
	m.registry.MustRegister(m.SMSSendsTotal)
	m.registry.MustRegister(m.CallStartRunsTotal)
	m.registry.MustRegister(m.ContextInjectionsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (used in tests)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
