// Package observability wires Prometheus metrics and OpenTelemetry tracing
// through the provider and tool layers, the way the teacher's own
// observability package instruments its message/LLM/tool paths.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process's Prometheus collectors. A nil *Metrics is
// valid everywhere it's used; every recording method below is a no-op on a
// nil receiver so callers never need a feature flag to skip instrumenting.
type Metrics struct {
	LLMRequestCounter     *prometheus.CounterVec
	LLMRequestDuration    *prometheus.HistogramVec
	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
}

// NewMetrics registers the collector set against the default registry, so
// a single promhttp.Handler() in cmd/sven serves everything.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sven_llm_requests_total",
			Help: "Completions issued per provider and outcome.",
		}, []string{"provider", "model", "status"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sven_llm_request_duration_seconds",
			Help:    "Provider round latency, request start to stream close.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sven_tool_executions_total",
			Help: "Tool invocations by name and outcome.",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sven_tool_execution_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
	}
}

func (m *Metrics) ObserveLLMRequest(provider, model string, isError bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if isError {
		status = "error"
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (m *Metrics) ObserveToolExecution(tool string, isError bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if isError {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}
