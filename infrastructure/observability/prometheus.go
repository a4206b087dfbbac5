package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/agent-router/domain/telemetry"
)

// PrometheusMetrics records pipeline metrics as Prometheus collectors.
type PrometheusMetrics struct {
	Turns           *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	Subtasks        *prometheus.CounterVec
	SubtaskDuration *prometheus.HistogramVec
	ToolCalls       *prometheus.CounterVec
	Retries         *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_router_turns_total",
				Help: "Total number of finished turns",
			},
			[]string{"state", "intent"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_router_turn_duration_seconds",
				Help:    "Turn latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"state"},
		),
		Subtasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_router_subtasks_total",
				Help: "Total number of executed subtasks",
			},
			[]string{"specialist", "failed"},
		),
		SubtaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "agent_router_subtask_duration_seconds",
				Help: "Subtask latency in seconds",
			},
			[]string{"specialist"},
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_router_tool_calls_total",
				Help: "Total number of capability port calls",
			},
			[]string{"kind", "failed"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_router_retries_total",
				Help: "Total number of upstream retries",
			},
			[]string{"component"},
		),
	}, nil
}

// TurnFinished implements telemetry.Metrics.
func (m *PrometheusMetrics) TurnFinished(_ context.Context, state, intentType string, d time.Duration) {
	m.Turns.WithLabelValues(state, intentType).Inc()
	m.TurnDuration.WithLabelValues(state).Observe(d.Seconds())
}

// SubtaskFinished implements telemetry.Metrics.
func (m *PrometheusMetrics) SubtaskFinished(_ context.Context, specialist string, failed bool, d time.Duration) {
	m.Subtasks.WithLabelValues(specialist, strconv.FormatBool(failed)).Inc()
	m.SubtaskDuration.WithLabelValues(specialist).Observe(d.Seconds())
}

// ToolCalled implements telemetry.Metrics.
func (m *PrometheusMetrics) ToolCalled(_ context.Context, kind string, failed bool) {
	m.ToolCalls.WithLabelValues(kind, strconv.FormatBool(failed)).Inc()
}

// Retried implements telemetry.Metrics.
func (m *PrometheusMetrics) Retried(_ context.Context, component string) {
	m.Retries.WithLabelValues(component).Inc()
}

var _ telemetry.Metrics = (*PrometheusMetrics)(nil)
