package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/agent-router/domain/telemetry"
)

// OTelMetrics records pipeline metrics through the global OpenTelemetry
// meter provider.
type OTelMetrics struct {
	turns           metric.Int64Counter
	turnDuration    metric.Float64Histogram
	subtasks        metric.Int64Counter
	subtaskDuration metric.Float64Histogram
	toolCalls       metric.Int64Counter
	retries         metric.Int64Counter
}

// NewOTelMetrics creates the instruments. Instruments that fail to register
// fall back to no-ops.
func NewOTelMetrics(name string) *OTelMetrics {
	meter := otel.Meter(name)
	m := &OTelMetrics{}
	m.turns, _ = meter.Int64Counter("router.turns",
		metric.WithDescription("Finished turns by terminal state"), metric.WithUnit("{turn}"))
	m.turnDuration, _ = meter.Float64Histogram("router.turn.duration",
		metric.WithDescription("Turn latency"), metric.WithUnit("s"))
	m.subtasks, _ = meter.Int64Counter("router.subtasks",
		metric.WithDescription("Executed subtasks by specialist"), metric.WithUnit("{subtask}"))
	m.subtaskDuration, _ = meter.Float64Histogram("router.subtask.duration",
		metric.WithDescription("Subtask latency"), metric.WithUnit("s"))
	m.toolCalls, _ = meter.Int64Counter("router.tool.calls",
		metric.WithDescription("Capability port calls by kind"), metric.WithUnit("{call}"))
	m.retries, _ = meter.Int64Counter("router.retries",
		metric.WithDescription("Upstream retries by component"), metric.WithUnit("{retry}"))
	return m
}

// TurnFinished implements telemetry.Metrics.
func (m *OTelMetrics) TurnFinished(ctx context.Context, state, intentType string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", state), attribute.String("intent", intentType))
	if m.turns != nil {
		m.turns.Add(ctx, 1, attrs)
	}
	if m.turnDuration != nil {
		m.turnDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// SubtaskFinished implements telemetry.Metrics.
func (m *OTelMetrics) SubtaskFinished(ctx context.Context, specialist string, failed bool, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("specialist", specialist), attribute.Bool("failed", failed))
	if m.subtasks != nil {
		m.subtasks.Add(ctx, 1, attrs)
	}
	if m.subtaskDuration != nil {
		m.subtaskDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// ToolCalled implements telemetry.Metrics.
func (m *OTelMetrics) ToolCalled(ctx context.Context, kind string, failed bool) {
	if m.toolCalls != nil {
		m.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), attribute.Bool("failed", failed)))
	}
}

// Retried implements telemetry.Metrics.
func (m *OTelMetrics) Retried(ctx context.Context, component string) {
	if m.retries != nil {
		m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
}

// multiMetrics fans out to several sinks.
type multiMetrics []telemetry.Metrics

// MultiMetrics returns a sink that records to every given sink.
func MultiMetrics(sinks ...telemetry.Metrics) telemetry.Metrics {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multiMetrics(sinks)
}

func (m multiMetrics) TurnFinished(ctx context.Context, state, intentType string, d time.Duration) {
	for _, s := range m {
		s.TurnFinished(ctx, state, intentType, d)
	}
}

func (m multiMetrics) SubtaskFinished(ctx context.Context, specialist string, failed bool, d time.Duration) {
	for _, s := range m {
		s.SubtaskFinished(ctx, specialist, failed, d)
	}
}

func (m multiMetrics) ToolCalled(ctx context.Context, kind string, failed bool) {
	for _, s := range m {
		s.ToolCalled(ctx, kind, failed)
	}
}

func (m multiMetrics) Retried(ctx context.Context, component string) {
	for _, s := range m {
		s.Retried(ctx, component)
	}
}

var (
	_ telemetry.Metrics = (*OTelMetrics)(nil)
	_ telemetry.Metrics = multiMetrics(nil)
)
