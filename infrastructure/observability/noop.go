package observability

import (
	"context"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/telemetry"
)

// NoopTracer starts spans that record nothing.
type NoopTracer struct{}

// Start implements telemetry.Tracer.
func (NoopTracer) Start(ctx context.Context, _ string, _ ...telemetry.Attribute) (context.Context, telemetry.Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...telemetry.Attribute) {}
func (noopSpan) RecordError(error)                    {}
func (noopSpan) End()                                 {}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) TurnFinished(context.Context, string, string, time.Duration)  {}
func (NoopMetrics) SubtaskFinished(context.Context, string, bool, time.Duration) {}
func (NoopMetrics) ToolCalled(context.Context, string, bool)                     {}
func (NoopMetrics) Retried(context.Context, string)                              {}

var (
	_ telemetry.Tracer  = NoopTracer{}
	_ telemetry.Metrics = NoopMetrics{}
)
