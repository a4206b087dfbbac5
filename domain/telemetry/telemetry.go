// Package telemetry defines the tracing and metrics ports of the turn pipeline.
package telemetry

import (
	"context"
	"time"
)

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	SetAttributes(attrs ...Attribute)
	RecordError(err error)
	End()
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Float64 creates a float attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a bool attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Metrics records pipeline outcomes.
type Metrics interface {
	// TurnFinished records a finished turn by terminal state and intent.
	TurnFinished(ctx context.Context, state, intentType string, d time.Duration)
	// SubtaskFinished records one subtask by specialist.
	SubtaskFinished(ctx context.Context, specialist string, failed bool, d time.Duration)
	// ToolCalled records one capability port call.
	ToolCalled(ctx context.Context, kind string, failed bool)
	// Retried records one retry of an upstream call.
	Retried(ctx context.Context, component string)
}
