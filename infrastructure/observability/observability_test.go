package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/telemetry"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.ServiceName != "agent-router" {
		t.Errorf("ServiceName = %s", cfg.ServiceName)
	}
	if cfg.Tracing.Exporter != ExporterNone {
		t.Errorf("Exporter = %s, want none", cfg.Tracing.Exporter)
	}
	if cfg.Prometheus {
		t.Error("Prometheus should be off by default")
	}
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := ConfigFrom(domainconfig.ObservabilityConfig{
		Tracing:    "otlp",
		Endpoint:   "collector:4317",
		Prometheus: true,
	}, "1.2.3")
	if cfg.Tracing.Exporter != ExporterOTLP || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.ServiceVersion != "1.2.3" || !cfg.Prometheus {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	ctx, span := NoopTracer{}.Start(context.Background(), "turn", telemetry.String("k", "v"))
	if ctx == nil || span == nil {
		t.Fatal("Start() returned nil")
	}
	span.SetAttributes(telemetry.Bool("degraded", true))
	span.RecordError(errors.New("boom"))
	span.End()

	var m NoopMetrics
	m.TurnFinished(ctx, "responded", "simple_chat", time.Second)
	m.SubtaskFinished(ctx, "chat", false, time.Second)
	m.ToolCalled(ctx, "memory", false)
	m.Retried(ctx, "llm")
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("no tracing without prometheus", func(t *testing.T) {
		t.Parallel()

		p, err := New()
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := p.Tracer().(NoopTracer); !ok {
			t.Errorf("Tracer() = %T, want NoopTracer", p.Tracer())
		}
		if p.Handler() != nil {
			t.Error("Handler() should be nil without prometheus")
		}
		if err := p.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})

	t.Run("unknown exporter", func(t *testing.T) {
		t.Parallel()

		_, err := New(WithTracing("zipkin", ""))
		if !errors.Is(err, telemetry.ErrUnknownExporter) {
			t.Errorf("error = %v, want ErrUnknownExporter", err)
		}
	})

	t.Run("prometheus handler exposes pipeline metrics", func(t *testing.T) {
		t.Parallel()

		p, err := New(WithPrometheus())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		p.Metrics().TurnFinished(context.Background(), "responded", "simple_chat", 20*time.Millisecond)
		p.Metrics().ToolCalled(context.Background(), "memory", false)

		srv := httptest.NewServer(p.Handler())
		defer srv.Close()
		resp, err := srv.Client().Get(srv.URL)
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		for _, want := range []string{
			`agent_router_turns_total{intent="simple_chat",state="responded"} 1`,
			`agent_router_tool_calls_total{failed="false",kind="memory"} 1`,
			"go_goroutines",
		} {
			if !strings.Contains(string(body), want) {
				t.Errorf("metrics output missing %q", want)
			}
		}
	})
}

func TestPrometheusMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetrics() error = %v", err)
	}
	ctx := context.Background()
	sink := MultiMetrics(m, NoopMetrics{})

	sink.SubtaskFinished(ctx, "travel", false, time.Second)
	sink.SubtaskFinished(ctx, "travel", true, time.Second)
	sink.Retried(ctx, "llm")
	sink.Retried(ctx, "llm")

	if got := testutil.ToFloat64(m.Subtasks.WithLabelValues("travel", "true")); got != 1 {
		t.Errorf("failed travel subtasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Retries.WithLabelValues("llm")); got != 2 {
		t.Errorf("llm retries = %v, want 2", got)
	}
}

func TestOTelTracer(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewOTelTracer(tp.Tracer("test"))
	ctx, turn := tracer.Start(context.Background(), "turn", telemetry.String("conversation.id", "c1"))
	_, sub := tracer.Start(ctx, "subtask", telemetry.Int("depth", 1))
	sub.RecordError(errors.New("timeout"))
	sub.End()
	turn.SetAttributes(telemetry.Float64("confidence", 0.8), telemetry.Bool("degraded", false))
	turn.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "subtask" || spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("subtask span should be a child of the turn span")
	}
	if spans[0].Status().Description != "timeout" {
		t.Errorf("status = %+v", spans[0].Status())
	}
	if len(spans[1].Attributes()) != 3 {
		t.Errorf("turn attributes = %v", spans[1].Attributes())
	}
}
