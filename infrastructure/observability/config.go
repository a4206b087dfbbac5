// Package observability provides OpenTelemetry tracing and metrics plus a
// Prometheus collector for the turn pipeline.
package observability

import (
	"time"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
)

// ExporterType specifies the span exporter.
type ExporterType string

const (
	// ExporterOTLP exports to an OTLP gRPC endpoint (Jaeger, Tempo, Grafana).
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout exports to stdout.
	ExporterStdout ExporterType = "stdout"

	// ExporterNone disables tracing.
	ExporterNone ExporterType = "none"
)

// Config configures the observability infrastructure.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Tracing TracingConfig

	// Prometheus registers pipeline metrics with a Prometheus registry.
	Prometheus bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Exporter ExporterType

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// SampleRate is the sampling rate (0.0-1.0).
	SampleRate float64

	BatchTimeout       time.Duration
	MaxExportBatchSize int
}

// DefaultConfig returns a configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "agent-router",
		ServiceVersion: "dev",
		Environment:    "development",
		Tracing: TracingConfig{
			Exporter:           ExporterNone,
			SampleRate:         1.0,
			BatchTimeout:       5 * time.Second,
			MaxExportBatchSize: 512,
		},
	}
}

// ConfigFrom maps router observability settings to a configuration.
func ConfigFrom(c domainconfig.ObservabilityConfig, version string) Config {
	cfg := DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	if c.Tracing != "" {
		cfg.Tracing.Exporter = ExporterType(c.Tracing)
	}
	cfg.Tracing.Endpoint = c.Endpoint
	cfg.Tracing.Insecure = true
	cfg.Prometheus = c.Prometheus
	return cfg
}

// Option configures the observability infrastructure.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithTracing selects the span exporter.
func WithTracing(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Exporter = exporter
		c.Tracing.Endpoint = endpoint
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.Tracing.SampleRate = rate
	}
}

// WithPrometheus enables the Prometheus collector.
func WithPrometheus() Option {
	return func(c *Config) {
		c.Prometheus = true
	}
}
