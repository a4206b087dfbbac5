package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	agentrouter "github.com/felixgeelhaar/agent-router"
	"github.com/felixgeelhaar/agent-router/application"
	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/tool"
	infrallm "github.com/felixgeelhaar/agent-router/infrastructure/llm"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	"github.com/felixgeelhaar/agent-router/infrastructure/mcp"
	"github.com/felixgeelhaar/agent-router/infrastructure/observability"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-router/infrastructure/search"
	infraspec "github.com/felixgeelhaar/agent-router/infrastructure/specialist"
	storemem "github.com/felixgeelhaar/agent-router/infrastructure/storage/memory"
)

// Runtime is a fully wired router: the engine plus everything it was
// built from that callers may need to reach or release.
type Runtime struct {
	Config    domainconfig.RouterConfig
	Engine    *application.Engine
	Knowledge knowledge.Store
	// Tools holds the command tools. It is nil when tools are disabled.
	Tools     tool.Registry
	Telemetry *observability.Provider

	stores *stores
	mcp    *mcp.Client
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	llm    llm.Completer
	engine []application.Option
}

// WithCompleter replaces the completer selected by the llm section.
func WithCompleter(c llm.Completer) BuildOption {
	return func(o *buildOptions) { o.llm = c }
}

// WithEngineOptions appends engine options after the configured ones.
func WithEngineOptions(opts ...application.Option) BuildOption {
	return func(o *buildOptions) { o.engine = append(o.engine, opts...) }
}

// Build wires an engine from configuration. Missing fields take their
// defaults. On error every resource opened so far is released.
func Build(ctx context.Context, cfg domainconfig.RouterConfig, opts ...BuildOption) (rt *Runtime, err error) {
	cfg.ApplyDefaults()
	if errs := domainconfig.NewValidator().Validate(&cfg); errs.HasErrors() {
		return nil, errors.Join(domainconfig.ErrValidationFailed, errs)
	}

	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{Config: cfg, stores: newStores(cfg.Storage)}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	version := cfg.Version
	if version == "" {
		version = agentrouter.Version
	}
	rt.Telemetry, err = observability.NewFromConfig(observability.ConfigFrom(cfg.Observability, version))
	if err != nil {
		return rt, fmt.Errorf("observability: %w", err)
	}

	conversations, err := rt.stores.conversations(ctx)
	if err != nil {
		return rt, fmt.Errorf("conversation store: %w", err)
	}
	memoryStore, err := rt.stores.memory()
	if err != nil {
		return rt, fmt.Errorf("memory store: %w", err)
	}
	rt.Knowledge, err = rt.stores.knowledge()
	if err != nil {
		return rt, fmt.Errorf("knowledge store: %w", err)
	}
	events, err := rt.stores.events(ctx)
	if err != nil {
		return rt, fmt.Errorf("event store: %w", err)
	}

	model := o.llm
	if model == nil {
		model = newCompleter(cfg)
	}

	specialists := storemem.NewSpecialistRegistry()
	for _, s := range infraspec.Builtins(model) {
		if err := specialists.Register(s); err != nil {
			return rt, err
		}
	}

	ports := application.Ports{Memory: memoryStore}
	if cfg.Search.Endpoint != "" {
		client, err := search.NewClient(search.ConfigFrom(cfg.Search))
		if err != nil {
			return rt, fmt.Errorf("search client: %w", err)
		}
		ports.Search = client
	}
	if cfg.Tools.Enabled {
		registry, err := rt.buildTools(ctx, cfg.Tools)
		if err != nil {
			return rt, err
		}
		rt.Tools = registry
		ports.Tools = registry
	}

	engineOpts := []application.Option{
		application.WithOrchestrator(cfg.Orchestrator),
		application.WithPortResilience(resilience.ConfigFrom(cfg.Resilience)),
		application.WithConversations(conversations),
		application.WithSpecialists(specialists),
		application.WithFallback(infraspec.NewFallback(model)),
		application.WithKnowledge(rt.Knowledge),
		application.WithPorts(ports),
		application.WithSearchLimit(cfg.Search.MaxResults),
		application.WithTelemetry(rt.Telemetry.Tracer(), rt.Telemetry.Metrics()),
	}
	if events != nil {
		engineOpts = append(engineOpts, application.WithEvents(events))
	}
	if model != nil {
		engineOpts = append(engineOpts, application.WithLLM(model))
	}
	engineOpts = append(engineOpts, o.engine...)

	rt.Engine, err = application.NewEngineWithOptions(engineOpts...)
	if err != nil {
		return rt, err
	}

	logging.Info().
		Add(logging.Component("router")).
		Add(logging.Str("name", cfg.Name)).
		Add(logging.Str("version", version)).
		Add(logging.Str("conversations", cfg.Storage.Conversations)).
		Add(logging.Str("memory", cfg.Storage.Memory)).
		Add(logging.Str("events", cfg.Storage.Events)).
		Add(logging.Str("llm", cfg.LLM.Provider)).
		Msg("router built")
	return rt, nil
}

// newCompleter returns nil when no provider is configured.
func newCompleter(cfg domainconfig.RouterConfig) llm.Completer {
	var base llm.Completer
	switch cfg.LLM.Provider {
	case "openai":
		base = infrallm.NewOpenAIClient(infrallm.OpenAIConfigFrom(cfg.LLM))
	case "ollama":
		base = infrallm.NewOllamaClient(infrallm.OllamaConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout.Duration(),
		})
	default:
		return nil
	}
	retry := resilience.ConfigFrom(cfg.Resilience)
	if d := cfg.LLM.Timeout.Duration(); d > 0 {
		retry.Timeout = d
	}
	return infrallm.NewRetrying(base, retry)
}

// buildTools registers the built-in command tools and, when a server
// command is configured, every tool of that external MCP server.
func (rt *Runtime) buildTools(ctx context.Context, cfg domainconfig.ToolsConfig) (*storemem.ToolRegistry, error) {
	registry, err := storemem.NewToolRegistry(mcp.BuiltinTools(cfg.RootDir, nil)...)
	if err != nil {
		return nil, err
	}
	if len(cfg.MCPCommand) == 0 {
		return registry, nil
	}

	client := mcp.NewClient(
		mcp.WithClientName("agent-router"),
		mcp.WithClientVersion(agentrouter.Version),
		mcp.WithServerCommand(cfg.MCPCommand...),
	)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("mcp server %v: %w", cfg.MCPCommand, err)
	}
	rt.mcp = client

	n, err := mcp.ImportTools(ctx, client, registry)
	if err != nil {
		return nil, fmt.Errorf("import mcp tools: %w", err)
	}
	logging.Info().
		Add(logging.Component("mcp")).
		Add(logging.Count("imported", n)).
		Msg("external tools imported")
	return registry, nil
}

// MetricsHandler serves Prometheus metrics, or nil when disabled.
func (rt *Runtime) MetricsHandler() http.Handler {
	if rt.Telemetry == nil {
		return nil
	}
	return rt.Telemetry.Handler()
}

// Close releases stores, the MCP client and the telemetry exporters.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.mcp != nil {
		errs = append(errs, rt.mcp.Close())
		rt.mcp = nil
	}
	if rt.stores != nil {
		errs = append(errs, rt.stores.close(ctx))
	}
	if rt.Telemetry != nil {
		errs = append(errs, rt.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
