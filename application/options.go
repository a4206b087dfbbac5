package application

import (
	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/telemetry"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
)

// Option configures the engine.
type Option func(*EngineConfig)

// WithOrchestrator sets the orchestration bounds. Zero fields keep their
// defaults.
func WithOrchestrator(o domainconfig.OrchestratorConfig) Option {
	return func(c *EngineConfig) {
		c.Orchestrator = o
	}
}

// WithPortResilience sets timeout and circuit breaking for capability ports.
func WithPortResilience(r resilience.ExecutorConfig) Option {
	return func(c *EngineConfig) {
		c.Ports = r
	}
}

// WithConversations sets the conversation store.
func WithConversations(s conversation.Store) Option {
	return func(c *EngineConfig) {
		c.Conversations = s
	}
}

// WithSpecialists sets the specialist registry.
func WithSpecialists(r specialist.Registry) Option {
	return func(c *EngineConfig) {
		c.Specialists = r
	}
}

// WithFallback sets the handler for subtasks no specialist claims.
func WithFallback(s specialist.Specialist) Option {
	return func(c *EngineConfig) {
		c.Fallback = s
	}
}

// WithEvents sets the turn event store.
func WithEvents(s event.Store) Option {
	return func(c *EngineConfig) {
		c.Events = s
	}
}

// WithKnowledge sets the knowledge store. It also binds the knowledge port
// unless one is bound already.
func WithKnowledge(s knowledge.Store) Option {
	return func(c *EngineConfig) {
		c.Knowledge = s
		if c.Bindings.Knowledge == nil && s != nil {
			c.Bindings.Knowledge = s
		}
	}
}

// WithPorts sets the capability port bindings.
func WithPorts(p Ports) Option {
	return func(c *EngineConfig) {
		kb := c.Bindings.Knowledge
		c.Bindings = p
		if c.Bindings.Knowledge == nil {
			c.Bindings.Knowledge = kb
		}
	}
}

// WithLLM enables the model-backed classifier, decomposer, tool classifier,
// missing-info check and summarizer.
func WithLLM(l llm.Completer) Option {
	return func(c *EngineConfig) {
		c.LLM = l
	}
}

// WithStrategies replaces the intent scoring strategies.
func WithStrategies(s ...ScoringStrategy) Option {
	return func(c *EngineConfig) {
		c.Strategies = s
	}
}

// WithDecomposer sets the task decomposer.
func WithDecomposer(d Decomposer) Option {
	return func(c *EngineConfig) {
		c.Decomposer = d
	}
}

// WithToolModel sets the model consulted when no tool rule fires.
func WithToolModel(m ToolClassifier) Option {
	return func(c *EngineConfig) {
		c.ToolModel = m
	}
}

// WithChecker sets the missing-information check.
func WithChecker(m MissingInfoChecker) Option {
	return func(c *EngineConfig) {
		c.Checker = m
	}
}

// WithSummarizer sets the summarizer of multi-step results.
func WithSummarizer(s Summarizer) Option {
	return func(c *EngineConfig) {
		c.Summarizer = s
	}
}

// WithRules replaces the tool rule table.
func WithRules(r tooling.RuleTable) Option {
	return func(c *EngineConfig) {
		c.Rules = r
	}
}

// WithSearchLimit bounds web search results per call.
func WithSearchLimit(n int) Option {
	return func(c *EngineConfig) {
		c.SearchLimit = n
	}
}

// WithTelemetry sets the tracer and metrics sink.
func WithTelemetry(t telemetry.Tracer, m telemetry.Metrics) Option {
	return func(c *EngineConfig) {
		c.Tracer = t
		c.Metrics = m
	}
}

// NewEngineWithOptions creates an engine with functional options.
func NewEngineWithOptions(opts ...Option) (*Engine, error) {
	config := EngineConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewEngine(config)
}
