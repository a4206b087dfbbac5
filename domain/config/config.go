// Package config provides domain models for router configuration.
package config

import "time"

// RouterConfig is the complete configuration of the message router.
type RouterConfig struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	Orchestrator  OrchestratorConfig  `json:"orchestrator" yaml:"orchestrator"`
	Resilience    ResilienceConfig    `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	Storage       StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`
	LLM           LLMConfig           `json:"llm,omitempty" yaml:"llm,omitempty"`
	Search        SearchConfig        `json:"search,omitempty" yaml:"search,omitempty"`
	Tools         ToolsConfig         `json:"tools,omitempty" yaml:"tools,omitempty"`
	Logging       LoggingConfig       `json:"logging,omitempty" yaml:"logging,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
	Server        ServerConfig        `json:"server,omitempty" yaml:"server,omitempty"`
}

// OrchestratorConfig tunes the per-turn pipeline.
type OrchestratorConfig struct {
	// IntentThreshold is the confidence below which a turn asks for clarification.
	IntentThreshold float64 `json:"intent_threshold,omitempty" yaml:"intent_threshold,omitempty"`
	// HistoryWindow is the number of recent turns given to the context.
	HistoryWindow int `json:"history_window,omitempty" yaml:"history_window,omitempty"`
	// ContextBudget is the token budget of the assembled context.
	ContextBudget int `json:"context_budget,omitempty" yaml:"context_budget,omitempty"`
	// MemoryLimit bounds memory records pulled per turn.
	MemoryLimit int `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
	// KnowledgeTopK bounds knowledge hits pulled per turn.
	KnowledgeTopK int `json:"knowledge_top_k,omitempty" yaml:"knowledge_top_k,omitempty"`
	// MaxSubtasks bounds plan size; excess subtasks are merged.
	MaxSubtasks int `json:"max_subtasks,omitempty" yaml:"max_subtasks,omitempty"`
	// MaxDepth bounds recursive decomposition.
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	// MaxConcurrent caps concurrently running specialists.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// SpecialistFloor is the minimum score for a specialist to claim a task.
	SpecialistFloor float64 `json:"specialist_floor,omitempty" yaml:"specialist_floor,omitempty"`
	// SubtaskTimeout bounds a single subtask.
	SubtaskTimeout Duration `json:"subtask_timeout,omitempty" yaml:"subtask_timeout,omitempty"`
	// TurnTimeout bounds a whole turn.
	TurnTimeout Duration `json:"turn_timeout,omitempty" yaml:"turn_timeout,omitempty"`
	// Identity is the system identity placed at the head of every context.
	Identity string `json:"identity,omitempty" yaml:"identity,omitempty"`
}

// ResilienceConfig contains resilience settings for capability ports.
type ResilienceConfig struct {
	// Retry configures retry of upstream model failures.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaking around ports.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// ToolTimeout bounds a single capability call.
	ToolTimeout Duration `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum attempts including the first.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled enables circuit breaker.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	// Conversations is the conversation backend: memory, redis, sqlite, badger, postgres, dynamodb.
	Conversations string `json:"conversations,omitempty" yaml:"conversations,omitempty"`
	// Memory is the primary memory backend: memory, redis, sqlite.
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty"`
	// MemoryFallback is the backend used when the primary fails.
	MemoryFallback string `json:"memory_fallback,omitempty" yaml:"memory_fallback,omitempty"`
	// Knowledge is the knowledge backend: memory, sqlite.
	Knowledge string `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
	// Events is the turn event backend: memory, sqlite, nats, none.
	Events string `json:"events,omitempty" yaml:"events,omitempty"`
	// ConversationTTL expires idle conversations.
	ConversationTTL Duration `json:"conversation_ttl,omitempty" yaml:"conversation_ttl,omitempty"`

	RedisURL     string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	SQLitePath   string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	BadgerDir    string `json:"badger_dir,omitempty" yaml:"badger_dir,omitempty"`
	PostgresURL  string `json:"postgres_url,omitempty" yaml:"postgres_url,omitempty"`
	DynamoTable  string `json:"dynamodb_table,omitempty" yaml:"dynamodb_table,omitempty"`
	DynamoRegion string `json:"dynamodb_region,omitempty" yaml:"dynamodb_region,omitempty"`
	NATSURL      string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
}

// LLMConfig configures the OpenAI-compatible completion client.
type LLMConfig struct {
	// Provider is openai, ollama or none. none runs the router on heuristics only.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	// Timeout bounds a single completion.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Temperature is the default sampling temperature.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// SearchConfig configures the web-search client.
type SearchConfig struct {
	// Endpoint is a JSON search API; empty disables web search.
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// ToolsConfig configures command tools.
type ToolsConfig struct {
	// Enabled turns on the built-in command tools.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// RootDir restricts file_read to this directory.
	RootDir string `json:"root_dir,omitempty" yaml:"root_dir,omitempty"`
	// MCPCommand runs an external MCP server over stdio instead of the built-in tools.
	MCPCommand []string `json:"mcp_command,omitempty" yaml:"mcp_command,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	// Tracing is the span exporter: none, stdout, otlp.
	Tracing string `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Prometheus enables the /metrics endpoint.
	Prometheus bool `json:"prometheus,omitempty" yaml:"prometheus,omitempty"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// RateLimit is allowed messages per second per client; 0 disables.
	RateLimit int `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// RateBurst is the burst size for RateLimit.
	RateBurst int `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Handle null
	if string(b) == "null" {
		return nil
	}

	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	// Parse duration
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
