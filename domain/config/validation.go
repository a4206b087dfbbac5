package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates router configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *RouterConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateOrchestrator(config)
	v.validateResilience(config)
	v.validateStorage(config)
	v.validateLLM(config)
	v.validateObservability(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *RouterConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateOrchestrator(config *RouterConfig) {
	o := config.Orchestrator
	if o.IntentThreshold < 0 || o.IntentThreshold > 1 {
		v.addError("orchestrator.intent_threshold", "intent_threshold must be within [0,1]")
	}
	if o.SpecialistFloor < 0 || o.SpecialistFloor > 1 {
		v.addError("orchestrator.specialist_floor", "specialist_floor must be within [0,1]")
	}
	if o.MaxSubtasks < 1 {
		v.addError("orchestrator.max_subtasks", "max_subtasks must be at least 1")
	}
	if o.MaxDepth < 1 {
		v.addError("orchestrator.max_depth", "max_depth must be at least 1")
	}
	if o.MaxConcurrent < 1 {
		v.addError("orchestrator.max_concurrent", "max_concurrent must be at least 1")
	}
	if o.HistoryWindow < 0 {
		v.addError("orchestrator.history_window", "history_window must be non-negative")
	}
	if o.ContextBudget <= 0 {
		v.addError("orchestrator.context_budget", "context_budget must be positive")
	}
	if o.SubtaskTimeout <= 0 {
		v.addError("orchestrator.subtask_timeout", "subtask_timeout must be positive")
	}
	if o.TurnTimeout <= 0 {
		v.addError("orchestrator.turn_timeout", "turn_timeout must be positive")
	} else if o.SubtaskTimeout > o.TurnTimeout {
		v.addError("orchestrator.subtask_timeout", "subtask_timeout must not exceed turn_timeout")
	}
}

func (v *Validator) validateResilience(config *RouterConfig) {
	r := config.Resilience
	if r.Retry.MaxAttempts < 1 {
		v.addError("resilience.retry.max_attempts", "max_attempts must be at least 1")
	}
	if r.Retry.Multiplier < 1 {
		v.addError("resilience.retry.multiplier", "multiplier must be >= 1")
	}
	if r.CircuitBreaker.Enabled && r.CircuitBreaker.Threshold <= 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be positive when enabled")
	}
}

var (
	conversationBackends = map[string]bool{"memory": true, "redis": true, "sqlite": true, "badger": true, "postgres": true, "dynamodb": true}
	memoryBackends       = map[string]bool{"memory": true, "redis": true, "sqlite": true}
	knowledgeBackends    = map[string]bool{"memory": true, "sqlite": true}
	eventBackends        = map[string]bool{"memory": true, "sqlite": true, "nats": true, "none": true}
)

func (v *Validator) validateStorage(config *RouterConfig) {
	s := config.Storage
	if !conversationBackends[s.Conversations] {
		v.addError("storage.conversations", fmt.Sprintf("unknown backend: %s", s.Conversations))
	}
	if !memoryBackends[s.Memory] {
		v.addError("storage.memory", fmt.Sprintf("unknown backend: %s", s.Memory))
	}
	if s.MemoryFallback != "" && !memoryBackends[s.MemoryFallback] {
		v.addError("storage.memory_fallback", fmt.Sprintf("unknown backend: %s", s.MemoryFallback))
	}
	if !knowledgeBackends[s.Knowledge] {
		v.addError("storage.knowledge", fmt.Sprintf("unknown backend: %s", s.Knowledge))
	}
	if !eventBackends[s.Events] {
		v.addError("storage.events", fmt.Sprintf("unknown backend: %s", s.Events))
	}
	if s.Conversations == "postgres" && s.PostgresURL == "" {
		v.addError("storage.postgres_url", "postgres_url is required for the postgres backend")
	}
	if s.Conversations == "dynamodb" && s.DynamoTable == "" {
		v.addError("storage.dynamodb_table", "dynamodb_table is required for the dynamodb backend")
	}
	if s.Events == "nats" && s.NATSURL == "" {
		v.addError("storage.nats_url", "nats_url is required for the nats backend")
	}
}

func (v *Validator) validateLLM(config *RouterConfig) {
	switch strings.ToLower(config.LLM.Provider) {
	case "none":
	case "openai":
		if config.LLM.APIKey == "" {
			v.addError("llm.api_key", "api_key is required for the openai provider")
		}
		if config.LLM.Model == "" {
			v.addError("llm.model", "model is required for the openai provider")
		}
	case "ollama":
		if config.LLM.Model == "" {
			v.addError("llm.model", "model is required for the ollama provider")
		}
	default:
		v.addError("llm.provider", fmt.Sprintf("unknown provider: %s", config.LLM.Provider))
	}
}

func (v *Validator) validateObservability(config *RouterConfig) {
	switch config.Observability.Tracing {
	case "none", "stdout":
	case "otlp":
		if config.Observability.Endpoint == "" {
			v.addError("observability.endpoint", "endpoint is required for otlp tracing")
		}
	default:
		v.addError("observability.tracing", fmt.Sprintf("unknown exporter: %s", config.Observability.Tracing))
	}
}
