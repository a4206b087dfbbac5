package config

import "time"

// Default values applied to unset fields.
const (
	DefaultIntentThreshold = 0.7
	DefaultHistoryWindow   = 20
	DefaultContextBudget   = 4000
	DefaultMemoryLimit     = 5
	DefaultKnowledgeTopK   = 3
	DefaultMaxSubtasks     = 10
	DefaultMaxDepth        = 5
	DefaultMaxConcurrent   = 5
	DefaultSpecialistFloor = 0.3
	DefaultSubtaskTimeout  = 30 * time.Second
	DefaultTurnTimeout     = 60 * time.Second
	DefaultIdentity        = "你是一个多智能体助手，负责协调专业助手回答用户的问题。"
)

// Default returns a configuration that runs entirely in memory.
func Default() RouterConfig {
	var c RouterConfig
	c.Name = "agent-router"
	c.Version = "1"
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued fields.
func (c *RouterConfig) ApplyDefaults() {
	o := &c.Orchestrator
	if o.IntentThreshold == 0 {
		o.IntentThreshold = DefaultIntentThreshold
	}
	if o.HistoryWindow == 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.ContextBudget == 0 {
		o.ContextBudget = DefaultContextBudget
	}
	if o.MemoryLimit == 0 {
		o.MemoryLimit = DefaultMemoryLimit
	}
	if o.KnowledgeTopK == 0 {
		o.KnowledgeTopK = DefaultKnowledgeTopK
	}
	if o.MaxSubtasks == 0 {
		o.MaxSubtasks = DefaultMaxSubtasks
	}
	if o.MaxDepth == 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxConcurrent == 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.SpecialistFloor == 0 {
		o.SpecialistFloor = DefaultSpecialistFloor
	}
	if o.SubtaskTimeout == 0 {
		o.SubtaskTimeout = Duration(DefaultSubtaskTimeout)
	}
	if o.TurnTimeout == 0 {
		o.TurnTimeout = Duration(DefaultTurnTimeout)
	}
	if o.Identity == "" {
		o.Identity = DefaultIdentity
	}

	r := &c.Resilience
	if r.Retry.MaxAttempts == 0 {
		r.Retry.MaxAttempts = 3
	}
	if r.Retry.InitialDelay == 0 {
		r.Retry.InitialDelay = Duration(200 * time.Millisecond)
	}
	if r.Retry.Multiplier == 0 {
		r.Retry.Multiplier = 2.0
	}
	if r.CircuitBreaker.Threshold == 0 {
		r.CircuitBreaker.Threshold = 5
	}
	if r.CircuitBreaker.Timeout == 0 {
		r.CircuitBreaker.Timeout = Duration(30 * time.Second)
	}
	if r.ToolTimeout == 0 {
		r.ToolTimeout = Duration(10 * time.Second)
	}

	s := &c.Storage
	if s.Conversations == "" {
		s.Conversations = "memory"
	}
	if s.Memory == "" {
		s.Memory = "memory"
	}
	if s.Knowledge == "" {
		s.Knowledge = "memory"
	}
	if s.Events == "" {
		s.Events = "memory"
	}
	if s.ConversationTTL == 0 {
		s.ConversationTTL = Duration(24 * time.Hour)
	}
	if s.RedisURL == "" {
		s.RedisURL = "redis://localhost:6379"
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "./data/memory.db"
	}
	if s.BadgerDir == "" {
		s.BadgerDir = "./data/badger"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = Duration(120 * time.Second)
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Observability.Tracing == "" {
		c.Observability.Tracing = "none"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}
