package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()

	if c.Orchestrator.IntentThreshold != 0.7 {
		t.Errorf("IntentThreshold = %v, want 0.7", c.Orchestrator.IntentThreshold)
	}
	if c.Orchestrator.MaxSubtasks != 10 {
		t.Errorf("MaxSubtasks = %d, want 10", c.Orchestrator.MaxSubtasks)
	}
	if c.Orchestrator.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", c.Orchestrator.MaxConcurrent)
	}
	if c.Orchestrator.ContextBudget != 4000 {
		t.Errorf("ContextBudget = %d, want 4000", c.Orchestrator.ContextBudget)
	}
	if c.Storage.SQLitePath != "./data/memory.db" {
		t.Errorf("SQLitePath = %s, want ./data/memory.db", c.Storage.SQLitePath)
	}
	if errs := NewValidator().Validate(&c); errs.HasErrors() {
		t.Errorf("Default() should validate, got %v", errs)
	}
}

func TestValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RouterConfig)
		path   string
	}{
		{"threshold range", func(c *RouterConfig) { c.Orchestrator.IntentThreshold = 1.5 }, "orchestrator.intent_threshold"},
		{"subtask exceeds turn", func(c *RouterConfig) { c.Orchestrator.SubtaskTimeout = Duration(2 * time.Minute) }, "orchestrator.subtask_timeout"},
		{"unknown backend", func(c *RouterConfig) { c.Storage.Conversations = "etcd" }, "storage.conversations"},
		{"postgres needs url", func(c *RouterConfig) { c.Storage.Conversations = "postgres" }, "storage.postgres_url"},
		{"openai needs key", func(c *RouterConfig) {
			c.LLM.Provider = "openai"
			c.LLM.Model = "deepseek-chat"
		}, "llm.api_key"},
		{"otlp needs endpoint", func(c *RouterConfig) { c.Observability.Tracing = "otlp" }, "observability.endpoint"},
		{"name required", func(c *RouterConfig) { c.Name = "" }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := Default()
			tt.mutate(&c)
			errs := NewValidator().Validate(&c)
			found := false
			for _, e := range errs {
				if e.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error at %s", errs, tt.path)
			}
		})
	}
}

func TestDuration_Encoding(t *testing.T) {
	t.Parallel()

	var fromYAML struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 45s\n"), &fromYAML); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if fromYAML.Timeout.Duration() != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", fromYAML.Timeout.Duration())
	}

	var fromJSON struct {
		Timeout Duration `json:"timeout"`
	}
	if err := json.Unmarshal([]byte(`{"timeout":"1m30s"}`), &fromJSON); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if fromJSON.Timeout.Duration() != 90*time.Second {
		t.Errorf("Timeout = %v, want 1m30s", fromJSON.Timeout.Duration())
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	errs := ValidationErrors{{Path: "a", Message: "bad"}, {Message: "worse"}}
	if got := errs.Error(); got != "2 validation errors:\n  - a: bad\n  - worse" {
		t.Errorf("Error() = %q", got)
	}
}
