package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Parallel()

	t.Run("creates client with defaults", func(t *testing.T) {
		t.Parallel()

		c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o-mini"})
		if c.baseURL != defaultOpenAIBaseURL {
			t.Errorf("baseURL = %s, want %s", c.baseURL, defaultOpenAIBaseURL)
		}
		if c.client.Timeout != 60*time.Second {
			t.Errorf("timeout = %v, want 60s", c.client.Timeout)
		}
		if c.Model() != "gpt-4o-mini" {
			t.Errorf("Model() = %s, want gpt-4o-mini", c.Model())
		}
	})

	t.Run("maps router config", func(t *testing.T) {
		t.Parallel()

		cfg := OpenAIConfigFrom(domainconfig.LLMConfig{
			BaseURL: "https://api.deepseek.com",
			APIKey:  "k",
			Model:   "deepseek-chat",
			Timeout: domainconfig.Duration(5 * time.Second),
		})
		c := NewOpenAIClient(cfg)
		if c.baseURL != "https://api.deepseek.com" {
			t.Errorf("baseURL = %s", c.baseURL)
		}
		if c.client.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want 5s", c.client.Timeout)
		}
	})
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Parallel()

	t.Run("sends system prompt and returns first choice", func(t *testing.T) {
		t.Parallel()

		var got openAIChatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/chat/completions" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("Authorization = %q", auth)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"你好"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
		}))
		defer server.Close()

		c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "m"})
		resp, err := c.Complete(context.Background(), llm.Prompt("be brief", "hi"))
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if resp.Content != "你好" {
			t.Errorf("Content = %q", resp.Content)
		}
		if resp.Usage.TotalTokens != 5 {
			t.Errorf("TotalTokens = %d, want 5", resp.Usage.TotalTokens)
		}
		if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
			t.Errorf("messages = %+v", got.Messages)
		}
		if got.ResponseFormat != nil {
			t.Error("response_format should be unset without a schema")
		}
	})

	t.Run("requests json object when schema is set", func(t *testing.T) {
		t.Parallel()

		var got openAIChatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
		}))
		defer server.Close()

		c := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL})
		req := llm.Prompt("", "plan")
		req.Schema = json.RawMessage(`{"required":["subtasks"]}`)
		if _, err := c.Complete(context.Background(), req); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v", got.ResponseFormat)
		}
	})

	failures := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"malformed body", http.StatusOK, `not json`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			c := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL})
			_, err := c.Complete(context.Background(), llm.Prompt("", "hi"))
			if !errors.Is(err, llm.ErrUpstream) {
				t.Errorf("error = %v, want ErrUpstream", err)
			}
		})
	}

	t.Run("unreachable host is upstream", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		c := NewOpenAIClient(OpenAIConfig{BaseURL: url, Timeout: time.Second})
		_, err := c.Complete(context.Background(), llm.Prompt("", "hi"))
		if !errors.Is(err, llm.ErrUpstream) {
			t.Errorf("error = %v, want ErrUpstream", err)
		}
	})
}

func TestOllamaClient_Complete(t *testing.T) {
	t.Parallel()

	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"qwen2.5","message":{"role":"assistant","content":"ok"},"done":true,"prompt_eval_count":4,"eval_count":1}`))
	}))
	defer server.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "qwen2.5"})
	req := llm.Prompt("sys", "hi")
	req.Schema = json.RawMessage(`{}`)
	resp, err := c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" || resp.Usage.TotalTokens != 5 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Stream {
		t.Error("stream should be false")
	}
	if got.Format != "json" {
		t.Errorf("format = %q, want json", got.Format)
	}
	if len(got.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(got.Messages))
	}
}

type flakyCompleter struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: "done"}, nil
}

func fastRetry(attempts int) resilience.ExecutorConfig {
	cfg := resilience.DefaultExecutorConfig()
	cfg.RetryMaxAttempts = attempts
	cfg.RetryInitialDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestRetrying(t *testing.T) {
	t.Parallel()

	t.Run("retries upstream errors until success", func(t *testing.T) {
		t.Parallel()

		inner := &flakyCompleter{failures: 2, err: llm.ErrUpstream}
		r := NewRetrying(inner, fastRetry(3))
		resp, err := r.Complete(context.Background(), llm.Prompt("", "hi"))
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if resp.Content != "done" {
			t.Errorf("Content = %q", resp.Content)
		}
		if r.Calls() != 3 {
			t.Errorf("Calls() = %d, want 3", r.Calls())
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()

		inner := &flakyCompleter{failures: 10, err: llm.ErrUpstream}
		r := NewRetrying(inner, fastRetry(3))
		_, err := r.Complete(context.Background(), llm.Prompt("", "hi"))
		if err == nil {
			t.Fatal("Complete() should fail once attempts are exhausted")
		}
		if inner.calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", inner.calls.Load())
		}
	})

	t.Run("does not retry validation errors", func(t *testing.T) {
		t.Parallel()

		inner := &flakyCompleter{failures: 10, err: llm.ErrValidation}
		r := NewRetrying(inner, fastRetry(3))
		_, err := r.Complete(context.Background(), llm.Prompt("", "hi"))
		if !errors.Is(err, llm.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
		if inner.calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", inner.calls.Load())
		}
	})

	t.Run("reports circuit state", func(t *testing.T) {
		t.Parallel()

		r := NewRetrying(&flakyCompleter{}, fastRetry(1))
		if r.CircuitState() != "closed" {
			t.Errorf("CircuitState() = %s, want closed", r.CircuitState())
		}
	})
}
