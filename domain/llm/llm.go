// Package llm provides the language-model completion port.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors reported by completion providers.
var (
	// ErrUpstream indicates a network, auth or provider failure. Retryable.
	ErrUpstream = errors.New("llm upstream error")

	// ErrValidation indicates structured output that does not match the schema.
	ErrValidation = errors.New("llm output validation failed")
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request. Schema, when set, asks for a JSON object
// and names its required properties.
type Request struct {
	System      string          `json:"system,omitempty"`
	Messages    []Message       `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Completer is the language-model capability port.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Prompt builds a single-message request.
func Prompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: "user", Content: user}},
	}
}

// Decode parses structured output into v. Markdown code fences are stripped
// and the schema's required properties are enforced.
func Decode(content string, schema json.RawMessage, v any) error {
	content = StripFences(content)
	if !json.Valid([]byte(content)) {
		return fmt.Errorf("%w: not JSON: %s", ErrValidation, truncate(content, 120))
	}
	if err := checkRequired(content, schema); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// StripFences removes a surrounding ``` or ```json block.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

func checkRequired(content string, schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	var doc struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil || len(doc.Required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return fmt.Errorf("%w: expected object", ErrValidation)
	}
	for _, key := range doc.Required {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("%w: missing %q", ErrValidation, key)
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
