// Package llm provides completion clients for OpenAI-compatible and Ollama
// endpoints, plus a retrying decorator.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/llm"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIClient completes requests against an OpenAI-compatible chat API.
// DeepSeek and most hosted gateways speak the same protocol.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // Default: https://api.openai.com
	Model       string // e.g., "gpt-4o-mini", "deepseek-chat"
	Temperature float64
	Timeout     time.Duration // Default: 60s
}

// OpenAIConfigFrom maps router LLM settings to a client configuration.
func OpenAIConfigFrom(c domainconfig.LLMConfig) OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		Timeout:     c.Timeout.Duration(),
	}
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:      config.APIKey,
		baseURL:     baseURL,
		model:       config.Model,
		temperature: config.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []llm.Message        `json:"messages"`
	Temperature    float64              `json:"temperature,omitempty"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      llm.Message `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

// Complete implements llm.Completer. Every transport, status and decoding
// failure is reported as llm.ErrUpstream.
func (c *OpenAIClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	chatReq := openAIChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Schema) > 0 {
		chatReq.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return llm.Response{}, fmt.Errorf("%w: request failed: %v", llm.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("%w: failed to read response: %v", llm.ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		return llm.Response{}, fmt.Errorf("%w: status %d: %s", llm.ErrUpstream, resp.StatusCode, truncate(string(respBody), 200))
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return llm.Response{}, fmt.Errorf("%w: failed to parse response: %v", llm.ErrUpstream, err)
	}
	if len(chatResp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("%w: no choices in response", llm.ErrUpstream)
	}

	return llm.Response{
		Content: chatResp.Choices[0].Message.Content,
		Model:   chatResp.Model,
		Usage:   chatResp.Usage,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ llm.Completer = (*OpenAIClient)(nil)
