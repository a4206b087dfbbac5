// Package fake provides deterministic capability ports for tests and the
// offline demo mode.
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/llm"
)

// ErrScriptExhausted is returned when a scripted model runs out of steps.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted completion.
type Step struct {
	// Content is returned as the completion text.
	Content string

	// Err, when set, is returned instead of Content.
	Err error

	// Delay holds the response back. Cancellation wins over the delay.
	Delay time.Duration

	// Condition is an optional check on the request the step answers.
	Condition func(llm.Request) bool
}

type rule struct {
	match string
	step  Step
}

// LLM is a scripted llm.Completer. Rules registered with On match on the
// request's system and message text and are never consumed; otherwise
// steps are returned in order.
type LLM struct {
	mu           sync.Mutex
	rules        []rule
	steps        []Step
	index        int
	onUnexpected *Step
	requests     []llm.Request
}

// NewLLM creates a scripted model with the given steps.
func NewLLM(steps ...Step) *LLM {
	return &LLM{steps: steps}
}

// On answers every request containing match with step.
func (l *LLM) On(match string, step Step) *LLM {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append(l.rules, rule{match: match, step: step})
	return l
}

// OnUnexpected sets the step used once the script is exhausted.
func (l *LLM) OnUnexpected(step Step) *LLM {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onUnexpected = &step
	return l
}

// Complete implements llm.Completer.
func (l *LLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	step, err := l.next(req)
	if err != nil {
		return llm.Response{}, err
	}
	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return llm.Response{}, fmt.Errorf("%w: %v", llm.ErrUpstream, ctx.Err())
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return llm.Response{}, step.Err
	}
	return llm.Response{Content: step.Content, Model: "scripted"}, nil
}

func (l *LLM) next(req llm.Request) (Step, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)

	text := requestText(req)
	for _, r := range l.rules {
		if strings.Contains(text, r.match) {
			return r.step, nil
		}
	}

	if l.index >= len(l.steps) {
		if l.onUnexpected != nil {
			return *l.onUnexpected, nil
		}
		return Step{}, ErrScriptExhausted
	}
	step := l.steps[l.index]
	if step.Condition != nil && !step.Condition(req) {
		return Step{}, &ConditionFailedError{StepIndex: l.index}
	}
	l.index++
	return step, nil
}

// Requests returns every request received so far.
func (l *LLM) Requests() []llm.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]llm.Request(nil), l.requests...)
}

// Calls returns the number of requests received.
func (l *LLM) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// IsComplete returns true if all steps have been consumed.
func (l *LLM) IsComplete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index >= len(l.steps)
}

// Reset rewinds the script and forgets recorded requests.
func (l *LLM) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = 0
	l.requests = nil
}

// ConditionFailedError indicates a step condition was not met.
type ConditionFailedError struct {
	StepIndex int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition failed at step %d", e.StepIndex)
}

func requestText(req llm.Request) string {
	var sb strings.Builder
	sb.WriteString(req.System)
	for _, m := range req.Messages {
		sb.WriteString("\n")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

var _ llm.Completer = (*LLM)(nil)
