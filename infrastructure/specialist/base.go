// Package specialist provides the built-in domain handlers: medical, travel,
// research, a general LLM assistant and the always-available fallback.
//
// Every handler works without a language model. With one bound, answers are
// generated from the assembled context; without, handlers fall back to fixed
// guidance at reduced confidence.
package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	domain "github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// keywordScore returns 0 when no keyword occurs in text, otherwise 0.6 plus
// 0.1 per distinct hit, capped at 1.
func keywordScore(text string, keywords []string) float64 {
	text = strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	score := 0.6 + 0.1*float64(hits)
	if score > 1 {
		score = 1
	}
	return score
}

// brief renders the material a specialist prompts with: the assembled
// context, the subtask when it differs from the message, and the results of
// finished dependencies.
func brief(in domain.Input) string {
	var sb strings.Builder
	sb.WriteString(in.Context.Render())
	if d := strings.TrimSpace(in.Subtask.Description); d != "" && d != strings.TrimSpace(in.Context.Message) {
		sb.WriteString("\n\n## Subtask\n")
		sb.WriteString(d)
	}
	if len(in.Dependencies) > 0 {
		sb.WriteString("\n\n## Prior results\n")
		for _, dep := range in.Dependencies {
			if dep.Failed() {
				continue
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", dep.SubtaskID, dep.Content)
		}
	}
	return sb.String()
}

// task returns the text a specialist works on.
func task(in domain.Input) string {
	if d := strings.TrimSpace(in.Subtask.Description); d != "" {
		return d
	}
	if in.Request != "" {
		return in.Request
	}
	return in.Context.Message
}

func complete(ctx context.Context, c llm.Completer, system, user string, temperature float64) (string, error) {
	req := llm.Prompt(system, user)
	req.Temperature = temperature
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", llm.ErrValidation)
	}
	return content, nil
}

// search runs one web search through the dispatcher. A nil dispatcher or a
// failed call yields no text; the call is still returned for the record.
func search(ctx context.Context, tools domain.Dispatcher, query string, limit int) (string, []tooling.Call) {
	if tools == nil || strings.TrimSpace(query) == "" {
		return "", nil
	}
	call := tools.DispatchTool(ctx, tooling.KindWebSearch, tooling.Args{Query: query, Limit: limit})
	if call.Failed() {
		return "", []tooling.Call{call}
	}
	return call.Output, []tooling.Call{call}
}

func result(name string, in domain.Input, content string, confidence float64, calls []tooling.Call) plan.Result {
	return plan.Result{
		SubtaskID:  in.Subtask.ID,
		Specialist: name,
		Content:    content,
		Confidence: confidence,
		ToolCalls:  calls,
	}
}

// Builtins returns the keyword specialists followed by the general
// assistant, in registration order. The general assistant is only included
// when a completer is bound.
func Builtins(c llm.Completer) []domain.Specialist {
	out := []domain.Specialist{
		NewMedical(c),
		NewTravel(c),
		NewResearch(c),
	}
	if c != nil {
		out = append(out, NewGeneral(c))
	}
	return out
}
