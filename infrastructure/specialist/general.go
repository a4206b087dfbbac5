package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	domain "github.com/felixgeelhaar/agent-router/domain/specialist"
)

// GeneralName is the registry name of the general assistant.
const GeneralName = "general"

// FallbackName is the name the fallback handler reports.
const FallbackName = "default"

// generalScore sits just above the default selection floor so any keyword
// specialist outranks the general assistant.
const generalScore = 0.35

// fallbackCeiling caps the confidence of fallback answers.
const fallbackCeiling = 0.5

const (
	chatSystem = "你是一个友好的AI助手。请自然地回应用户的日常聊天。保持对话轻松友好，适当展现个性。"
	qaSystem   = "基于提供的信息回答用户问题。如果信息不足，请说明。请提供准确、有用的回答。"
	taskSystem = "请完成以下任务，结合提供的上下文给出完整的结果。"
)

// Undetermined is the fallback answer when nothing better is available.
const Undetermined = "我理解了您的请求，但暂时无法确定最佳的处理方式。请您提供更多详细信息。"

// General answers anything with the model. Its confidence follows the
// turn's intent: chat 0.9, question answering 0.8, tasks 0.7.
type General struct {
	completer llm.Completer
}

// NewGeneral creates a general assistant bound to c.
func NewGeneral(c llm.Completer) *General {
	return &General{completer: c}
}

// Name implements specialist.Specialist.
func (g *General) Name() string { return GeneralName }

// Score implements specialist.Specialist.
func (g *General) Score(plan.Subtask) float64 {
	if g.completer == nil {
		return 0
	}
	return generalScore
}

// Process implements specialist.Specialist.
func (g *General) Process(ctx context.Context, in domain.Input) (plan.Result, error) {
	if g.completer == nil {
		return plan.Result{}, domain.ErrSpecialistUnavailable
	}
	system, confidence := taskSystem, 0.7
	switch in.Intent.Type {
	case intent.TypeSimpleChat:
		system, confidence = chatSystem, 0.9
	case intent.TypeQuestionAnswer:
		system, confidence = qaSystem, 0.8
	}
	content, err := complete(ctx, g.completer, system, brief(in), 0.7)
	if err != nil {
		return plan.Result{}, fmt.Errorf("general: %w", err)
	}
	return result(GeneralName, in, content, confidence, nil), nil
}

// Fallback is the handler used when no registered specialist reaches the
// selection floor. It never fails and never reports more than 0.5
// confidence.
type Fallback struct {
	completer llm.Completer
}

// NewFallback creates the fallback handler. c may be nil.
func NewFallback(c llm.Completer) *Fallback {
	return &Fallback{completer: c}
}

// Name implements specialist.Specialist.
func (f *Fallback) Name() string { return FallbackName }

// Score implements specialist.Specialist. The fallback is never selected by
// score.
func (f *Fallback) Score(plan.Subtask) float64 { return 0 }

// Process implements specialist.Specialist.
func (f *Fallback) Process(ctx context.Context, in domain.Input) (plan.Result, error) {
	if f.completer != nil {
		content, err := complete(ctx, f.completer, taskSystem, brief(in), 0.7)
		if err == nil {
			return result(FallbackName, in, content, fallbackCeiling, nil), nil
		}
	}
	if material := reference(in.Context); material != "" {
		return result(FallbackName, in, material, 0.4, nil), nil
	}
	return result(FallbackName, in, Undetermined, fallbackCeiling, nil), nil
}

// reference joins retrieved knowledge and search snippets, best first as
// assembled.
func reference(c assembly.Context) string {
	var parts []string
	for _, src := range []assembly.Source{assembly.SourceKnowledge, assembly.SourceWebSearch, assembly.SourceCommand} {
		for _, s := range c.BySource(src) {
			parts = append(parts, s.Content)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "根据检索到的信息：\n" + strings.Join(parts, "\n")
}

var (
	_ domain.Specialist = (*General)(nil)
	_ domain.Specialist = (*Fallback)(nil)
)
