package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// overlapThreshold is the token similarity above which two results answer
// the same question.
const overlapThreshold = 0.6

// Reconciled is the merged outcome of a plan's results.
type Reconciled struct {
	Content    string        `json:"content"`
	Confidence float64       `json:"confidence"`
	Kept       []plan.Result `json:"kept"`
	// Alternatives are overlapping lower-confidence results. They are not
	// part of the content but stay on the turn's trace.
	Alternatives []plan.Result `json:"alternatives,omitempty"`
	Failed       []plan.Result `json:"failed,omitempty"`
}

// Reconcile merges results in plan order. Complementary results are
// concatenated; of two overlapping results the more confident one is kept.
// Every failed subtask lowers the overall confidence proportionally.
func Reconcile(p plan.TaskPlan, results map[string]plan.Result) Reconciled {
	var out Reconciled
	for _, id := range p.Order {
		r, ok := results[id]
		if !ok {
			continue
		}
		if r.Failed() {
			out.Failed = append(out.Failed, r)
			continue
		}
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		out.keep(r)
	}

	total := len(out.Kept) + len(out.Alternatives) + len(out.Failed)
	if len(out.Kept) == 0 || total == 0 {
		return out
	}

	sum := 0.0
	parts := make([]string, 0, len(out.Kept)+1)
	for _, r := range out.Kept {
		sum += r.Confidence
		parts = append(parts, r.Content)
	}
	succeeded := float64(total - len(out.Failed))
	out.Confidence = sum / float64(len(out.Kept)) * succeeded / float64(total)

	if len(out.Failed) > 0 {
		ids := make([]string, 0, len(out.Failed))
		for _, r := range out.Failed {
			ids = append(ids, r.SubtaskID)
		}
		parts = append(parts, fmt.Sprintf("（部分子任务未完成：%s）", strings.Join(ids, "、")))
	}
	out.Content = strings.Join(parts, "\n\n")
	return out
}

func (o *Reconciled) keep(r plan.Result) {
	for i, k := range o.Kept {
		if textmatch.Jaccard(k.Content, r.Content) < overlapThreshold {
			continue
		}
		if r.Confidence > k.Confidence {
			o.Kept[i] = r
			o.Alternatives = append(o.Alternatives, k)
		} else {
			o.Alternatives = append(o.Alternatives, r)
		}
		return
	}
	o.Kept = append(o.Kept, r)
}

// Summarizer turns the reconciled results of a multi-step plan into one
// answer.
type Summarizer interface {
	Summarize(ctx context.Context, request string, r Reconciled) (string, error)
}

const summarySystem = `你是任务汇总助手。基于各子任务的执行结果，为用户生成一份完整、连贯的任务完成报告。
不要编造子任务结果中没有的信息；未完成的子任务需如实说明。`

// LLMSummarizer summarizes through the model.
type LLMSummarizer struct {
	Completer llm.Completer
}

// Summarize implements Summarizer.
func (s LLMSummarizer) Summarize(ctx context.Context, request string, r Reconciled) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "用户请求：%s\n\n子任务执行结果：\n", request)
	for _, k := range r.Kept {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", k.SubtaskID, k.Content)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&sb, "\n[%s] 未完成：%s\n", f.SubtaskID, f.Error)
	}
	resp, err := s.Completer.Complete(ctx, llm.Prompt(summarySystem, sb.String()))
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty summary", llm.ErrValidation)
	}
	return content, nil
}

// summarize replaces the concatenated content when a summarizer is set
// and more than one result was kept. Failures keep the concatenation.
func summarize(ctx context.Context, s Summarizer, request string, r Reconciled) Reconciled {
	if s == nil || len(r.Kept) < 2 {
		return r
	}
	content, err := s.Summarize(ctx, request, r)
	if err != nil {
		logging.Warn().
			Add(logging.Component("summarizer")).
			Add(logging.ErrorField(err)).
			Msg("summary failed, keeping merged results")
		return r
	}
	r.Content = content
	return r
}
