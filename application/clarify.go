package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	infraspec "github.com/felixgeelhaar/agent-router/infrastructure/specialist"
)

// Questions asked when a turn needs clarification.
const (
	IntentQuestion  = "您是想闲聊、提问，还是需要我帮您完成一项任务？请补充更多细节。"
	MissingQuestion = "为了更好地完成任务，我需要以下信息："
)

// MissingInfoChecker reports what a planned request still lacks before it
// can be executed. An empty slice means nothing is missing.
type MissingInfoChecker interface {
	Missing(ctx context.Context, request string, in intent.Intent, p plan.TaskPlan) ([]string, error)
}

// HeuristicChecker requires a destination and a duration for travel
// planning requests: the request names a trip and the plan routes to the
// travel specialist.
type HeuristicChecker struct{}

// Missing implements MissingInfoChecker.
func (HeuristicChecker) Missing(_ context.Context, request string, in intent.Intent, p plan.TaskPlan) ([]string, error) {
	if !infraspec.IsTravelRequest(request) || !routesToTravel(p) {
		return nil, nil
	}
	var missing []string
	if d, _ := in.Entity("destination"); d == "" && infraspec.ExtractDestination(request) == "" {
		missing = append(missing, "目的地")
	}
	if d, _ := in.Entity("duration"); d == "" {
		missing = append(missing, "出行天数")
	}
	return missing, nil
}

// routesToTravel reports whether at least half of the subtasks are
// assigned to the travel specialist. An empty plan does not veto.
func routesToTravel(p plan.TaskPlan) bool {
	if p.Len() == 0 {
		return true
	}
	n := 0
	for _, st := range p.Subtasks {
		if st.Specialist == infraspec.TravelName {
			n++
		}
	}
	return 2*n >= p.Len()
}

const missingSystem = `分析用户的任务请求，判断完成任务还缺少哪些关键信息（如时间、地点、预算、具体要求）。
如果信息充足，只回答：无
否则用顿号分隔列出缺失的信息，不要解释。`

// LLMChecker asks the model what is missing.
type LLMChecker struct {
	Completer llm.Completer
}

// Missing implements MissingInfoChecker.
func (c LLMChecker) Missing(ctx context.Context, request string, _ intent.Intent, _ plan.TaskPlan) ([]string, error) {
	req := llm.Prompt(missingSystem, request)
	req.Temperature = 0.3
	resp, err := c.Completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" || strings.HasPrefix(answer, "无") || strings.EqualFold(answer, "none") {
		return nil, nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == '、' || r == ',' || r == '，' || r == '\n' || r == ';' || r == '；'
	}) {
		if part = strings.TrimSpace(strings.TrimLeft(part, "-*0123456789. ")); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// missingQuestion renders the clarification question for missing items.
func missingQuestion(missing []string) string {
	return fmt.Sprintf("%s%s", MissingQuestion, strings.Join(missing, "、"))
}
