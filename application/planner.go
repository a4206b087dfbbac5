package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// Draft is a proposed subtask before ids are final. DependsOn refers to
// other drafts' IDs within the same decomposition.
type Draft struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Decomposer splits a request into drafts. A single draft means the
// request is atomic.
type Decomposer interface {
	Decompose(ctx context.Context, request string, c assembly.Context) ([]Draft, error)
}

// PlannerConfig bounds decomposition.
type PlannerConfig struct {
	MaxSubtasks int
	MaxDepth    int
	Floor       float64
	// DefaultName is assigned when no specialist reaches Floor.
	DefaultName string
}

// Planner turns complex requests into acyclic task plans. It always
// returns a plan with at least one subtask.
type Planner struct {
	config     PlannerConfig
	decomposer Decomposer
	registry   specialist.Registry
}

// NewPlanner creates a planner. A nil decomposer uses HeuristicDecomposer.
func NewPlanner(config PlannerConfig, decomposer Decomposer, registry specialist.Registry) *Planner {
	if decomposer == nil {
		decomposer = HeuristicDecomposer{}
	}
	if config.MaxSubtasks <= 0 {
		config.MaxSubtasks = 10
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 5
	}
	if config.DefaultName == "" {
		config.DefaultName = "default"
	}
	return &Planner{config: config, decomposer: decomposer, registry: registry}
}

// mergedID names the catch-all subtask that absorbs excess subtasks.
const mergedID = "task-merged"

// Plan decomposes the request of a complex intent. Other intents get the
// whole request as one subtask. A cyclic decomposition falls back to a
// single-subtask plan.
func (p *Planner) Plan(ctx context.Context, in intent.Intent, c assembly.Context) plan.TaskPlan {
	request := c.Message
	if request == "" {
		request = in.RawText
	}
	if !in.IsComplex() {
		return p.single(request)
	}

	drafts := p.expand(ctx, request, c, 1)
	subtasks := make([]plan.Subtask, 0, len(drafts))
	for _, d := range drafts {
		subtasks = append(subtasks, plan.Subtask{
			ID:          d.ID,
			Description: d.Description,
			DependsOn:   d.DependsOn,
			Status:      plan.StatusPending,
		})
	}

	order, err := plan.TopologicalOrder(subtasks)
	if err != nil {
		logging.Warn().
			Add(logging.Component("planner")).
			Add(logging.ErrorField(err)).
			Msg("decomposition rejected, using single-subtask plan")
		fallback := p.single(request)
		fallback.Fallback = true
		return fallback
	}

	byID := make(map[string]plan.Subtask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}
	tp := plan.TaskPlan{Request: request, Subtasks: make(map[string]plan.Subtask, len(order))}

	keep := order
	var excess []string
	if len(order) > p.config.MaxSubtasks {
		keep = order[:p.config.MaxSubtasks-1]
		excess = order[p.config.MaxSubtasks-1:]
	}
	for _, id := range keep {
		st := byID[id]
		st.Specialist = p.assign(st)
		tp.Subtasks[id] = st
		tp.Order = append(tp.Order, id)
	}
	if len(excess) > 0 {
		parts := make([]string, 0, len(excess))
		for _, id := range excess {
			parts = append(parts, byID[id].Description)
		}
		merged := plan.Subtask{
			ID:          mergedID,
			Description: strings.Join(parts, "；"),
			DependsOn:   append([]string(nil), keep...),
			Status:      plan.StatusPending,
		}
		merged.Specialist = p.assign(merged)
		tp.Subtasks[mergedID] = merged
		tp.Order = append(tp.Order, mergedID)
		tp.Truncated = len(excess)
	}
	return tp
}

// expand decomposes recursively until drafts are atomic or depth runs out.
// Children of a split draft inherit its dependencies; dependents of a split
// draft wait for all of its children.
func (p *Planner) expand(ctx context.Context, request string, c assembly.Context, depth int) []Draft {
	drafts, err := p.decomposer.Decompose(ctx, request, c)
	if err != nil || len(drafts) == 0 {
		if err != nil {
			logging.Debug().
				Add(logging.Component("planner")).
				Add(logging.ErrorField(err)).
				Msg("decomposer failed, treating request as atomic")
		}
		return []Draft{{ID: "task-1", Description: request}}
	}
	if len(drafts) == 1 || depth >= p.config.MaxDepth {
		return drafts
	}

	var out []Draft
	children := make(map[string][]string, len(drafts))
	for _, d := range drafts {
		sub := p.expand(ctx, d.Description, c, depth+1)
		if len(sub) <= 1 {
			children[d.ID] = []string{d.ID}
			out = append(out, d)
			continue
		}
		prefix := d.ID + "."
		for _, s := range sub {
			s.ID = prefix + s.ID
			deps := make([]string, 0, len(s.DependsOn)+len(d.DependsOn))
			for _, dep := range s.DependsOn {
				deps = append(deps, prefix+dep)
			}
			deps = append(deps, d.DependsOn...)
			s.DependsOn = deps
			children[d.ID] = append(children[d.ID], s.ID)
			out = append(out, s)
		}
	}
	for i := range out {
		var deps []string
		for _, dep := range out[i].DependsOn {
			if ids, ok := children[dep]; ok {
				deps = append(deps, ids...)
				continue
			}
			deps = append(deps, dep)
		}
		out[i].DependsOn = deps
	}
	return out
}

func (p *Planner) single(request string) plan.TaskPlan {
	tp := plan.Single(request, "")
	for id, st := range tp.Subtasks {
		st.Specialist = p.assign(st)
		tp.Subtasks[id] = st
	}
	return tp
}

// assign picks the best-scoring specialist, or the default name when none
// reaches the floor. The coordinator re-scores at dispatch.
func (p *Planner) assign(st plan.Subtask) string {
	if p.registry == nil {
		return p.config.DefaultName
	}
	s, _, err := specialist.Select(p.registry.All(), st, p.config.Floor)
	if err != nil {
		return p.config.DefaultName
	}
	return s.Name()
}

var (
	clauseSplit    = regexp.MustCompile(`[，,；;。\n]+|然后|并且|接着|之后|\band then\b|\bthen\b`)
	numberedItem   = regexp.MustCompile(`(?m)^\s*(?:\d+[.、)]|[-*•])\s*`)
	sequentialCues = []string{"然后", "接着", "之后", "再", "最后", "then", "after", "finally"}
	aggregateCues  = []string{"预算", "总结", "汇总", "总计", "费用", "budget", "summary", "summarize", "total"}
)

// HeuristicDecomposer splits on list items, clause punctuation and
// sequencing words. A clause that follows a sequencing word depends on the
// one before it; a clause about budget or summary depends on every clause
// before it. Fragments shorter than two runes are folded into their
// neighbor.
type HeuristicDecomposer struct{}

// Decompose implements Decomposer.
func (HeuristicDecomposer) Decompose(_ context.Context, request string, _ assembly.Context) ([]Draft, error) {
	text := strings.TrimSpace(request)
	if text == "" {
		return nil, errors.New("empty request")
	}

	var pieces []string
	if items := numberedItem.Split(text, -1); len(items) > 2 {
		pieces = items
	} else {
		pieces = splitKeepingCues(text)
	}

	var drafts []Draft
	for _, raw := range pieces {
		piece := strings.TrimSpace(raw)
		sequential := hasPrefixAny(piece, sequentialCues)
		piece = strings.TrimSpace(trimPrefixes(piece, sequentialCues))
		if len([]rune(piece)) < 2 {
			if len(drafts) > 0 && piece != "" {
				drafts[len(drafts)-1].Description += piece
			}
			continue
		}
		d := Draft{ID: fmt.Sprintf("task-%d", len(drafts)+1), Description: piece}
		switch {
		case len(drafts) == 0:
		case hasAny(piece, aggregateCues):
			for _, prev := range drafts {
				d.DependsOn = append(d.DependsOn, prev.ID)
			}
		case sequential:
			d.DependsOn = []string{drafts[len(drafts)-1].ID}
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 {
		return []Draft{{ID: "task-1", Description: text}}, nil
	}
	if len(drafts) == 1 {
		drafts[0].Description = text
	}
	return drafts, nil
}

// splitKeepingCues splits on clause separators and keeps sequencing words
// at the head of the clause they introduce.
func splitKeepingCues(text string) []string {
	var out []string
	start := 0
	for _, loc := range clauseSplit.FindAllStringIndex(text, -1) {
		if piece := strings.TrimSpace(text[start:loc[0]]); piece != "" {
			out = append(out, piece)
		}
		start = loc[1]
		if hasAny(text[loc[0]:loc[1]], sequentialCues) {
			start = loc[0]
		}
	}
	if piece := strings.TrimSpace(text[start:]); piece != "" {
		out = append(out, piece)
	}
	return out
}

func hasAny(text string, cues []string) bool {
	lower := strings.ToLower(text)
	for _, c := range cues {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func hasPrefixAny(text string, cues []string) bool {
	lower := strings.ToLower(text)
	for _, c := range cues {
		if strings.HasPrefix(lower, c) {
			return true
		}
	}
	return false
}

func trimPrefixes(text string, cues []string) string {
	lower := strings.ToLower(text)
	for _, c := range cues {
		if strings.HasPrefix(lower, c) {
			return text[len(c):]
		}
	}
	return text
}

const decomposeSystem = `将用户的任务分解为可以由单个专家直接完成的子任务，返回JSON：
{"subtasks":[{"id":"1","description":"子任务描述","depends_on":["依赖的子任务id"]}]}
如果任务无需分解，只返回一个子任务。依赖关系不能形成环。`

var decomposeSchema = json.RawMessage(`{"type":"object","required":["subtasks"]}`)

// LLMDecomposer asks the model for a decomposition and falls back to the
// heuristic one when the model fails or answers with nothing usable.
// Model ids are replaced with fresh ones.
type LLMDecomposer struct {
	Completer llm.Completer
	Fallback  Decomposer
}

// Decompose implements Decomposer.
func (d LLMDecomposer) Decompose(ctx context.Context, request string, c assembly.Context) ([]Draft, error) {
	fallback := d.Fallback
	if fallback == nil {
		fallback = HeuristicDecomposer{}
	}

	req := llm.Prompt(decomposeSystem, request)
	req.Temperature = 0.3
	req.Schema = decomposeSchema
	resp, err := d.Completer.Complete(ctx, req)
	if err != nil {
		return fallback.Decompose(ctx, request, c)
	}
	var out struct {
		Subtasks []Draft `json:"subtasks"`
	}
	if err := llm.Decode(resp.Content, decomposeSchema, &out); err != nil || len(out.Subtasks) == 0 {
		return fallback.Decompose(ctx, request, c)
	}

	ids := make(map[string]string, len(out.Subtasks))
	for _, s := range out.Subtasks {
		ids[s.ID] = "task-" + uuid.NewString()[:8]
	}
	drafts := make([]Draft, 0, len(out.Subtasks))
	for _, s := range out.Subtasks {
		if strings.TrimSpace(s.Description) == "" {
			continue
		}
		draft := Draft{ID: ids[s.ID], Description: s.Description}
		for _, dep := range s.DependsOn {
			mapped, ok := ids[dep]
			if !ok {
				logging.Debug().
					Add(logging.Component("planner")).
					Add(logging.ErrorField(fmt.Errorf("%w: %s depends on %s", plan.ErrUnknownDependency, s.ID, dep))).
					Msg("model decomposition rejected")
				return fallback.Decompose(ctx, request, c)
			}
			draft.DependsOn = append(draft.DependsOn, mapped)
		}
		drafts = append(drafts, draft)
	}
	if len(drafts) == 1 {
		drafts[0].Description = request
	}
	return drafts, nil
}
