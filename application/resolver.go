package application

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// ToolClassifier is the optional model-based signal consulted when no rule
// fires.
type ToolClassifier interface {
	Classify(ctx context.Context, text string, in intent.Intent) ([]tooling.Kind, error)
}

// Resolver decides which capability ports a turn needs. Given identical
// text and intent it returns an identical decision.
type Resolver struct {
	rules     tooling.RuleTable
	available map[tooling.Kind]bool
	model     ToolClassifier
}

// NewResolver creates a resolver over the rule table. available lists the
// kinds that have a bound port; model may be nil.
func NewResolver(rules tooling.RuleTable, available []tooling.Kind, model ToolClassifier) *Resolver {
	if rules == nil {
		rules = tooling.DefaultRules()
	}
	set := make(map[tooling.Kind]bool, len(available))
	for _, k := range available {
		set[k] = true
	}
	return &Resolver{rules: rules, available: set, model: model}
}

// Resolve evaluates the rules and drops triggers for unbound ports. Dropped
// triggers stay on the decision.
func (r *Resolver) Resolve(ctx context.Context, text string, in intent.Intent) tooling.Decision {
	triggers := r.rules.Evaluate(text, in)
	if len(triggers) == 0 && r.model != nil {
		triggers = r.consult(ctx, text, in)
	}

	var d tooling.Decision
	for _, t := range triggers {
		if r.available[t.Kind] {
			d.Triggers = append(d.Triggers, t)
			continue
		}
		d.Dropped = append(d.Dropped, t)
		logging.Debug().
			Add(logging.Component("resolver")).
			Add(logging.ToolKind(t.Kind)).
			Add(logging.Reason(t.Reason)).
			Msg("tool dropped: no port bound")
	}
	tooling.SortTriggers(d.Triggers)
	tooling.SortTriggers(d.Dropped)
	return d
}

func (r *Resolver) consult(ctx context.Context, text string, in intent.Intent) []tooling.Trigger {
	kinds, err := r.model.Classify(ctx, text, in)
	if err != nil {
		logging.Debug().
			Add(logging.Component("resolver")).
			Add(logging.ErrorField(err)).
			Msg("model tool classifier failed")
		return nil
	}
	seen := make(map[tooling.Kind]bool)
	var out []tooling.Trigger
	for _, k := range kinds {
		if !k.IsValid() || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, tooling.Trigger{Kind: k, Reason: "model", Priority: tooling.PriorityModel})
	}
	tooling.SortTriggers(out)
	return out
}

const toolSystem = `判断回答用户输入前需要调用哪些工具，返回JSON：{"tools":["memory","knowledge","web_search","command_tool"]}
memory：引用之前的对话；knowledge：需要查阅文档或知识库；web_search：需要最新信息；command_tool：需要读取文件、执行命令或计算。
不需要工具时返回空数组。`

var toolSchema = json.RawMessage(`{"type":"object","required":["tools"]}`)

// LLMToolClassifier asks the model which ports a message needs.
type LLMToolClassifier struct {
	Completer llm.Completer
}

// Classify implements ToolClassifier.
func (c LLMToolClassifier) Classify(ctx context.Context, text string, _ intent.Intent) ([]tooling.Kind, error) {
	req := llm.Prompt(toolSystem, text)
	req.Temperature = 0
	req.Schema = toolSchema
	resp, err := c.Completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []tooling.Kind `json:"tools"`
	}
	if err := llm.Decode(resp.Content, toolSchema, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}
