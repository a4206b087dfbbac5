package application

import (
	"context"
	"sort"

	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// AssemblerConfig bounds the assembled context.
type AssemblerConfig struct {
	Identity      string
	HistoryWindow int
	Budget        int
	MemoryLimit   int
	KnowledgeTopK int
}

// Assembler builds the bounded context for a turn. It never mutates the
// conversation state.
type Assembler struct {
	config AssemblerConfig
	tools  specialist.Dispatcher
}

// NewAssembler creates an assembler retrieving through tools.
func NewAssembler(config AssemblerConfig, tools specialist.Dispatcher) *Assembler {
	return &Assembler{config: config, tools: tools}
}

// Assemble collects recent history, preferences and, when the decision
// flags them, memory and knowledge. Retrieval calls are returned in
// invocation order.
func (a *Assembler) Assemble(ctx context.Context, state *conversation.State, text string, in intent.Intent, d tooling.Decision) (assembly.Context, []tooling.Call) {
	c := assembly.Context{
		Identity: a.config.Identity,
		Message:  text,
		Budget:   a.config.Budget,
	}
	if state != nil {
		c.History = state.Recent(a.config.HistoryWindow)
		if len(state.Preferences) > 0 {
			c.Preferences = make(map[string]string, len(state.Preferences))
			for k, v := range state.Preferences {
				c.Preferences[k] = v
			}
		}
	}

	var calls []tooling.Call
	args := tooling.Args{Query: text}
	if state != nil {
		args.ConversationID = state.ID
		args.UserID = state.UserID
	}
	if d.Has(tooling.KindMemory) && a.tools != nil {
		args.Limit = a.config.MemoryLimit
		calls = append(calls, a.tools.DispatchTool(ctx, tooling.KindMemory, args))
	}
	if d.Has(tooling.KindKnowledge) && a.tools != nil {
		args.Limit = a.config.KnowledgeTopK
		calls = append(calls, a.tools.DispatchTool(ctx, tooling.KindKnowledge, args))
	}

	return a.Extend(c, calls...), calls
}

// Extend adds the items of successful calls as snippets and re-applies the
// budget.
func (a *Assembler) Extend(c assembly.Context, calls ...tooling.Call) assembly.Context {
	for _, call := range calls {
		if call.Failed() {
			continue
		}
		for _, item := range call.Items {
			c.Snippets = append(c.Snippets, assembly.Snippet{
				Source:    assembly.Source(call.Kind),
				Ref:       item.Ref,
				Content:   item.Content,
				Relevance: item.Score,
			})
		}
	}
	return Fit(c)
}

// Fit enforces the token budget. Oldest history goes first, then the
// lowest-relevance snippets. Identity, message and preferences are never
// dropped. A zero budget disables the bound.
func Fit(c assembly.Context) assembly.Context {
	c.History = append([]conversation.Turn(nil), c.History...)
	c.Snippets = append([]assembly.Snippet(nil), c.Snippets...)
	c.Used = usage(c)
	if c.Budget <= 0 {
		return c
	}

	for c.Used > c.Budget && len(c.History) > 0 {
		c.Used -= textmatch.EstimateTokens(c.History[0].Content)
		c.History = c.History[1:]
		c.Dropped++
	}
	if c.Used <= c.Budget {
		return c
	}

	order := make([]int, len(c.Snippets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.Snippets[order[i]].Relevance < c.Snippets[order[j]].Relevance
	})
	drop := make(map[int]bool)
	for _, idx := range order {
		if c.Used <= c.Budget {
			break
		}
		drop[idx] = true
		c.Used -= textmatch.EstimateTokens(c.Snippets[idx].Content)
		c.Dropped++
	}
	kept := c.Snippets[:0]
	for i, s := range c.Snippets {
		if !drop[i] {
			kept = append(kept, s)
		}
	}
	c.Snippets = kept
	return c
}

func usage(c assembly.Context) int {
	n := textmatch.EstimateTokens(c.Identity) + textmatch.EstimateTokens(c.Message)
	for _, t := range c.History {
		n += textmatch.EstimateTokens(t.Content)
	}
	for _, s := range c.Snippets {
		n += textmatch.EstimateTokens(s.Content)
	}
	for k, v := range c.Preferences {
		n += textmatch.EstimateTokens(k) + textmatch.EstimateTokens(v)
	}
	return n
}
