package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/domain/search"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/domain/tool"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// Ports are the optional capability bindings. A nil port makes its kind
// unavailable.
type Ports struct {
	Memory    memory.Store
	Knowledge knowledge.Searcher
	Search    search.Searcher
	Tools     tool.Invoker
}

// Available lists the kinds with a bound port, in invocation order.
func (p Ports) Available() []tooling.Kind {
	var out []tooling.Kind
	if p.Memory != nil {
		out = append(out, tooling.KindMemory)
	}
	if p.Knowledge != nil {
		out = append(out, tooling.KindKnowledge)
	}
	if p.Search != nil {
		out = append(out, tooling.KindWebSearch)
	}
	if p.Tools != nil {
		out = append(out, tooling.KindCommandTool)
	}
	return out
}

// errNoCommand marks a command_tool request no command could be derived for.
var errNoCommand = errors.New("no command recognized")

func (p Ports) call(ctx context.Context, kind tooling.Kind, args tooling.Args) (tooling.Call, error) {
	switch kind {
	case tooling.KindMemory:
		return p.queryMemory(ctx, args)
	case tooling.KindKnowledge:
		return p.searchKnowledge(ctx, args)
	case tooling.KindWebSearch:
		return p.searchWeb(ctx, args)
	case tooling.KindCommandTool:
		return p.runCommands(ctx, args)
	default:
		return tooling.Call{Kind: kind}, fmt.Errorf("%w: %s", tooling.ErrToolUnavailable, kind)
	}
}

func (p Ports) queryMemory(ctx context.Context, args tooling.Args) (tooling.Call, error) {
	call := tooling.Call{Kind: tooling.KindMemory, Name: "memory.query"}
	if p.Memory == nil {
		return call, tooling.ErrToolUnavailable
	}
	records, err := p.Memory.Query(ctx, memory.Query{Text: args.Query, UserID: args.UserID, Limit: args.Limit})
	if err != nil {
		return call, err
	}
	var lines []string
	for _, r := range records {
		call.Items = append(call.Items, tooling.Item{
			Ref:     r.ID,
			Content: r.Content,
			Score:   textmatch.Score(args.Query, r.Content),
		})
		lines = append(lines, r.Content)
	}
	call.Output = strings.Join(lines, "\n")
	call.Summary = fmt.Sprintf("memory: %d records", len(records))
	return call, nil
}

func (p Ports) searchKnowledge(ctx context.Context, args tooling.Args) (tooling.Call, error) {
	call := tooling.Call{Kind: tooling.KindKnowledge, Name: "knowledge.search"}
	if p.Knowledge == nil {
		return call, tooling.ErrToolUnavailable
	}
	hits, err := p.Knowledge.Search(ctx, args.Query, args.Limit)
	if err != nil {
		return call, err
	}
	var lines []string
	for _, h := range hits {
		call.Items = append(call.Items, tooling.Item{Ref: h.Chunk.ID, Content: h.Chunk.Content, Score: h.Score})
		lines = append(lines, h.Chunk.Content)
	}
	call.Output = strings.Join(lines, "\n")
	call.Summary = fmt.Sprintf("knowledge: %d chunks", len(hits))
	return call, nil
}

func (p Ports) searchWeb(ctx context.Context, args tooling.Args) (tooling.Call, error) {
	call := tooling.Call{Kind: tooling.KindWebSearch, Name: "web_search.query"}
	if p.Search == nil {
		return call, tooling.ErrToolUnavailable
	}
	results, err := p.Search.Query(ctx, args.Query)
	if err != nil {
		return call, err
	}
	if args.Limit > 0 && len(results) > args.Limit {
		results = results[:args.Limit]
	}
	var sb strings.Builder
	for i, r := range results {
		// Rank order is the backend's relevance.
		score := 1 / float64(i+2)
		content := r.Title
		if r.Snippet != "" {
			content += "\n" + r.Snippet
		}
		call.Items = append(call.Items, tooling.Item{Ref: r.URL, Content: content, Score: score})
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n", i+1, r.Title, r.Snippet, r.URL)
	}
	call.Output = strings.TrimSpace(sb.String())
	call.Summary = fmt.Sprintf("web_search %q: %d results", args.Query, len(results))
	return call, nil
}

// runCommands invokes the named tool, or every command derived from the
// query. Outputs are joined in invocation order.
func (p Ports) runCommands(ctx context.Context, args tooling.Args) (tooling.Call, error) {
	call := tooling.Call{Kind: tooling.KindCommandTool}
	if p.Tools == nil {
		return call, tooling.ErrToolUnavailable
	}
	commands := []tooling.Args{args}
	if args.Name == "" {
		commands = tooling.CommandsFor(args.Query)
	}
	if len(commands) == 0 {
		call.Summary = "command_tool: no command recognized"
		return call, errNoCommand
	}

	var names, outputs []string
	for _, cmd := range commands {
		input := json.RawMessage(cmd.Input)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		res, err := p.Tools.Invoke(ctx, cmd.Name, input)
		names = append(names, cmd.Name)
		if err != nil {
			call.Name = strings.Join(names, ",")
			return call, err
		}
		out := res.OutputString()
		outputs = append(outputs, out)
		call.Items = append(call.Items, tooling.Item{Ref: cmd.Name, Content: cmd.Name + ": " + out, Score: 1})
	}
	call.Name = strings.Join(names, ",")
	call.Output = strings.Join(outputs, "\n")
	call.Summary = fmt.Sprintf("command_tool %s", call.Name)
	return call, nil
}
