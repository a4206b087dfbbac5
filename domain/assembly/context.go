// Package assembly provides the bounded context handed to specialists.
package assembly

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

// Source names where a snippet came from.
type Source string

const (
	SourceMemory     Source = "memory"
	SourceKnowledge  Source = "knowledge"
	SourceWebSearch  Source = "web_search"
	SourceCommand    Source = "command_tool"
	SourceDependency Source = "dependency"
)

// Snippet is a piece of retrieved material with its relevance to the message.
type Snippet struct {
	Source    Source  `json:"source"`
	Ref       string  `json:"ref,omitempty"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// Context is the bounded material assembled for one turn. Identity and
// Message are never truncated.
type Context struct {
	Identity    string              `json:"identity"`
	Message     string              `json:"message"`
	History     []conversation.Turn `json:"history,omitempty"`
	Snippets    []Snippet           `json:"snippets,omitempty"`
	Preferences map[string]string   `json:"preferences,omitempty"`
	Budget      int                 `json:"budget"`
	Used        int                 `json:"used"`
	Dropped     int                 `json:"dropped,omitempty"`
}

// BySource returns the snippets from one source in stored order.
func (c Context) BySource(src Source) []Snippet {
	var out []Snippet
	for _, s := range c.Snippets {
		if s.Source == src {
			out = append(out, s)
		}
	}
	return out
}

// Render formats the context as a prompt body.
func (c Context) Render() string {
	var sb strings.Builder
	if c.Identity != "" {
		sb.WriteString(c.Identity)
		sb.WriteString("\n\n")
	}
	if len(c.Preferences) > 0 {
		sb.WriteString("## Preferences\n")
		for _, k := range sortedKeys(c.Preferences) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, c.Preferences[k]))
		}
		sb.WriteString("\n")
	}
	if len(c.History) > 0 {
		sb.WriteString("## History\n")
		for _, t := range c.History {
			sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, t.Content))
		}
		sb.WriteString("\n")
	}
	if len(c.Snippets) > 0 {
		sb.WriteString("## Reference\n")
		for i, s := range c.Snippets {
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, s.Source, s.Content))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Message\n")
	sb.WriteString(c.Message)
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
