// Package tooling models which capability ports a turn needs and the calls made to them.
package tooling

import (
	"errors"
	"sort"
)

// Kind identifies an optional capability port.
type Kind string

const (
	KindMemory      Kind = "memory"
	KindKnowledge   Kind = "knowledge"
	KindWebSearch   Kind = "web_search"
	KindCommandTool Kind = "command_tool"
)

// ErrToolUnavailable indicates a triggered kind has no bound port.
var ErrToolUnavailable = errors.New("tool unavailable")

// invocationOrder is the order in which triggered kinds must run. Later kinds
// consume earlier kinds' output as context.
var invocationOrder = map[Kind]int{
	KindMemory:      0,
	KindKnowledge:   1,
	KindWebSearch:   2,
	KindCommandTool: 3,
}

// Rank returns the invocation position of the kind. Unknown kinds sort last.
func (k Kind) Rank() int {
	if r, ok := invocationOrder[k]; ok {
		return r
	}
	return len(invocationOrder)
}

// IsValid returns true for recognized kinds.
func (k Kind) IsValid() bool {
	_, ok := invocationOrder[k]
	return ok
}

// AllKinds returns every kind in invocation order.
func AllKinds() []Kind {
	return []Kind{KindMemory, KindKnowledge, KindWebSearch, KindCommandTool}
}

// Trigger records why a kind was selected.
type Trigger struct {
	Kind     Kind   `json:"kind"`
	Reason   string `json:"reason"`
	Priority int    `json:"priority"`
}

// Decision is the per-turn set of capability ports to invoke. Dropped holds
// triggers whose port is not registered; they are kept for observability.
type Decision struct {
	Triggers []Trigger `json:"triggers"`
	Dropped  []Trigger `json:"dropped,omitempty"`
}

// Has reports whether the decision will invoke the kind.
func (d Decision) Has(k Kind) bool {
	for _, t := range d.Triggers {
		if t.Kind == k {
			return true
		}
	}
	return false
}

// Kinds returns the kinds to invoke in invocation order.
func (d Decision) Kinds() []Kind {
	kinds := make([]Kind, 0, len(d.Triggers))
	for _, t := range d.Triggers {
		kinds = append(kinds, t.Kind)
	}
	return kinds
}

// Trigger returns the trigger for a kind.
func (d Decision) Trigger(k Kind) (Trigger, bool) {
	for _, t := range d.Triggers {
		if t.Kind == k {
			return t, true
		}
	}
	return Trigger{}, false
}

// IsEmpty reports whether nothing is to be invoked.
func (d Decision) IsEmpty() bool {
	return len(d.Triggers) == 0
}

// SortTriggers orders triggers by invocation rank. The sort is stable so equal
// ranks keep rule order.
func SortTriggers(triggers []Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Kind.Rank() < triggers[j].Kind.Rank()
	})
}

// Item is one retrieved piece of a call's output with its relevance.
type Item struct {
	Ref     string
	Content string
	Score   float64
}

// Call is one invocation of a capability port made during a turn.
type Call struct {
	Kind    Kind   `json:"tool_kind"`
	Name    string `json:"name,omitempty"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
	Output  string `json:"-"`
	Items   []Item `json:"-"`
}

// Failed reports whether the call ended in an error.
func (c Call) Failed() bool {
	return c.Error != ""
}

// Args carries the input for one capability call. Query is used by memory,
// knowledge and web_search; Name and Input select a command tool.
type Args struct {
	Query          string `json:"query,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Name           string `json:"name,omitempty"`
	Input          []byte `json:"input,omitempty"`
}
