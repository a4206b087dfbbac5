package tooling

import (
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/intent"
)

// Signal priorities recorded on triggers.
const (
	PriorityKeyword = 10
	PriorityIntent  = 5
	PriorityModel   = 1
)

// Rule maps a content or intent signal to a capability kind. A rule fires when
// any keyword occurs in the text, or when the intent type is listed.
type Rule struct {
	Kind     Kind
	Keywords []string
	Intents  []intent.Type
	Priority int
}

// Match returns the reason the rule fires, or false.
func (r Rule) Match(text string, in intent.Intent) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return "keyword: " + kw, true
		}
	}
	for _, t := range r.Intents {
		if in.Type == t {
			return "intent: " + string(t), true
		}
	}
	return "", false
}

// RuleTable is an ordered, declarative set of trigger rules.
type RuleTable []Rule

// DefaultRules returns the built-in trigger table.
func DefaultRules() RuleTable {
	return RuleTable{
		{Kind: KindMemory, Keywords: []string{"记住", "上次", "之前", "remember", "last time", "earlier"}, Priority: PriorityKeyword},
		{Kind: KindKnowledge, Keywords: []string{"文档", "资料", "知识库", "document", "knowledge base"}, Priority: PriorityKeyword},
		{Kind: KindWebSearch, Keywords: []string{"搜索", "查询", "最新", "search", "latest", "news"}, Priority: PriorityKeyword},
		{Kind: KindCommandTool, Keywords: []string{"文件", "执行", "命令", "计算", "file", "execute", "command", "calculate"}, Priority: PriorityKeyword},
		{Kind: KindMemory, Intents: []intent.Type{intent.TypeComplexTask}, Priority: PriorityIntent},
		{Kind: KindKnowledge, Intents: []intent.Type{intent.TypeComplexTask}, Priority: PriorityIntent},
	}
}

// Evaluate applies the table and returns one trigger per fired kind in
// invocation order. The first rule to fire for a kind wins.
func (t RuleTable) Evaluate(text string, in intent.Intent) []Trigger {
	seen := make(map[Kind]bool)
	var triggers []Trigger
	for _, r := range t {
		if seen[r.Kind] {
			continue
		}
		reason, ok := r.Match(text, in)
		if !ok {
			continue
		}
		seen[r.Kind] = true
		triggers = append(triggers, Trigger{Kind: r.Kind, Reason: reason, Priority: r.Priority})
	}
	SortTriggers(triggers)
	return triggers
}
