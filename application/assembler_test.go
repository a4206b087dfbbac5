package application_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/fake"
)

func history(n int) *conversation.State {
	st := conversation.New("c1", "u1")
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		st.Append(conversation.RoleUser, strings.Repeat("旧", 10)+string(rune('a'+i)), at.Add(time.Duration(i)*time.Minute))
	}
	return st
}

func TestAssembler_RetrievesFlaggedKindsOnly(t *testing.T) {
	t.Parallel()

	tools := fake.NewDispatcher(map[tooling.Kind]string{
		tooling.KindMemory:    "上次讨论了项目A",
		tooling.KindKnowledge: "项目A文档",
	})
	a := application.NewAssembler(application.AssemblerConfig{Identity: "助手", HistoryWindow: 5, MemoryLimit: 3, KnowledgeTopK: 2}, tools)

	d := tooling.Decision{Triggers: []tooling.Trigger{{Kind: tooling.KindMemory, Priority: tooling.PriorityKeyword}}}
	text := "上次的项目"
	c, calls := a.Assemble(context.Background(), history(2), text, intent.New(intent.TypeQuestionAnswer, 0.9, nil, text), d)

	require.Len(t, calls, 1)
	assert.Equal(t, tooling.KindMemory, calls[0].Kind)
	assert.Len(t, c.BySource(assembly.SourceMemory), 1)
	assert.Empty(t, c.BySource(assembly.SourceKnowledge))
	assert.Len(t, c.History, 2)
	assert.Equal(t, "助手", c.Identity)
	assert.Equal(t, text, c.Message)

	sent := tools.Calls()
	require.Len(t, sent, 1)
	assert.Equal(t, 3, sent[0].Args.Limit)
	assert.Equal(t, "u1", sent[0].Args.UserID)
}

func TestAssembler_DoesNotMutateState(t *testing.T) {
	t.Parallel()

	st := history(3)
	st.Preferences["likes"] = "川菜"
	before := st.Clone()

	a := application.NewAssembler(application.AssemblerConfig{HistoryWindow: 2, Budget: 5}, nil)
	c, _ := a.Assemble(context.Background(), st, "你好", intent.Intent{}, tooling.Decision{})
	c.Preferences["likes"] = "粤菜"

	assert.Equal(t, before, st)
}

func TestFit_DropOrder(t *testing.T) {
	t.Parallel()

	c := assembly.Context{
		Identity: "身份",
		Message:  "当前消息",
		History: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "最早的一轮对话内容"},
			{Role: conversation.RoleAssistant, Content: "较新的一轮对话内容"},
		},
		Snippets: []assembly.Snippet{
			{Source: assembly.SourceKnowledge, Content: "高相关片段内容", Relevance: 0.9},
			{Source: assembly.SourceMemory, Content: "低相关片段内容", Relevance: 0.1},
		},
		Preferences: map[string]string{"likes": "川菜"},
	}
	full := application.Fit(c).Used

	// Room for everything but the oldest turn.
	c.Budget = full - textmatch.EstimateTokens(c.History[0].Content)
	got := application.Fit(c)
	require.Len(t, got.History, 1)
	assert.Equal(t, "较新的一轮对话内容", got.History[0].Content)
	assert.Len(t, got.Snippets, 2)
	assert.Equal(t, 1, got.Dropped)

	// Room only for the fixed parts and the best snippet.
	c.Budget = textmatch.EstimateTokens("身份") + textmatch.EstimateTokens("当前消息") +
		textmatch.EstimateTokens("likes") + textmatch.EstimateTokens("川菜") +
		textmatch.EstimateTokens("高相关片段内容")
	got = application.Fit(c)
	assert.Empty(t, got.History)
	require.Len(t, got.Snippets, 1)
	assert.Equal(t, 0.9, got.Snippets[0].Relevance)
	assert.LessOrEqual(t, got.Used, got.Budget)

	// Nothing fits: identity, message and preferences still stay.
	c.Budget = 1
	got = application.Fit(c)
	assert.Empty(t, got.History)
	assert.Empty(t, got.Snippets)
	assert.Equal(t, "身份", got.Identity)
	assert.Equal(t, "当前消息", got.Message)
	assert.Equal(t, "川菜", got.Preferences["likes"])
	assert.Equal(t, 4, got.Dropped)
}
