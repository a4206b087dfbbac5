package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/infrastructure/fake"
)

func TestReconcile_ComplementaryResultsConcatenate(t *testing.T) {
	t.Parallel()

	tp := planOf(plan.Subtask{ID: "a"}, plan.Subtask{ID: "b"})
	got := application.Reconcile(tp, map[string]plan.Result{
		"b": {SubtaskID: "b", Content: "hotel options near the station", Confidence: 0.6},
		"a": {SubtaskID: "a", Content: "three day itinerary for beijing", Confidence: 0.8},
	})

	require.Len(t, got.Kept, 2)
	assert.Equal(t, "three day itinerary for beijing\n\nhotel options near the station", got.Content)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
	assert.Empty(t, got.Alternatives)
}

func TestReconcile_OverlapKeepsMoreConfident(t *testing.T) {
	t.Parallel()

	tp := planOf(plan.Subtask{ID: "a"}, plan.Subtask{ID: "b"})
	got := application.Reconcile(tp, map[string]plan.Result{
		"a": {SubtaskID: "a", Content: "visit the forbidden city first", Confidence: 0.5},
		"b": {SubtaskID: "b", Content: "visit the forbidden city first today", Confidence: 0.9},
	})

	require.Len(t, got.Kept, 1)
	assert.Equal(t, "b", got.Kept[0].SubtaskID)
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, "a", got.Alternatives[0].SubtaskID)
	assert.Equal(t, "visit the forbidden city first today", got.Content)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestReconcile_FailuresReduceConfidence(t *testing.T) {
	t.Parallel()

	tp := planOf(plan.Subtask{ID: "a"}, plan.Subtask{ID: "b"}, plan.Subtask{ID: "c"})
	got := application.Reconcile(tp, map[string]plan.Result{
		"a": {SubtaskID: "a", Content: "budget breakdown", Confidence: 0.9},
		"b": {SubtaskID: "b", Content: "（子任务「b」未能完成）", Error: "subtask timeout"},
		"c": {SubtaskID: "c", Content: "packing list", Confidence: 0.9},
	})

	require.Len(t, got.Failed, 1)
	assert.InDelta(t, 0.6, got.Confidence, 1e-9)
	assert.Contains(t, got.Content, "budget breakdown")
	assert.Contains(t, got.Content, "packing list")
	assert.Contains(t, got.Content, "（部分子任务未完成：b）")
}

func TestReconcile_AllFailed(t *testing.T) {
	t.Parallel()

	tp := planOf(plan.Subtask{ID: "a"})
	got := application.Reconcile(tp, map[string]plan.Result{
		"a": {SubtaskID: "a", Error: "boom"},
	})

	assert.Empty(t, got.Kept)
	assert.Empty(t, got.Content)
	assert.Zero(t, got.Confidence)
}

func TestLLMSummarizer(t *testing.T) {
	t.Parallel()

	r := application.Reconciled{
		Kept:   []plan.Result{{SubtaskID: "a", Content: "甲"}, {SubtaskID: "b", Content: "乙"}},
		Failed: []plan.Result{{SubtaskID: "c", Error: "超时"}},
	}

	model := fake.NewLLM(fake.Step{Content: "  汇总报告  "})
	got, err := application.LLMSummarizer{Completer: model}.Summarize(context.Background(), "请求", r)
	require.NoError(t, err)
	assert.Equal(t, "汇总报告", got)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	assert.Contains(t, prompt, "[a]")
	assert.Contains(t, prompt, "[c] 未完成：超时")

	_, err = application.LLMSummarizer{Completer: fake.NewLLM(fake.Step{Err: llm.ErrUpstream})}.Summarize(context.Background(), "请求", r)
	assert.True(t, errors.Is(err, llm.ErrUpstream))

	_, err = application.LLMSummarizer{Completer: fake.NewLLM(fake.Step{Content: " "})}.Summarize(context.Background(), "请求", r)
	assert.ErrorIs(t, err, llm.ErrValidation)
}
