package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/infrastructure/fake"
)

func TestClassifier_Keyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		want     intent.Type
		confident bool
	}{
		{"travel plan", "帮我制定一个三天的北京旅行计划，预算3000元", intent.TypeComplexTask, true},
		{"memory question", "我们上次讨论的项目进展如何？", intent.TypeQuestionAnswer, true},
		{"greeting", "你好，谢谢", intent.TypeSimpleChat, true},
		{"unclassifiable", "北京", intent.TypeSimpleChat, false},
		{"empty", "", intent.TypeSimpleChat, false},
	}

	c := application.NewClassifier(0.7)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(context.Background(), tt.text, nil)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.text, got.RawText)
			assert.Equal(t, tt.confident, !got.Uncertain(0.7), "confidence %.2f", got.Confidence)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassifier_TieLowersConfidence(t *testing.T) {
	t.Parallel()

	// One complex marker and one question marker.
	got := application.KeywordStrategy{}
	in, err := got.Score(context.Background(), "制定什么", nil)
	require.NoError(t, err)
	assert.Equal(t, intent.TypeComplexTask, in.Type)
	assert.InDelta(t, 0.55, in.Confidence, 1e-9)
}

func TestClassifier_Entities(t *testing.T) {
	t.Parallel()

	in := application.NewClassifier(0.7).Classify(context.Background(), "帮我制定一个三天的北京旅行计划，预算3000元", nil)

	duration, _ := in.Entity("duration")
	budget, _ := in.Entity("budget")
	destination, _ := in.Entity("destination")
	assert.Equal(t, "三天", duration)
	assert.Equal(t, "3000元", budget)
	assert.Equal(t, "北京", destination)
}

func TestClassifier_LLMIsSecondary(t *testing.T) {
	t.Parallel()

	model := fake.NewLLM(fake.Step{Content: `{"type":"question_answer","confidence":0.85,"entities":{"topic":"量子"}}`})
	c := application.NewClassifier(0.7,
		application.KeywordStrategy{},
		application.LLMStrategy{Completer: model},
	)

	// Keyword strategy is confident: the model is never asked.
	in := c.Classify(context.Background(), "你好，谢谢", nil)
	assert.Equal(t, intent.TypeSimpleChat, in.Type)
	assert.Zero(t, model.Calls())

	// Keyword strategy has nothing: the model decides.
	in = c.Classify(context.Background(), "量子纠缠", nil)
	assert.Equal(t, intent.TypeQuestionAnswer, in.Type)
	assert.InDelta(t, 0.85, in.Confidence, 1e-9)
	topic, _ := in.Entity("topic")
	assert.Equal(t, "量子", topic)
}

func TestClassifier_NeverFails(t *testing.T) {
	t.Parallel()

	model := fake.NewLLM(fake.Step{Err: llm.ErrUpstream})
	c := application.NewClassifier(0.7, application.LLMStrategy{Completer: model})

	in := c.Classify(context.Background(), "随便说点", nil)
	assert.Equal(t, intent.TypeSimpleChat, in.Type)
	assert.True(t, in.Uncertain(0.7))
}
