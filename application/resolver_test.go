package application_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/fake"
)

func qa(text string) intent.Intent {
	return intent.New(intent.TypeQuestionAnswer, 0.9, nil, text)
}

func TestResolver_MemoryReference(t *testing.T) {
	t.Parallel()

	r := application.NewResolver(nil, tooling.AllKinds(), nil)
	text := "我们上次讨论的项目进展如何？"
	d := r.Resolve(context.Background(), text, qa(text))

	require.True(t, d.Has(tooling.KindMemory))
	trigger, _ := d.Trigger(tooling.KindMemory)
	assert.Contains(t, trigger.Reason, "上次")
	assert.Equal(t, tooling.KindMemory, d.Kinds()[0])
}

func TestResolver_InvocationOrder(t *testing.T) {
	t.Parallel()

	r := application.NewResolver(nil, tooling.AllKinds(), nil)
	text := "执行命令前先搜索最新文档，记住上次的结论"
	d := r.Resolve(context.Background(), text, qa(text))

	assert.Equal(t, []tooling.Kind{
		tooling.KindMemory,
		tooling.KindKnowledge,
		tooling.KindWebSearch,
		tooling.KindCommandTool,
	}, d.Kinds())
}

func TestResolver_Idempotent(t *testing.T) {
	t.Parallel()

	r := application.NewResolver(nil, []tooling.Kind{tooling.KindMemory, tooling.KindWebSearch}, nil)
	for _, text := range []string{
		"我们上次讨论的项目进展如何？",
		"帮我搜索最新的文档资料",
		"帮我制定一个三天的北京旅行计划",
		"你好",
	} {
		in := application.NewClassifier(0.7).Classify(context.Background(), text, nil)
		first := r.Resolve(context.Background(), text, in)
		second := r.Resolve(context.Background(), text, in)
		assert.Equal(t, first, second, text)
	}
}

func TestResolver_DropsUnboundKinds(t *testing.T) {
	t.Parallel()

	r := application.NewResolver(nil, []tooling.Kind{tooling.KindWebSearch}, nil)
	text := "搜索知识库里的文档"
	d := r.Resolve(context.Background(), text, qa(text))

	assert.Equal(t, []tooling.Kind{tooling.KindWebSearch}, d.Kinds())
	require.Len(t, d.Dropped, 1)
	assert.Equal(t, tooling.KindKnowledge, d.Dropped[0].Kind)
}

func TestResolver_ComplexIntentAddsRetrieval(t *testing.T) {
	t.Parallel()

	r := application.NewResolver(nil, tooling.AllKinds(), nil)
	text := "帮我制定健身方案"
	d := r.Resolve(context.Background(), text, intent.New(intent.TypeComplexTask, 0.9, nil, text))

	assert.Equal(t, []tooling.Kind{tooling.KindMemory, tooling.KindKnowledge}, d.Kinds())
	trigger, _ := d.Trigger(tooling.KindMemory)
	assert.True(t, strings.HasPrefix(trigger.Reason, "intent"))
}

func TestResolver_ModelOnlyWithoutRules(t *testing.T) {
	t.Parallel()

	model := fake.NewLLM().OnUnexpected(fake.Step{Content: `{"tools":["web_search","bogus"]}`})
	r := application.NewResolver(nil, tooling.AllKinds(), application.LLMToolClassifier{Completer: model})

	text := "上次那个怎么样了"
	d := r.Resolve(context.Background(), text, qa(text))
	assert.Equal(t, []tooling.Kind{tooling.KindMemory}, d.Kinds())
	assert.Zero(t, model.Calls())

	text = "量子纠缠的原理"
	d = r.Resolve(context.Background(), text, qa(text))
	assert.Equal(t, []tooling.Kind{tooling.KindWebSearch}, d.Kinds())
	assert.Equal(t, 1, model.Calls())
}
