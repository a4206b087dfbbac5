package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/application"
	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/domain/pipeline"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/fake"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
	infraspec "github.com/felixgeelhaar/agent-router/infrastructure/specialist"
	storemem "github.com/felixgeelhaar/agent-router/infrastructure/storage/memory"
)

type harness struct {
	engine        *application.Engine
	conversations *storemem.ConversationStore
	events        *storemem.EventStore
}

func newHarness(t *testing.T, opts ...application.Option) harness {
	t.Helper()
	h := harness{
		conversations: storemem.NewConversationStore(0),
		events:        storemem.NewEventStore(),
	}
	base := []application.Option{
		application.WithConversations(h.conversations),
		application.WithSpecialists(builtinRegistry(t)),
		application.WithEvents(h.events),
	}
	e, err := application.NewEngineWithOptions(append(base, opts...)...)
	require.NoError(t, err)
	h.engine = e
	return h
}

func kinds(calls []application.ToolCall) []tooling.Kind {
	out := make([]tooling.Kind, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Kind)
	}
	return out
}

func TestNewEngine_RequiresStores(t *testing.T) {
	t.Parallel()

	_, err := application.NewEngine(application.EngineConfig{Conversations: storemem.NewConversationStore(0)})
	assert.ErrorIs(t, err, application.ErrMissingRegistry)

	_, err = application.NewEngine(application.EngineConfig{Specialists: storemem.NewSpecialistRegistry()})
	assert.ErrorIs(t, err, application.ErrMissingConversations)
}

func TestEngine_InvalidConversationID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	resp := h.engine.ProcessMessage(context.Background(), "  ", "你好", "u1")

	assert.True(t, resp.Degraded())
	assert.Equal(t, application.InvalidMessage, resp.Response)
	assert.NotEmpty(t, resp.Error)
}

func TestEngine_UncertainIntentAsksForClarification(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	resp := h.engine.ProcessMessage(ctx, "c1", "北京", "u1")
	assert.True(t, resp.Clarifying())
	assert.Equal(t, application.IntentQuestion, resp.Response)
	assert.Equal(t, []string{"intent"}, resp.Missing)
	assert.Empty(t, resp.ToolCalls)
	assert.Nil(t, resp.Plan)

	st, err := h.engine.History(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "北京", st.Pending.Request)
	assert.EqualValues(t, 1, st.TurnCount)
	assert.Len(t, st.Turns, 2)

	// The follow-up is classified together with the pending text.
	resp = h.engine.ProcessMessage(ctx, "c1", "帮我制定去上海三天的旅行计划", "u1")
	assert.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, "北京 帮我制定去上海三天的旅行计划", resp.Intent.RawText)

	st, err = h.engine.History(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, st.Pending)
	assert.EqualValues(t, 2, st.TurnCount)
}

func TestEngine_MissingInformationIsAskedBeforeExecution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	resp := h.engine.ProcessMessage(ctx, "c1", "帮我规划一次旅行", "u1")
	require.True(t, resp.Clarifying())
	assert.Equal(t, []string{"目的地", "出行天数"}, resp.Missing)
	assert.Contains(t, resp.Response, application.MissingQuestion)
	assert.Empty(t, resp.ToolCalls)
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Trace.Visited(pipeline.StatePlanned))

	st, err := h.engine.History(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, st.Results)

	resp = h.engine.ProcessMessage(ctx, "c1", "去北京，玩三天", "u1")
	assert.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
	require.NotNil(t, resp.Intent)
	assert.Equal(t, "三天", resp.Intent.Entities["duration"])
	assert.Contains(t, resp.Intent.RawText, "补充信息：去北京，玩三天")
}

func TestHeuristicChecker_OnlyAsksTravelRequests(t *testing.T) {
	t.Parallel()

	travelPlan := plan.Single("帮我规划一次旅行", infraspec.TravelName)
	otherPlan := plan.Single("帮我制定下季度的市场推广预算方案", "research")

	tests := []struct {
		name    string
		request string
		plan    plan.TaskPlan
		want    []string
	}{
		{"trip without details", "帮我规划一次旅行", travelPlan, []string{"目的地", "出行天数"}},
		{"marketing budget", "帮我制定下季度的市场推广预算方案", otherPlan, nil},
		{"event logistics", "帮我规划一下公司年会的交通安排", otherPlan, nil},
		{"trip word routed elsewhere", "整理一份员工出行报销制度", otherPlan, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := application.HeuristicChecker{}.Missing(context.Background(), tt.request, intent.Intent{}, tt.plan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_NonTravelTasksSkipTravelQuestions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for i, text := range []string{"帮我制定下季度的市场推广预算方案", "帮我规划一下公司年会的交通安排"} {
		resp := h.engine.ProcessMessage(context.Background(), fmt.Sprintf("c%d", i), text, "u1")
		assert.NotContains(t, resp.Missing, "目的地", text)
		assert.NotContains(t, resp.Missing, "出行天数", text)
	}
}

func TestEngine_TravelPlan(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	resp := h.engine.ProcessMessage(context.Background(), "c1", "帮我制定一个三天的北京旅行计划，预算3000元", "u1")

	require.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, 2, resp.Plan.Len())
	for _, st := range resp.Plan.Ordered() {
		assert.Equal(t, "travel", st.Specialist)
	}
	// Both subtasks give the same offline advice: one is kept, one is an
	// alternative.
	assert.Len(t, resp.Alternatives, 1)
	assert.Contains(t, resp.Response, "北京")
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
	assert.Equal(t, []pipeline.State{
		pipeline.StateReceived,
		pipeline.StateIntentClassified,
		pipeline.StateContextReady,
		pipeline.StateToolsResolved,
		pipeline.StatePlanned,
		pipeline.StateCoordinated,
		pipeline.StateResponded,
	}, resp.Trace.States())

	// Destination searches are recorded even though no search port is bound.
	for _, c := range resp.ToolCalls {
		assert.Equal(t, tooling.KindWebSearch, c.Kind)
		assert.NotEmpty(t, c.Error)
	}
}

func TestEngine_MemoryReference(t *testing.T) {
	t.Parallel()

	mem := storemem.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), memory.Record{
		ID:             "m1",
		ConversationID: "c1",
		UserID:         "u1",
		Kind:           memory.KindConversation,
		Content:        "上次讨论了项目A的进展：原型已完成",
	}))

	h := newHarness(t, application.WithPorts(application.Ports{Memory: mem}))
	resp := h.engine.ProcessMessage(context.Background(), "c1", "我们上次讨论的项目进展如何？", "u1")

	require.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
	require.NotEmpty(t, resp.ToolCalls)
	assert.Equal(t, tooling.KindMemory, resp.ToolCalls[0].Kind)
	assert.Empty(t, resp.ToolCalls[0].Error)

	// The exchange itself is remembered.
	records, err := mem.Query(context.Background(), memory.Query{ConversationID: "c1", Kind: memory.KindConversation, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEngine_ToolTimeoutKeepsSiblings(t *testing.T) {
	t.Parallel()

	text := "帮我完成三项工作"
	three := decomposeFunc(func(request string) []application.Draft {
		if request != text {
			return nil
		}
		return []application.Draft{
			{ID: "a", Description: "pack"},
			{ID: "b", Description: "weather"},
			{ID: "c", Description: "estimate"},
		}
	})

	slowTool := &stub{name: "gamma", score: 0.9, ids: []string{"c"}, process: func(ctx context.Context, in specialist.Input) (plan.Result, error) {
		call := in.Tools.DispatchTool(ctx, tooling.KindCommandTool, tooling.Args{Name: "slow"})
		if call.Failed() {
			return plan.Result{Content: "rough estimate without the calculator", Confidence: 0.4}, nil
		}
		return plan.Result{Content: call.Output, Confidence: 0.9}, nil
	}}
	reg := registryOf(t,
		&stub{name: "alpha", score: 0.9, ids: []string{"a"}, process: func(context.Context, specialist.Input) (plan.Result, error) {
			return plan.Result{Content: "packing list ready", Confidence: 0.9}, nil
		}},
		&stub{name: "beta", score: 0.9, ids: []string{"b"}, process: func(context.Context, specialist.Input) (plan.Result, error) {
			return plan.Result{Content: "sunny weekend forecast", Confidence: 0.9}, nil
		}},
		slowTool,
	)
	invoker := fake.NewInvoker().
		Handle("slow", func(json.RawMessage) (string, error) { return "42", nil }).
		WithDelay(500 * time.Millisecond)

	h := newHarness(t,
		application.WithSpecialists(reg),
		application.WithDecomposer(three),
		application.WithPorts(application.Ports{Tools: invoker}),
		application.WithPortResilience(resilience.ExecutorConfig{Timeout: 30 * time.Millisecond}),
	)
	resp := h.engine.ProcessMessage(context.Background(), "c1", text, "u1")

	require.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
	assert.Contains(t, resp.Response, "packing list ready")
	assert.Contains(t, resp.Response, "sunny weekend forecast")
	assert.Contains(t, resp.Response, "rough estimate")
	assert.Less(t, resp.Confidence, 0.9)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, tooling.KindCommandTool, resp.ToolCalls[0].Kind)
	assert.NotEmpty(t, resp.ToolCalls[0].Error)
}

func TestEngine_TurnTimeoutDegradesWithPartialContent(t *testing.T) {
	t.Parallel()

	text := "帮我完成两项工作"
	two := decomposeFunc(func(request string) []application.Draft {
		if request != text {
			return nil
		}
		return []application.Draft{{ID: "fast", Description: "quick"}, {ID: "slow", Description: "stuck"}}
	})
	reg := registryOf(t,
		&stub{name: "quick", score: 0.9, ids: []string{"fast"}, process: func(context.Context, specialist.Input) (plan.Result, error) {
			return plan.Result{Content: "the quick part", Confidence: 0.8}, nil
		}},
		&stub{name: "stuck", score: 0.9, ids: []string{"slow"}, process: func(ctx context.Context, _ specialist.Input) (plan.Result, error) {
			<-ctx.Done()
			return plan.Result{}, ctx.Err()
		}},
	)

	h := newHarness(t,
		application.WithSpecialists(reg),
		application.WithDecomposer(two),
		application.WithOrchestrator(domainconfig.OrchestratorConfig{
			TurnTimeout: domainconfig.Duration(100 * time.Millisecond),
		}),
	)
	resp := h.engine.ProcessMessage(context.Background(), "c1", text, "u1")

	require.True(t, resp.Degraded())
	assert.Contains(t, resp.Response, "the quick part")
	assert.Contains(t, resp.Error, "turn timeout")
	assert.InDelta(t, 0.2, resp.Confidence, 1e-9)

	// The partial turn is still committed.
	st, err := h.engine.History(context.Background(), "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.TurnCount)
}

func TestEngine_AllSubtasksFailDegrades(t *testing.T) {
	t.Parallel()

	reg := registryOf(t, &stub{name: "broken", score: 0.9, process: func(context.Context, specialist.Input) (plan.Result, error) {
		return plan.Result{}, fmt.Errorf("backend down")
	}})
	h := newHarness(t, application.WithSpecialists(reg))
	resp := h.engine.ProcessMessage(context.Background(), "c1", "你好", "u1")

	assert.True(t, resp.Degraded())
	assert.Equal(t, application.DegradedMessage, resp.Response)
	assert.Contains(t, resp.Error, "backend down")
	assert.True(t, resp.Trace.Visited(pipeline.StateCoordinated))
}

func TestEngine_SerializesTurnsPerConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	const n = 5

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := h.engine.ProcessMessage(context.Background(), "shared", "你好", "u1")
			assert.Equal(t, pipeline.StateResponded, resp.State, resp.Error)
		}()
	}
	wg.Wait()

	st, err := h.engine.History(context.Background(), "shared")
	require.NoError(t, err)
	assert.EqualValues(t, n, st.TurnCount)
	assert.Len(t, st.Turns, 2*n)
	for i := 0; i < len(st.Turns); i += 2 {
		assert.Equal(t, conversation.RoleUser, st.Turns[i].Role)
		assert.Equal(t, conversation.RoleAssistant, st.Turns[i+1].Role)
	}
}

func TestEngine_PreferencesPersist(t *testing.T) {
	t.Parallel()

	mem := storemem.NewMemoryStore()
	h := newHarness(t, application.WithPorts(application.Ports{Memory: mem}))
	ctx := context.Background()

	resp := h.engine.ProcessMessage(ctx, "c1", "你好，我叫小明", "u1")
	require.Equal(t, pipeline.StateResponded, resp.State, resp.Error)

	st, err := h.engine.History(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "小明", st.Preferences["name"])

	records, err := mem.Query(ctx, memory.Query{UserID: "u1", Kind: memory.KindPreference})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, memory.PreferenceKey("u1"), records[0].ID)
	assert.Contains(t, records[0].Content, "小明")
}

func TestEngine_EventsReplayTheTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	resp := h.engine.ProcessMessage(ctx, "c1", "你好", "u1")
	require.Equal(t, pipeline.StateResponded, resp.State, resp.Error)

	events, err := h.engine.Events(ctx, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, event.TypeTurnReceived, events[0].Type)
	assert.Equal(t, event.TypeTurnResponded, events[len(events)-1].Type)

	turns, err := application.NewReplay(h.events).Turns(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	got := turns[0]
	assert.Equal(t, resp.TurnID, got.TurnID)
	assert.Equal(t, "你好", got.Text)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "simple_chat", got.Intent)
	assert.Equal(t, pipeline.StateResponded, got.State)
	assert.True(t, got.Finished())
	assert.Equal(t, resp.Trace.States(), got.Trace.States())
	assert.Len(t, got.Subtasks, 1)

	one, err := h.engine.Turn(ctx, "c1", resp.TurnID)
	require.NoError(t, err)
	assert.Equal(t, got, one)
}

func TestEngine_CloseDeletesConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	h.engine.ProcessMessage(ctx, "c1", "你好", "u1")

	require.NoError(t, h.engine.Close(ctx, "c1"))
	_, err := h.engine.History(ctx, "c1")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestEngine_Knowledge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	h := newHarness(t)
	_, err := h.engine.AddKnowledge(ctx, knowledge.Document{Content: "x"})
	assert.ErrorIs(t, err, application.ErrNoKnowledgeStore)

	kb := storemem.NewKnowledgeStore(200, 20)
	h = newHarness(t, application.WithKnowledge(kb))
	chunks, err := h.engine.AddKnowledge(ctx, knowledge.Document{Title: "手册", Content: "退货政策：收到商品七天内可以无理由退货。"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.NotEmpty(t, chunks[0].DocumentID)

	hits, err := h.engine.SearchKnowledge(ctx, "退货政策", 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Chunk.Content, "退货")

	// The knowledge port is bound and retrieved from during a turn.
	resp := h.engine.ProcessMessage(ctx, "c1", "知识库里的退货政策是什么？", "u1")
	require.NotEmpty(t, resp.ToolCalls)
	assert.Equal(t, tooling.KindKnowledge, resp.ToolCalls[0].Kind)
	assert.Contains(t, resp.Response, "退货")
}

func TestEngine_RegisterAtRuntime(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.engine.Register(&stub{name: "greeter", score: 0.9, process: func(context.Context, specialist.Input) (plan.Result, error) {
		return plan.Result{Content: "很高兴见到你", Confidence: 0.95}, nil
	}}))

	resp := h.engine.ProcessMessage(context.Background(), "c1", "你好", "u1")
	assert.Equal(t, "很高兴见到你", resp.Response)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Equal(t, []tooling.Kind{}, kinds(resp.ToolCalls))
}
