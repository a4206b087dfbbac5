// Package application provides the orchestration core: it routes each user
// message through classification, context assembly, tool resolution,
// planning and coordinated execution.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/domain/pipeline"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/telemetry"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	"github.com/felixgeelhaar/agent-router/infrastructure/observability"
	"github.com/felixgeelhaar/agent-router/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-router/infrastructure/statemachine"
)

// Fallback answers used when a turn cannot produce a regular response.
const (
	DegradedMessage = "抱歉，系统暂时无法完整处理您的请求，请稍后再试。"
	InvalidMessage  = "抱歉，无法识别该会话，请检查会话标识后重试。"
)

// commitTimeout bounds the state commit after the turn deadline passed.
const commitTimeout = 2 * time.Second

// ErrMissingRegistry is returned by NewEngine without a specialist registry.
var ErrMissingRegistry = errors.New("specialist registry is required")

// ErrMissingConversations is returned by NewEngine without a conversation store.
var ErrMissingConversations = errors.New("conversation store is required")

// ToolCall is the public summary of one capability port call.
type ToolCall struct {
	Kind    tooling.Kind `json:"kind"`
	Name    string       `json:"name,omitempty"`
	Summary string       `json:"summary,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Response is what every turn returns, whichever state it ended in.
type Response struct {
	Response       string         `json:"response"`
	Confidence     float64        `json:"confidence"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
	Error          string         `json:"error,omitempty"`
	State          pipeline.State `json:"state"`
	ConversationID string         `json:"conversation_id"`
	TurnID         string         `json:"turn_id,omitempty"`
	Intent         *intent.Intent `json:"intent,omitempty"`
	Plan           *plan.TaskPlan `json:"plan,omitempty"`
	// Alternatives are lower-confidence results that overlapped a kept one.
	Alternatives []plan.Result  `json:"alternatives,omitempty"`
	Missing      []string       `json:"missing,omitempty"`
	Trace        pipeline.Trace `json:"trace,omitempty"`
}

// Clarifying reports whether the turn asked the user for more information.
func (r Response) Clarifying() bool {
	return r.State == pipeline.StateNeedsClarification
}

// Degraded reports whether the turn fell back to a degraded answer.
func (r Response) Degraded() bool {
	return r.State == pipeline.StateDegraded
}

// EngineConfig contains configuration for the engine.
type EngineConfig struct {
	Orchestrator domainconfig.OrchestratorConfig
	// Ports configures timeout and circuit breaking of capability ports.
	Ports resilience.ExecutorConfig

	Conversations conversation.Store
	Specialists   specialist.Registry
	Events        event.Store
	Knowledge     knowledge.Store
	Bindings      Ports

	// LLM enables the model-backed strategies. Nil keeps every decision
	// heuristic.
	LLM        llm.Completer
	Strategies []ScoringStrategy
	Decomposer Decomposer
	ToolModel  ToolClassifier
	Checker    MissingInfoChecker
	Summarizer Summarizer
	Rules      tooling.RuleTable
	Fallback   specialist.Specialist

	SearchLimit int
	Tracer      telemetry.Tracer
	Metrics     telemetry.Metrics
}

// Engine is the orchestrator. ProcessMessage is safe for concurrent use;
// turns of one conversation are serialized.
type Engine struct {
	config EngineConfig

	classifier  *Classifier
	resolver    *Resolver
	assembler   *Assembler
	planner     *Planner
	coordinator *Coordinator
	checker     MissingInfoChecker
	summarizer  Summarizer

	conversations conversation.Store
	events        event.Store
	knowledge     knowledge.Store
	memory        memory.Store

	locks   *keyedMutex
	tracer  telemetry.Tracer
	metrics telemetry.Metrics
	now     func() time.Time
}

// NewEngine creates a new engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Specialists == nil {
		return nil, ErrMissingRegistry
	}
	if config.Conversations == nil {
		return nil, ErrMissingConversations
	}

	o := withOrchestratorDefaults(config.Orchestrator)
	config.Orchestrator = o
	if config.Ports.Timeout == 0 && config.Ports.CircuitBreakerThreshold == 0 {
		config.Ports = resilience.DefaultExecutorConfig()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NoopTracer{}
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}

	strategies := config.Strategies
	decomposer := config.Decomposer
	toolModel := config.ToolModel
	checker := config.Checker
	summarizer := config.Summarizer
	if config.LLM != nil {
		if len(strategies) == 0 {
			strategies = []ScoringStrategy{KeywordStrategy{}, LLMStrategy{Completer: config.LLM, HistoryTurns: 5}}
		}
		if decomposer == nil {
			decomposer = LLMDecomposer{Completer: config.LLM, Fallback: HeuristicDecomposer{}}
		}
		if toolModel == nil {
			toolModel = LLMToolClassifier{Completer: config.LLM}
		}
		if checker == nil {
			checker = LLMChecker{Completer: config.LLM}
		}
		if summarizer == nil {
			summarizer = LLMSummarizer{Completer: config.LLM}
		}
	}
	if checker == nil {
		checker = HeuristicChecker{}
	}

	coordinator := NewCoordinator(CoordinatorConfig{
		MaxConcurrent:  o.MaxConcurrent,
		SubtaskTimeout: o.SubtaskTimeout.Duration(),
		Floor:          o.SpecialistFloor,
		Ports:          config.Ports,
	}, config.Specialists, config.Fallback, config.Bindings)
	coordinator.Instrument(config.Tracer, config.Metrics)

	e := &Engine{
		config:     config,
		classifier: NewClassifier(o.IntentThreshold, strategies...),
		resolver:   NewResolver(config.Rules, config.Bindings.Available(), toolModel),
		assembler: NewAssembler(AssemblerConfig{
			Identity:      o.Identity,
			HistoryWindow: o.HistoryWindow,
			Budget:        o.ContextBudget,
			MemoryLimit:   o.MemoryLimit,
			KnowledgeTopK: o.KnowledgeTopK,
		}, coordinator),
		planner: NewPlanner(PlannerConfig{
			MaxSubtasks: o.MaxSubtasks,
			MaxDepth:    o.MaxDepth,
			Floor:       o.SpecialistFloor,
			DefaultName: coordinator.fallback.Name(),
		}, decomposer, config.Specialists),
		coordinator:   coordinator,
		checker:       checker,
		summarizer:    summarizer,
		conversations: config.Conversations,
		events:        config.Events,
		knowledge:     config.Knowledge,
		memory:        config.Bindings.Memory,
		locks:         newKeyedMutex(),
		tracer:        config.Tracer,
		metrics:       config.Metrics,
		now:           time.Now,
	}
	return e, nil
}

func withOrchestratorDefaults(o domainconfig.OrchestratorConfig) domainconfig.OrchestratorConfig {
	d := domainconfig.Default().Orchestrator
	if o.IntentThreshold <= 0 {
		o.IntentThreshold = d.IntentThreshold
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = d.HistoryWindow
	}
	if o.ContextBudget == 0 {
		o.ContextBudget = d.ContextBudget
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = d.MemoryLimit
	}
	if o.KnowledgeTopK <= 0 {
		o.KnowledgeTopK = d.KnowledgeTopK
	}
	if o.MaxSubtasks <= 0 {
		o.MaxSubtasks = d.MaxSubtasks
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = d.MaxConcurrent
	}
	if o.SpecialistFloor <= 0 {
		o.SpecialistFloor = d.SpecialistFloor
	}
	if o.SubtaskTimeout <= 0 {
		o.SubtaskTimeout = d.SubtaskTimeout
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = d.TurnTimeout
	}
	if o.Identity == "" {
		o.Identity = d.Identity
	}
	return o
}

// Coordinator exposes the engine's coordinator.
func (e *Engine) Coordinator() *Coordinator {
	return e.coordinator
}

// Register adds a specialist at runtime. It takes part from the next
// dispatch cycle on.
func (e *Engine) Register(s specialist.Specialist) error {
	if err := e.coordinator.Register(s); err != nil {
		return err
	}
	logging.Info().
		Add(logging.Component("engine")).
		Add(logging.Specialist(s.Name())).
		Msg("specialist registered")
	return nil
}

// turn is the working state of one ProcessMessage call.
type turn struct {
	id      string
	message string
	request string
	start   time.Time

	state   *conversation.State
	machine *statemachine.Interpreter

	intent     intent.Intent
	classified bool
	resumed    bool
	plan       *plan.TaskPlan
	results    map[string]plan.Result
	calls      []tooling.Call
	merged     Reconciled

	resp Response
}

// ProcessMessage runs one turn. It never fails: every outcome, including
// timeouts and store failures, is reported on the returned response.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, text, userID string) (resp Response) {
	start := e.now()
	turnID := uuid.NewString()
	resp = Response{ConversationID: conversationID, TurnID: turnID, State: pipeline.StateReceived}

	defer func() {
		if p := recover(); p != nil {
			logging.Error().
				Add(logging.ConversationID(conversationID)).
				Add(logging.TurnID(turnID)).
				Add(logging.Str("panic", fmt.Sprint(p))).
				Msg("turn panicked")
			resp = degradedResponse(resp, fmt.Errorf("internal error: %v", p))
		}
	}()

	if strings.TrimSpace(conversationID) == "" {
		resp.State = pipeline.StateDegraded
		resp.Response = InvalidMessage
		resp.Error = conversation.ErrInvalidID.Error()
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Orchestrator.TurnTimeout.Duration())
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "turn",
		telemetry.String("conversation.id", conversationID),
		telemetry.String("turn.id", turnID),
	)
	defer span.End()

	unlock, err := e.locks.Lock(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return degradedResponse(resp, fmt.Errorf("waiting for conversation: %w", err))
	}
	defer unlock()

	stored, err := e.load(ctx, conversationID, userID)
	if err != nil {
		span.RecordError(err)
		logging.Error().
			Add(logging.ConversationID(conversationID)).
			Add(logging.ErrorField(err)).
			Msg("conversation load failed")
		return degradedResponse(resp, err)
	}

	ctx = withRecorder(ctx, &recorder{store: e.events, conversationID: conversationID, turnID: turnID})

	machine, err := statemachine.Begin(conversationID, turnID)
	if err != nil {
		span.RecordError(err)
		return degradedResponse(resp, err)
	}
	defer machine.Stop()
	machine.Context().OnTransition = func(tr pipeline.Transition) {
		record(ctx, event.TypeStateTransitioned, event.StateTransitionedPayload{
			FromState: tr.From,
			ToState:   tr.To,
			Reason:    tr.Reason,
		})
	}

	t := &turn{
		id:      turnID,
		message: text,
		request: text,
		start:   start,
		state:   stored.Clone(),
		machine: machine,
		resp:    resp,
	}
	if userID != "" && t.state.UserID == "" {
		t.state.UserID = userID
	}

	logging.Info().
		Add(logging.ConversationID(conversationID)).
		Add(logging.TurnID(turnID)).
		Add(logging.UserID(userID)).
		Msg("turn received")
	record(ctx, event.TypeTurnReceived, event.TurnReceivedPayload{UserID: userID, Text: text})

	e.run(ctx, t)
	e.finish(ctx, t)

	span.SetAttributes(
		telemetry.String("state", string(t.resp.State)),
		telemetry.Float64("confidence", t.resp.Confidence),
	)
	if t.resp.Error != "" {
		span.RecordError(errors.New(t.resp.Error))
	}
	return t.resp
}

func (e *Engine) load(ctx context.Context, id, userID string) (*conversation.State, error) {
	st, err := e.conversations.Load(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		return conversation.New(id, userID), nil
	}
	if err != nil {
		return nil, err
	}
	st.Normalize()
	return st, nil
}

// run drives the turn machine to a terminal state.
func (e *Engine) run(ctx context.Context, t *turn) {
	e.resume(t)

	if !t.classified {
		t.intent = e.classifier.Classify(ctx, t.request, t.state.Recent(e.config.Orchestrator.HistoryWindow))
	}
	t.resp.Intent = &t.intent
	record(ctx, event.TypeIntentClassified, event.IntentClassifiedPayload{
		Intent:     string(t.intent.Type),
		Confidence: t.intent.Confidence,
	})
	logging.Debug().
		Add(logging.TurnID(t.id)).
		Add(logging.Intent(t.intent.Type)).
		Add(logging.Confidence(t.intent.Confidence)).
		Msg("intent classified")
	if !e.advance(ctx, t, pipeline.StateIntentClassified, string(t.intent.Type)) {
		return
	}

	if t.intent.Uncertain(e.config.Orchestrator.IntentThreshold) {
		e.clarify(ctx, t, []string{"intent"}, IntentQuestion, t.intent.Confidence)
		return
	}

	decision := e.resolver.Resolve(ctx, t.request, t.intent)
	actx, calls := e.assembler.Assemble(ctx, t.state, t.request, t.intent, decision)
	t.calls = append(t.calls, calls...)
	if !e.advance(ctx, t, pipeline.StateContextReady, fmt.Sprintf("%d tokens", actx.Used)) {
		return
	}

	for _, kind := range decision.Kinds() {
		if kind != tooling.KindWebSearch && kind != tooling.KindCommandTool {
			continue
		}
		call := e.coordinator.DispatchTool(ctx, kind, tooling.Args{
			Query:          t.request,
			ConversationID: t.state.ID,
			UserID:         t.state.UserID,
			Limit:          e.config.SearchLimit,
		})
		t.calls = append(t.calls, call)
		actx = e.assembler.Extend(actx, call)
	}
	if !e.advance(ctx, t, pipeline.StateToolsResolved, strings.Join(kindNames(decision.Kinds()), ",")) {
		return
	}

	t.machine.SetComplex(t.intent.IsComplex())
	p := e.planner.Plan(ctx, t.intent, actx)
	t.plan = &p
	t.resp.Plan = t.plan
	if t.intent.IsComplex() {
		record(ctx, event.TypePlanCreated, event.PlanCreatedPayload{
			Subtasks:  p.Order,
			Fallback:  p.Fallback,
			Truncated: p.Truncated,
		})
		if !e.advance(ctx, t, pipeline.StatePlanned, fmt.Sprintf("%d subtasks", p.Len())) {
			return
		}
		if !t.resumed {
			missing, err := e.checker.Missing(ctx, t.request, t.intent, p)
			if err != nil {
				logging.Debug().
					Add(logging.TurnID(t.id)).
					Add(logging.ErrorField(err)).
					Msg("missing-info check failed, proceeding")
			}
			if len(missing) > 0 {
				e.clarify(ctx, t, missing, missingQuestion(missing), 0.7)
				return
			}
		}
	}

	t.results = e.coordinator.Execute(ctx, p, Execution{Request: t.request, Intent: t.intent, Context: actx})
	t.merged = Reconcile(p, t.results)
	if ctx.Err() != nil {
		e.degrade(t, fmt.Errorf("turn timeout: %w", ctx.Err()))
		return
	}
	if !e.advance(ctx, t, pipeline.StateCoordinated, fmt.Sprintf("%d results", len(t.results))) {
		return
	}
	if len(t.merged.Kept) == 0 {
		e.degrade(t, subtaskErrors(t.merged.Failed))
		return
	}
	if t.intent.IsComplex() {
		t.merged = summarize(ctx, e.summarizer, t.request, t.merged)
	}

	t.resp.Response = t.merged.Content
	t.resp.Confidence = t.merged.Confidence
	t.resp.Alternatives = t.merged.Alternatives
	if len(t.merged.Failed) > 0 {
		t.resp.Error = subtaskErrors(t.merged.Failed).Error()
	}
	e.advance(ctx, t, pipeline.StateResponded, "")
}

// resume consumes a pending clarification. An unclear intent is
// re-classified on the combined text; missing details reuse the intent.
func (e *Engine) resume(t *turn) {
	pending := t.state.Pending
	if pending == nil {
		return
	}
	t.state.Pending = nil
	if len(pending.Missing) == 1 && pending.Missing[0] == "intent" {
		t.request = pending.Request + " " + t.message
		return
	}
	t.request = pending.Request + "\n补充信息：" + t.message
	t.intent = intent.New(pending.Intent.Type, pending.Intent.Confidence, mergeEntities(pending.Intent.Entities, ExtractEntities(t.message)), t.request)
	t.classified = true
	t.resumed = true
}

func mergeEntities(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// advance moves the machine to state. A cancelled turn or a rejected
// transition degrades the turn and reports false.
func (e *Engine) advance(ctx context.Context, t *turn, state pipeline.State, reason string) bool {
	if err := ctx.Err(); err != nil && state != pipeline.StateNeedsClarification {
		e.degrade(t, fmt.Errorf("turn timeout: %w", err))
		return false
	}
	if err := t.machine.Transition(state, reason); err != nil {
		logging.Error().
			Add(logging.TurnID(t.id)).
			Add(logging.ToState(state)).
			Add(logging.ErrorField(err)).
			Msg("transition rejected")
		e.degrade(t, err)
		return false
	}
	return true
}

func (e *Engine) clarify(ctx context.Context, t *turn, missing []string, question string, confidence float64) {
	if err := t.machine.Transition(pipeline.StateNeedsClarification, strings.Join(missing, ",")); err != nil {
		e.degrade(t, err)
		return
	}
	t.state.Pending = &conversation.Clarification{
		Request:  t.request,
		Intent:   t.intent,
		Missing:  missing,
		Question: question,
		AskedAt:  e.now(),
	}
	t.resp.Response = question
	t.resp.Confidence = confidence
	t.resp.Missing = missing
	record(ctx, event.TypeClarification, event.TurnFinishedPayload{
		State:      pipeline.StateNeedsClarification,
		Confidence: confidence,
	})
}

// degrade ends the turn with whatever partial content exists.
func (e *Engine) degrade(t *turn, cause error) {
	if !t.machine.IsTerminal() {
		if err := t.machine.Degrade(cause.Error()); err != nil {
			logging.Error().
				Add(logging.TurnID(t.id)).
				Add(logging.ErrorField(err)).
				Msg("degrade transition rejected")
		}
	}
	if t.results != nil && t.merged.Content == "" {
		t.merged = Reconcile(*t.plan, t.results)
	}
	t.resp.Response = DegradedMessage
	t.resp.Confidence = 0
	if t.merged.Content != "" {
		t.resp.Response = t.merged.Content
		t.resp.Confidence = t.merged.Confidence / 2
		t.resp.Alternatives = t.merged.Alternatives
	}
	t.resp.Error = cause.Error()
}

func degradedResponse(resp Response, cause error) Response {
	resp.State = pipeline.StateDegraded
	resp.Response = DegradedMessage
	resp.Confidence = 0
	resp.Error = cause.Error()
	return resp
}

func subtaskErrors(failed []plan.Result) error {
	if len(failed) == 0 {
		return fmt.Errorf("%w: no result produced", plan.ErrSubtaskFailure)
	}
	errs := make([]error, 0, len(failed))
	for _, r := range failed {
		errs = append(errs, fmt.Errorf("%s: %s", r.SubtaskID, r.Error))
	}
	return errors.Join(errs...)
}

func kindNames(kinds []tooling.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

// finish assembles the response, commits the conversation and emits the
// terminal event.
func (e *Engine) finish(ctx context.Context, t *turn) {
	t.resp.State = t.machine.State()
	t.resp.Trace = t.machine.Trace()
	if strings.TrimSpace(t.resp.Response) == "" {
		t.resp.Response = DegradedMessage
	}
	t.resp.ToolCalls = e.toolCalls(t)

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	e.commit(commitCtx, t)

	d := e.now().Sub(t.start)
	finished := event.TurnFinishedPayload{
		State:      t.resp.State,
		Confidence: t.resp.Confidence,
		Error:      t.resp.Error,
		Duration:   d,
	}
	switch t.resp.State {
	case pipeline.StateResponded:
		record(commitCtx, event.TypeTurnResponded, finished)
	case pipeline.StateDegraded:
		record(commitCtx, event.TypeTurnDegraded, finished)
	}
	e.metrics.TurnFinished(commitCtx, string(t.resp.State), string(t.intent.Type), d)

	logging.Info().
		Add(logging.ConversationID(t.state.ID)).
		Add(logging.TurnID(t.id)).
		Add(logging.State(t.resp.State)).
		Add(logging.Confidence(t.resp.Confidence)).
		Add(logging.Count("tool_calls", len(t.resp.ToolCalls))).
		Add(logging.Degraded(t.resp.Degraded())).
		Add(logging.Duration(d)).
		Msg("turn finished")
}

// toolCalls lists every port call of the turn: retrieval first, then each
// subtask's calls in plan order.
func (e *Engine) toolCalls(t *turn) []ToolCall {
	calls := append([]tooling.Call(nil), t.calls...)
	if t.plan != nil && t.results != nil {
		for _, id := range t.plan.Order {
			calls = append(calls, t.results[id].ToolCalls...)
		}
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{Kind: c.Kind, Name: c.Name, Summary: c.Summary, Error: c.Error})
	}
	return out
}

// commit applies the turn to the conversation and saves it in one write.
func (e *Engine) commit(ctx context.Context, t *turn) {
	now := e.now()
	st := t.state
	st.Append(conversation.RoleUser, t.message, t.start)
	st.Append(conversation.RoleAssistant, t.resp.Response, now)
	st.TurnCount++
	if t.results != nil {
		st.Results = t.results
	}
	if t.plan != nil && t.intent.IsComplex() {
		st.ActivePlan = t.plan
	}
	for k, v := range ExtractPreferences(t.message) {
		st.Preferences[k] = v
	}

	if err := e.conversations.Save(ctx, st); err != nil {
		logging.Error().
			Add(logging.ConversationID(st.ID)).
			Add(logging.TurnID(t.id)).
			Add(logging.ErrorField(err)).
			Msg("conversation save failed")
		if t.resp.Error == "" {
			t.resp.Error = fmt.Sprintf("conversation not saved: %v", err)
		}
	}
	e.remember(ctx, t)
}

// remember writes the exchange and any stated preferences to long-term
// memory. Failures are logged only.
func (e *Engine) remember(ctx context.Context, t *turn) {
	if e.memory == nil || t.resp.State != pipeline.StateResponded {
		return
	}
	st := t.state
	records := []memory.Record{{
		ID:             uuid.NewString(),
		ConversationID: st.ID,
		UserID:         st.UserID,
		Kind:           memory.KindConversation,
		Content:        fmt.Sprintf("用户：%s\n助手：%s", t.message, t.resp.Response),
		Metadata:       map[string]string{"key": memory.ConversationKey(st.ID), "turn_id": t.id},
		CreatedAt:      e.now(),
	}}
	if prefs := ExtractPreferences(t.message); len(prefs) > 0 && st.UserID != "" {
		var lines []string
		for k, v := range st.Preferences {
			lines = append(lines, k+": "+v)
		}
		records = append(records, memory.Record{
			ID:        memory.PreferenceKey(st.UserID),
			UserID:    st.UserID,
			Kind:      memory.KindPreference,
			Content:   strings.Join(lines, "\n"),
			CreatedAt: e.now(),
		})
	}
	for _, r := range records {
		if err := e.memory.Save(ctx, r); err != nil {
			logging.Warn().
				Add(logging.ConversationID(st.ID)).
				Add(logging.ErrorField(err)).
				Msg("memory save failed")
		}
	}
}

// History returns the stored state of a conversation.
func (e *Engine) History(ctx context.Context, conversationID string) (*conversation.State, error) {
	st, err := e.conversations.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	st.Normalize()
	return st, nil
}

// Close deletes a conversation. It waits for a running turn of the same
// conversation to finish.
func (e *Engine) Close(ctx context.Context, conversationID string) error {
	unlock, err := e.locks.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := e.conversations.Delete(ctx, conversationID); err != nil {
		return err
	}
	logging.Info().
		Add(logging.ConversationID(conversationID)).
		Msg("conversation closed")
	return nil
}

// Events returns the recorded events of a conversation.
func (e *Engine) Events(ctx context.Context, conversationID string) ([]event.Event, error) {
	if e.events == nil {
		return nil, nil
	}
	return e.events.Load(ctx, conversationID)
}

// ErrNoEventStore is returned by Turns when events are not recorded.
var ErrNoEventStore = errors.New("no event store configured")

// Turns rebuilds the turn records of a conversation from its events.
func (e *Engine) Turns(ctx context.Context, conversationID string) ([]TurnRecord, error) {
	if e.events == nil {
		return nil, ErrNoEventStore
	}
	return NewReplay(e.events).Turns(ctx, conversationID)
}

// Turn rebuilds one turn of a conversation from its events.
func (e *Engine) Turn(ctx context.Context, conversationID, turnID string) (TurnRecord, error) {
	if e.events == nil {
		return TurnRecord{}, ErrNoEventStore
	}
	return NewReplay(e.events).Turn(ctx, conversationID, turnID)
}

// ErrNoKnowledgeStore is returned by knowledge operations without a store.
var ErrNoKnowledgeStore = errors.New("no knowledge store configured")

// AddKnowledge ingests a document into the knowledge store.
func (e *Engine) AddKnowledge(ctx context.Context, doc knowledge.Document) ([]knowledge.Chunk, error) {
	if e.knowledge == nil {
		return nil, ErrNoKnowledgeStore
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = e.now()
	}
	chunks, err := e.knowledge.Add(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("add knowledge %s: %w", doc.ID, err)
	}
	logging.Info().
		Add(logging.Component("knowledge")).
		Add(logging.Str("document_id", doc.ID)).
		Add(logging.Count("chunks", len(chunks))).
		Msg("document added")
	return chunks, nil
}

// SearchKnowledge queries the knowledge store directly.
func (e *Engine) SearchKnowledge(ctx context.Context, query string, topK int) ([]knowledge.Hit, error) {
	if e.knowledge == nil {
		return nil, ErrNoKnowledgeStore
	}
	if topK <= 0 {
		topK = e.config.Orchestrator.KnowledgeTopK
	}
	return e.knowledge.Search(ctx, query, topK)
}
