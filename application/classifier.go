package application

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// ScoringStrategy proposes an intent for a message. Strategies may fail;
// the classifier treats a failure as no opinion.
type ScoringStrategy interface {
	Name() string
	Score(ctx context.Context, text string, history []conversation.Turn) (intent.Intent, error)
}

// unclassifiedConfidence is reported for text no strategy could place.
const unclassifiedConfidence = 0.3

// Classifier turns a message into a typed intent. It never fails.
type Classifier struct {
	strategies []ScoringStrategy
	threshold  float64
}

// NewClassifier creates a classifier consulting strategies in order. The
// first confident answer wins; otherwise the most confident one does.
func NewClassifier(threshold float64, strategies ...ScoringStrategy) *Classifier {
	if len(strategies) == 0 {
		strategies = []ScoringStrategy{KeywordStrategy{}}
	}
	return &Classifier{strategies: strategies, threshold: threshold}
}

// Classify returns the intent of text. Entities are always extracted from
// the text itself and merged under any the strategy reported.
func (c *Classifier) Classify(ctx context.Context, text string, history []conversation.Turn) intent.Intent {
	best := intent.New(intent.TypeSimpleChat, unclassifiedConfidence, nil, text)
	found := false
	for _, s := range c.strategies {
		got, err := s.Score(ctx, text, history)
		if err != nil {
			logging.Debug().
				Add(logging.Component("classifier")).
				Add(logging.Str("strategy", s.Name())).
				Add(logging.ErrorField(err)).
				Msg("strategy gave no answer")
			continue
		}
		if !found || got.Confidence > best.Confidence {
			best, found = got, true
		}
		if !got.Uncertain(c.threshold) {
			break
		}
	}

	entities := ExtractEntities(text)
	for k, v := range best.Entities {
		entities[k] = v
	}
	return intent.New(best.Type, best.Confidence, entities, text)
}

// Marker lists for the keyword strategy. Each hit adds to its type's score.
var (
	complexMarkers = []string{
		"制定", "计划", "规划", "方案", "安排", "设计", "步骤", "分解", "帮我", "完成",
		"撰写", "整理", "对比", "然后", "并且", "同时", "首先",
		"plan", "design", "organize", "schedule", "step by step", "and then", "help me",
	}
	questionMarkers = []string{
		"？", "?", "什么", "为什么", "如何", "怎么", "哪", "吗", "多少", "是否", "谁", "介绍",
		"what", "why", "how", "who", "when", "where", "which", "explain",
	}
	chatMarkers = []string{
		"你好", "您好", "谢谢", "哈哈", "早上好", "晚上好", "晚安", "再见", "在吗", "聊聊",
		"hello", "hi ", "hey", "thanks", "thank you", "bye", "good morning",
	}
)

// KeywordStrategy scores each intent type by marker hits. One hit gives
// 0.75 and each further hit 0.15 more, capped at 0.95. A tie between the
// top two types costs 0.2.
type KeywordStrategy struct{}

// Name implements ScoringStrategy.
func (KeywordStrategy) Name() string { return "keyword" }

// Score implements ScoringStrategy.
func (KeywordStrategy) Score(_ context.Context, text string, _ []conversation.Turn) (intent.Intent, error) {
	lower := strings.ToLower(strings.TrimSpace(text)) + " "
	counts := []struct {
		t    intent.Type
		hits int
	}{
		{intent.TypeComplexTask, countHits(lower, complexMarkers)},
		{intent.TypeQuestionAnswer, countHits(lower, questionMarkers)},
		{intent.TypeSimpleChat, countHits(lower, chatMarkers)},
	}

	best, second := 0, -1
	for i := 1; i < len(counts); i++ {
		if counts[i].hits > counts[best].hits {
			second, best = best, i
		} else if second < 0 || counts[i].hits > counts[second].hits {
			second = i
		}
	}
	if counts[best].hits == 0 {
		return intent.New(intent.TypeSimpleChat, unclassifiedConfidence, nil, text), nil
	}

	confidence := 0.6 + 0.15*float64(counts[best].hits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	if second >= 0 && counts[second].hits == counts[best].hits {
		confidence -= 0.2
	}
	return intent.New(counts[best].t, confidence, nil, text), nil
}

func countHits(lower string, markers []string) int {
	hits := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	return hits
}

const classifySystem = `分析用户输入的意图，返回JSON：
{"type":"simple_chat|complex_task|question_answer","confidence":0.0-1.0,"entities":{"名称":"值"}}
simple_chat：日常聊天；question_answer：信息查询或知识问答；complex_task：需要多步完成的任务。`

var classifySchema = json.RawMessage(`{"type":"object","required":["type","confidence"]}`)

// LLMStrategy asks the model to classify. It is meant as a secondary
// signal after the keyword strategy.
type LLMStrategy struct {
	Completer llm.Completer
	// HistoryTurns bounds how much history is shown to the model.
	HistoryTurns int
}

// Name implements ScoringStrategy.
func (s LLMStrategy) Name() string { return "llm" }

// Score implements ScoringStrategy.
func (s LLMStrategy) Score(ctx context.Context, text string, history []conversation.Turn) (intent.Intent, error) {
	n := s.HistoryTurns
	if n <= 0 {
		n = 4
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("对话历史：\n")
		for _, t := range history {
			sb.WriteString(string(t.Role))
			sb.WriteString(": ")
			sb.WriteString(t.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("用户输入：")
	sb.WriteString(text)

	req := llm.Prompt(classifySystem, sb.String())
	req.Temperature = 0.1
	req.Schema = classifySchema
	resp, err := s.Completer.Complete(ctx, req)
	if err != nil {
		return intent.Intent{}, err
	}
	var out struct {
		Type       string            `json:"type"`
		Confidence float64           `json:"confidence"`
		Entities   map[string]string `json:"entities"`
	}
	if err := llm.Decode(resp.Content, classifySchema, &out); err != nil {
		return intent.Intent{}, err
	}
	t := intent.Type(out.Type)
	if !t.IsValid() {
		return intent.New(intent.TypeSimpleChat, unclassifiedConfidence, out.Entities, text), nil
	}
	return intent.New(t, out.Confidence, out.Entities, text), nil
}

var (
	durationPattern = regexp.MustCompile(`([0-9]+|[一二两三四五六七八九十]+)\s*(天|日|晚|周|days?|nights?|weeks?)`)
	budgetPattern   = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*(元|块|万|rmb|美元|usd|dollars?)|[$￥¥]\s*([0-9]+(?:\.[0-9]+)?)`)
	placeSuffixes   = []string{"旅行", "旅游", "游玩", "之旅", "自由行", "出差"}
)

// ExtractEntities pulls the duration, budget and destination mentioned in
// text. Missing entities are simply absent.
func ExtractEntities(text string) map[string]string {
	out := make(map[string]string)
	if m := durationPattern.FindString(text); m != "" {
		out["duration"] = strings.TrimSpace(m)
	}
	if m := budgetPattern.FindString(text); m != "" {
		out["budget"] = strings.TrimSpace(m)
	}
	if d := placeBefore(text); d != "" {
		out["destination"] = d
	}
	if w, ok := textmatch.ContainsAny(text, "明天", "后天", "下周", "下个月", "周末", "tomorrow", "next week"); ok {
		out["date"] = w
	}
	return out
}

// placeBefore finds the run of Han characters directly before a travel
// suffix, as in "北京旅行". The run stops at "的", digits and punctuation.
func placeBefore(text string) string {
	for _, suffix := range placeSuffixes {
		idx := strings.Index(text, suffix)
		if idx <= 0 {
			continue
		}
		runes := []rune(text[:idx])
		end := len(runes)
		start := end
		for start > 0 && end-start < 6 {
			r := runes[start-1]
			if !isHan(r) || strings.ContainsRune("的个次趟去到在和天晚周一二两三四五六七八九十", r) {
				break
			}
			start--
		}
		if start < end {
			return string(runes[start:end])
		}
	}
	return ""
}

func isHan(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
