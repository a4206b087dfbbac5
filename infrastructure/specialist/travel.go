package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	domain "github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// TravelName is the registry name of the travel planner.
const TravelName = "travel"

var travelKeywords = []string{
	"旅行", "旅游", "出行", "度假", "景点", "酒店", "机票",
	"行程", "路线", "攻略", "签证", "预算", "住宿", "交通",
	"美食", "购物", "天气", "季节", "目的地", "游玩",
	"travel", "trip", "itinerary", "hotel", "flight", "vacation",
}

const travelAnalyzeSystem = `分析用户的旅行需求，提取关键信息，返回JSON：
{"destination":"目的地","duration":"旅行天数","budget":"预算范围","travel_style":"旅行风格","interests":["兴趣点"],"travel_date":"出行时间","group_size":"人数"}
如果某些信息未提及，设为空字符串。`

const travelPlanSystem = `你是一个专业的旅行规划师。基于用户需求和搜索到的信息，制定详细的旅行计划。
计划应该包括：目的地介绍、推荐行程安排、景点推荐、住宿建议、美食推荐、交通建议、预算估算、注意事项。
请生成结构化、实用的旅行计划。`

var travelSchema = json.RawMessage(`{"type":"object","required":["destination"]}`)

// TravelRequest is what the travel planner extracts from a message.
type TravelRequest struct {
	Destination string   `json:"destination"`
	Duration    string   `json:"duration,omitempty"`
	Budget      string   `json:"budget,omitempty"`
	Style       string   `json:"travel_style,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Date        string   `json:"travel_date,omitempty"`
	GroupSize   string   `json:"group_size,omitempty"`
}

// Travel builds trip plans from a destination search and the model.
type Travel struct {
	completer llm.Completer
}

// NewTravel creates a travel specialist. c may be nil.
func NewTravel(c llm.Completer) *Travel {
	return &Travel{completer: c}
}

// Name implements specialist.Specialist.
func (t *Travel) Name() string { return TravelName }

// Score implements specialist.Specialist.
func (t *Travel) Score(task plan.Subtask) float64 {
	return keywordScore(task.Description, travelKeywords)
}

// Process implements specialist.Specialist.
func (t *Travel) Process(ctx context.Context, in domain.Input) (plan.Result, error) {
	req := t.analyze(ctx, in)

	var found string
	var calls []tooling.Call
	if req.Destination != "" {
		found, calls = search(ctx, in.Tools, req.Destination+" 旅游攻略 景点 美食 住宿", 3)
	}

	if t.completer == nil {
		return result(TravelName, in, travelAdvice(req.Destination), 0.3, calls), nil
	}

	var sb strings.Builder
	sb.WriteString(brief(in))
	sb.WriteString("\n\n## 旅行需求\n")
	fmt.Fprintf(&sb, "- 目的地：%s\n", orUnset(req.Destination))
	fmt.Fprintf(&sb, "- 旅行天数：%s\n", orUnset(req.Duration))
	fmt.Fprintf(&sb, "- 预算：%s\n", orUnset(req.Budget))
	fmt.Fprintf(&sb, "- 旅行风格：%s\n", orUnset(req.Style))
	fmt.Fprintf(&sb, "- 兴趣点：%s\n", strings.Join(req.Interests, ", "))
	fmt.Fprintf(&sb, "- 出行时间：%s\n", orUnset(req.Date))
	fmt.Fprintf(&sb, "- 人数：%s\n", orUnset(req.GroupSize))
	sb.WriteString("\n## 搜索到的相关信息\n")
	if found != "" {
		sb.WriteString(found)
	} else {
		sb.WriteString("暂无相关搜索结果")
	}

	content, err := complete(ctx, t.completer, travelPlanSystem, sb.String(), 0.7)
	if err != nil {
		return plan.Result{}, fmt.Errorf("travel: %w", err)
	}
	return result(TravelName, in, content, 0.85, calls), nil
}

// analyze extracts the trip parameters. The intent's destination entity
// wins; the model is asked next; a marker scan is the last resort.
func (t *Travel) analyze(ctx context.Context, in domain.Input) TravelRequest {
	var req TravelRequest
	if t.completer != nil {
		r := llm.Prompt(travelAnalyzeSystem, task(in))
		r.Temperature = 0.3
		r.Schema = travelSchema
		if resp, err := t.completer.Complete(ctx, r); err == nil {
			_ = llm.Decode(resp.Content, travelSchema, &req)
		}
	}
	if d, ok := in.Intent.Entity("destination"); ok && d != "" {
		req.Destination = d
	}
	if req.Destination == "" || req.Destination == "未指定" {
		req.Destination = ExtractDestination(task(in))
	}
	return req
}

// travelCues name a trip outright. Keywords such as 预算 or 交通 score for
// the travel specialist but also appear in unrelated tasks.
var travelCues = []string{
	"旅行", "旅游", "出行", "度假", "行程", "自由行", "出游", "游玩", "攻略",
	"travel", "trip", "itinerary", "vacation",
}

// IsTravelRequest reports whether text asks for a trip.
func IsTravelRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range travelCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

var destinationMarkers = []string{"前往", "去", "到", "游览", "visit ", "to "}

// ExtractDestination returns the place named after the first travel marker
// ("去", "到", "前往", "to "), or "" when there is none.
func ExtractDestination(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range destinationMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		rest := []rune(text[idx+len(marker):])
		var out []rune
		for _, r := range rest {
			if unicode.IsSpace(r) && len(out) == 0 {
				continue
			}
			if unicode.IsPunct(r) || unicode.IsSpace(r) || strings.ContainsRune("旅玩的度看出住", r) {
				break
			}
			out = append(out, r)
			if len(out) >= 8 {
				break
			}
		}
		if len(out) > 0 {
			return string(out)
		}
	}
	return ""
}

func travelAdvice(destination string) string {
	return fmt.Sprintf("根据您的需求（目的地：%s），建议您：\n"+
		"1. 提前查询目的地天气和最佳旅行时间\n"+
		"2. 预订合适的住宿和交通\n"+
		"3. 了解当地的文化和习俗\n"+
		"4. 准备必要的证件和物品", orUnset(destination))
}

func orUnset(s string) string {
	if strings.TrimSpace(s) == "" {
		return "未指定"
	}
	return s
}

var _ domain.Specialist = (*Travel)(nil)
