package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	domain "github.com/felixgeelhaar/agent-router/domain/specialist"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// ResearchName is the registry name of the research assistant.
const ResearchName = "research"

var researchKeywords = []string{
	"研究", "论文", "文献", "学术", "期刊", "会议", "数据",
	"实验", "分析", "理论", "方法", "模型", "算法", "假设",
	"综述", "调研", "统计", "结果", "结论", "创新", "发现",
	"research", "paper", "literature", "dataset", "hypothesis",
}

// ResearchKind is the flavor of a research request.
type ResearchKind string

const (
	LiteratureReview ResearchKind = "literature_review"
	DataAnalysis     ResearchKind = "data_analysis"
	ResearchDesign   ResearchKind = "research_design"
	PaperWriting     ResearchKind = "paper_writing"
	GeneralResearch  ResearchKind = "general_research"
)

type researchMode struct {
	kind        ResearchKind
	markers     []string
	system      string
	temperature float64
	confidence  float64
	searches    bool
}

// Modes are checked in order; the first with a marker hit wins.
var researchModes = []researchMode{
	{
		kind:        LiteratureReview,
		markers:     []string{"综述", "文献", "literature", "survey"},
		system:      "你是一个学术研究专家。基于搜索到的信息，提供文献综述和研究建议：研究领域概述、主要研究方向、关键发现和理论、研究空白和机会、建议的研究方法、推荐的学术资源。",
		temperature: 0.6,
		confidence:  0.8,
		searches:    true,
	},
	{
		kind:        DataAnalysis,
		markers:     []string{"数据分析", "统计", "数据", "statistic", "data analysis"},
		system:      "你是一个数据分析专家。请提供：数据分析方法建议、统计检验选择、分析步骤指导、结果解释建议、可视化建议、常见问题和注意事项。",
		temperature: 0.5,
		confidence:  0.85,
	},
	{
		kind:        ResearchDesign,
		markers:     []string{"实验设计", "研究设计", "假设", "实验", "experiment", "hypothesis"},
		system:      "你是一个研究方法专家。帮助用户设计科学的研究方案：研究问题、研究假设、方法选择、样本设计、数据收集、控制变量、伦理考量、时间和资源规划。",
		temperature: 0.6,
		confidence:  0.8,
	},
	{
		kind:        PaperWriting,
		markers:     []string{"论文写作", "写论文", "投稿", "论文", "paper", "manuscript"},
		system:      "你是一个学术写作专家。请提供：论文结构建议、写作技巧指导、引用规范说明、语言表达改进、逻辑结构优化、投稿策略建议。",
		temperature: 0.7,
		confidence:  0.8,
	},
}

var generalResearch = researchMode{
	kind:        GeneralResearch,
	system:      "你是一个综合性研究助手。基于用户的研究问题提供全面的学术支持：研究背景、相关理论和概念、研究方法建议、实践指导、学术资源推荐。",
	temperature: 0.7,
	confidence:  0.75,
	searches:    true,
}

// ClassifyResearch returns the research flavor of text.
func ClassifyResearch(text string) ResearchKind {
	return modeFor(text).kind
}

func modeFor(text string) researchMode {
	lower := strings.ToLower(text)
	for _, m := range researchModes {
		if _, ok := textmatch.ContainsAny(lower, m.markers...); ok {
			return m
		}
	}
	return generalResearch
}

// Research handles literature reviews, data analysis, study design and
// paper writing. Reviews and general questions search the web first.
type Research struct {
	completer llm.Completer
}

// NewResearch creates a research specialist. c may be nil.
func NewResearch(c llm.Completer) *Research {
	return &Research{completer: c}
}

// Name implements specialist.Specialist.
func (r *Research) Name() string { return ResearchName }

// Score implements specialist.Specialist.
func (r *Research) Score(task plan.Subtask) float64 {
	return keywordScore(task.Description, researchKeywords)
}

// Process implements specialist.Specialist.
func (r *Research) Process(ctx context.Context, in domain.Input) (plan.Result, error) {
	text := task(in)
	mode := modeFor(text)

	var found string
	var calls []tooling.Call
	if mode.searches {
		found, calls = search(ctx, in.Tools, text+" research academic paper study", 5)
	}

	if r.completer == nil {
		content := fmt.Sprintf("研究类型：%s\n请提供更具体的研究主题、数据或目标，以便给出详细建议。", mode.kind)
		if found != "" {
			content += "\n\n相关资料：\n" + found
		}
		return result(ResearchName, in, content, 0.3, calls), nil
	}

	user := brief(in)
	if found != "" {
		user += "\n\n## 相关信息\n" + found
	}
	content, err := complete(ctx, r.completer, mode.system, user, mode.temperature)
	if err != nil {
		return plan.Result{}, fmt.Errorf("research: %w", err)
	}
	return result(ResearchName, in, content, mode.confidence, calls), nil
}

var _ domain.Specialist = (*Research)(nil)
