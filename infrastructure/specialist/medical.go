package specialist

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-router/domain/llm"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	domain "github.com/felixgeelhaar/agent-router/domain/specialist"
)

// MedicalName is the registry name of the health specialist.
const MedicalName = "medical"

// Disclaimer is appended to every health answer.
const Disclaimer = "\n\n⚠️ 重要提醒：本建议仅供参考，不能替代专业医疗诊断。如症状持续或加重，请及时就医。"

var medicalKeywords = []string{
	"症状", "病症", "疼痛", "发烧", "咳嗽", "头痛", "腹痛",
	"治疗", "药物", "医院", "医生", "健康", "疾病", "体检",
	"药品", "副作用", "诊断", "检查", "手术",
	"symptom", "fever", "cough", "headache", "doctor", "medicine", "health",
}

const medicalSystem = `你是一个专业的医疗健康助手。请注意：
1. 提供健康建议和基本医疗知识
2. 不能替代专业医生的诊断和治疗
3. 对于严重症状，建议及时就医
4. 回答要准确、负责任
5. 如果不确定，明确说明并建议咨询医生
请基于用户描述的症状或问题，提供专业的健康建议。`

const medicalOffline = `目前无法生成个性化的健康建议。一般建议：
1. 记录症状出现的时间、频率和严重程度
2. 注意休息并保持充足饮水
3. 避免自行服用处方药物
4. 症状严重或持续时请尽快就医`

// Medical answers health questions conservatively and always appends the
// disclaimer.
type Medical struct {
	completer llm.Completer
}

// NewMedical creates a medical specialist. c may be nil.
func NewMedical(c llm.Completer) *Medical {
	return &Medical{completer: c}
}

// Name implements specialist.Specialist.
func (m *Medical) Name() string { return MedicalName }

// Score implements specialist.Specialist.
func (m *Medical) Score(task plan.Subtask) float64 {
	return keywordScore(task.Description, medicalKeywords)
}

// Process implements specialist.Specialist.
func (m *Medical) Process(ctx context.Context, in domain.Input) (plan.Result, error) {
	if m.completer == nil {
		return result(MedicalName, in, medicalOffline+Disclaimer, 0.4, nil), nil
	}
	content, err := complete(ctx, m.completer, medicalSystem, brief(in)+"\n\n请提供专业的医疗健康建议。", 0.3)
	if err != nil {
		return plan.Result{}, fmt.Errorf("medical: %w", err)
	}
	return result(MedicalName, in, content+Disclaimer, 0.8, nil), nil
}

var _ domain.Specialist = (*Medical)(nil)
