// Package intent provides the classified purpose of a user message.
package intent

import "errors"

// Type classifies what the user wants from a turn.
type Type string

const (
	TypeSimpleChat     Type = "simple_chat"
	TypeComplexTask    Type = "complex_task"
	TypeQuestionAnswer Type = "question_answer"
)

// DefaultThreshold is the confidence below which a turn asks for clarification.
const DefaultThreshold = 0.7

// ErrClassificationUncertain marks an intent whose confidence is below threshold.
// It routes the turn to clarification and is never surfaced as a failure.
var ErrClassificationUncertain = errors.New("intent classification uncertain")

// IsValid returns true for the three recognized intent types.
func (t Type) IsValid() bool {
	switch t {
	case TypeSimpleChat, TypeComplexTask, TypeQuestionAnswer:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// Intent is the immutable result of classifying one message.
type Intent struct {
	Type       Type              `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	RawText    string            `json:"raw_text"`
}

// New creates an intent with the confidence clamped to [0,1] and a copied entity map.
func New(t Type, confidence float64, entities map[string]string, raw string) Intent {
	if !t.IsValid() {
		t = TypeSimpleChat
	}
	return Intent{
		Type:       t,
		Confidence: clamp(confidence),
		Entities:   copyEntities(entities),
		RawText:    raw,
	}
}

// Uncertain reports whether the intent falls below the given threshold.
func (i Intent) Uncertain(threshold float64) bool {
	return i.Confidence < threshold
}

// IsComplex reports whether the intent requires task planning.
func (i Intent) IsComplex() bool {
	return i.Type == TypeComplexTask
}

// Entity returns an extracted entity value.
func (i Intent) Entity(name string) (string, bool) {
	v, ok := i.Entities[name]
	return v, ok
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyEntities(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
