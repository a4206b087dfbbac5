// Package specialist provides domain handlers that process subtasks.
package specialist

import (
	"context"
	"errors"
	"sort"

	"github.com/felixgeelhaar/agent-router/domain/assembly"
	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/plan"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// Domain errors for specialist dispatch.
var (
	// ErrSpecialistUnavailable indicates no specialist claimed a task.
	ErrSpecialistUnavailable = errors.New("specialist unavailable")

	// ErrDuplicateSpecialist indicates a name is already registered.
	ErrDuplicateSpecialist = errors.New("specialist already registered")

	// ErrEmptyName indicates a specialist without a name.
	ErrEmptyName = errors.New("specialist name cannot be empty")
)

// Dispatcher lets a specialist invoke capability ports. Failures are
// reported on the returned call, never as a panic or error.
type Dispatcher interface {
	DispatchTool(ctx context.Context, kind tooling.Kind, args tooling.Args) tooling.Call
}

// Input is everything a specialist sees for one subtask.
type Input struct {
	Subtask      plan.Subtask
	Request      string
	Intent       intent.Intent
	Context      assembly.Context
	Dependencies []plan.Result
	Tools        Dispatcher
}

// Specialist scores and processes subtasks. Score returns a value in [0,1].
type Specialist interface {
	Name() string
	Score(task plan.Subtask) float64
	Process(ctx context.Context, in Input) (plan.Result, error)
}

// Registry holds specialists in registration order.
type Registry interface {
	Register(s Specialist) error
	All() []Specialist
}

// Scored pairs a specialist with its score for a task.
type Scored struct {
	Specialist Specialist
	Score      float64
}

// Rank scores every specialist for the task, best first. Equal scores keep
// registration order.
func Rank(specialists []Specialist, task plan.Subtask) []Scored {
	out := make([]Scored, 0, len(specialists))
	for _, s := range specialists {
		out = append(out, Scored{Specialist: s, Score: s.Score(task)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Select returns the highest-scoring specialist whose score reaches floor.
// It returns ErrSpecialistUnavailable when none qualifies.
func Select(specialists []Specialist, task plan.Subtask, floor float64) (Specialist, float64, error) {
	ranked := Rank(specialists, task)
	if len(ranked) == 0 || ranked[0].Score < floor || ranked[0].Score <= 0 {
		return nil, 0, ErrSpecialistUnavailable
	}
	return ranked[0].Specialist, ranked[0].Score, nil
}
