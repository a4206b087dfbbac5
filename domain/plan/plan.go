// Package plan provides the task decomposition model: subtasks, plans and results.
package plan

import (
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// Status tracks a subtask through execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// IsFinished reports whether the subtask no longer blocks its dependents.
func (s Status) IsFinished() bool {
	return s == StatusDone || s == StatusFailed
}

// Subtask is one atomic unit of a decomposed request.
type Subtask struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Specialist  string   `json:"assigned_specialist,omitempty"`
	Status      Status   `json:"status"`
}

// TaskPlan is an acyclic set of subtasks together with a linear execution order.
type TaskPlan struct {
	Request   string             `json:"root_request"`
	Subtasks  map[string]Subtask `json:"subtasks"`
	Order     []string           `json:"order"`
	Fallback  bool               `json:"fallback,omitempty"`
	Truncated int                `json:"truncated,omitempty"`
}

// Ordered returns the subtasks in execution order.
func (p TaskPlan) Ordered() []Subtask {
	out := make([]Subtask, 0, len(p.Order))
	for _, id := range p.Order {
		if st, ok := p.Subtasks[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Len returns the number of subtasks.
func (p TaskPlan) Len() int {
	return len(p.Subtasks)
}

// Clone returns a deep copy of the plan.
func (p TaskPlan) Clone() TaskPlan {
	out := p
	out.Subtasks = make(map[string]Subtask, len(p.Subtasks))
	for id, st := range p.Subtasks {
		st.DependsOn = append([]string(nil), st.DependsOn...)
		out.Subtasks[id] = st
	}
	out.Order = append([]string(nil), p.Order...)
	return out
}

// Single returns a plan holding the whole request as one opaque subtask.
func Single(request, specialist string) TaskPlan {
	const id = "task-1"
	return TaskPlan{
		Request: request,
		Subtasks: map[string]Subtask{
			id: {ID: id, Description: request, Specialist: specialist, Status: StatusPending},
		},
		Order: []string{id},
	}
}

// Result is a specialist's output for one subtask.
type Result struct {
	SubtaskID  string         `json:"subtask_id"`
	Specialist string         `json:"specialist,omitempty"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	ToolCalls  []tooling.Call `json:"tool_calls,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Failed reports whether the subtask ended in an error.
func (r Result) Failed() bool {
	return r.Error != ""
}
