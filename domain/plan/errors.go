package plan

import "errors"

// Domain errors for planning and execution.
var (
	// ErrPlanningCycle indicates the dependency relation contains a cycle.
	ErrPlanningCycle = errors.New("planning cycle detected")

	// ErrUnknownDependency indicates a subtask depends on an id not in the plan.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDuplicateSubtask indicates two subtasks share an id.
	ErrDuplicateSubtask = errors.New("duplicate subtask id")

	// ErrSubtaskTimeout indicates a subtask exceeded its deadline.
	ErrSubtaskTimeout = errors.New("subtask timeout")

	// ErrSubtaskFailure indicates a specialist failed to process a subtask.
	ErrSubtaskFailure = errors.New("subtask failure")

	// ErrEmptyPlan indicates a plan without subtasks.
	ErrEmptyPlan = errors.New("plan has no subtasks")
)
