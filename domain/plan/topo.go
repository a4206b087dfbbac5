package plan

import "fmt"

// TopologicalOrder linearizes subtasks with Kahn's algorithm. Ties are broken
// by declaration order so the result is deterministic.
func TopologicalOrder(subtasks []Subtask) ([]string, error) {
	if len(subtasks) == 0 {
		return nil, ErrEmptyPlan
	}

	index := make(map[string]int, len(subtasks))
	for i, st := range subtasks {
		if _, dup := index[st.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSubtask, st.ID)
		}
		index[st.ID] = i
	}

	indegree := make([]int, len(subtasks))
	dependents := make([][]int, len(subtasks))
	for i, st := range subtasks {
		for _, dep := range st.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, st.ID, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]string, 0, len(subtasks))
	done := make([]bool, len(subtasks))
	for len(order) < len(subtasks) {
		progressed := false
		for i := range subtasks {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			order = append(order, subtasks[i].ID)
			for _, d := range dependents[i] {
				indegree[d]--
			}
		}
		if !progressed {
			return nil, ErrPlanningCycle
		}
	}
	return order, nil
}

// Validate checks that a plan is non-empty, its order covers every subtask
// and every dependency precedes its dependent.
func (p TaskPlan) Validate() error {
	if len(p.Subtasks) == 0 {
		return ErrEmptyPlan
	}
	if len(p.Order) != len(p.Subtasks) {
		return fmt.Errorf("order covers %d of %d subtasks", len(p.Order), len(p.Subtasks))
	}
	pos := make(map[string]int, len(p.Order))
	for i, id := range p.Order {
		pos[id] = i
	}
	for id, st := range p.Subtasks {
		at, ok := pos[id]
		if !ok {
			return fmt.Errorf("subtask %s missing from order", id)
		}
		for _, dep := range st.DependsOn {
			dp, ok := pos[dep]
			if !ok {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, id, dep)
			}
			if dp >= at {
				return fmt.Errorf("%w: %s ordered before dependency %s", ErrPlanningCycle, id, dep)
			}
		}
	}
	return nil
}
