package memory

import (
	"sync"

	"github.com/felixgeelhaar/agent-router/domain/specialist"
)

// SpecialistRegistry keeps specialists in registration order, which is the
// tie-break order when scores are equal.
type SpecialistRegistry struct {
	order []specialist.Specialist
	names map[string]struct{}
	mu    sync.RWMutex
}

// NewSpecialistRegistry creates an empty registry.
func NewSpecialistRegistry() *SpecialistRegistry {
	return &SpecialistRegistry{names: make(map[string]struct{})}
}

// Register appends a specialist. Names must be unique.
func (r *SpecialistRegistry) Register(s specialist.Specialist) error {
	if s == nil || s.Name() == "" {
		return specialist.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[s.Name()]; ok {
		return specialist.ErrDuplicateSpecialist
	}
	r.names[s.Name()] = struct{}{}
	r.order = append(r.order, s)
	return nil
}

// All returns a snapshot of the registered specialists.
func (r *SpecialistRegistry) All() []specialist.Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]specialist.Specialist(nil), r.order...)
}

var _ specialist.Registry = (*SpecialistRegistry)(nil)
