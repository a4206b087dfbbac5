package memory

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/memory"
)

// MemoryStore is an in-memory implementation of memory.Store.
type MemoryStore struct {
	records map[string]memory.Record
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memory.Record),
		now:     time.Now,
	}
}

// Save stores or replaces a record.
func (s *MemoryStore) Save(ctx context.Context, r memory.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.Metadata = copyMetadata(r.Metadata)

	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
	return nil
}

// Query returns matching records ordered by relevance.
func (s *MemoryStore) Query(ctx context.Context, q memory.Query) ([]memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := make([]memory.Record, 0, len(s.records))
	for _, r := range s.records {
		r.Metadata = copyMetadata(r.Metadata)
		all = append(all, r)
	}
	s.mu.RUnlock()

	return memory.Rank(all, q, s.now()), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return memory.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ memory.Store = (*MemoryStore)(nil)
