package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-router/domain/memory"
)

// DefaultScanWindow bounds how many of the newest records a query ranks.
const DefaultScanWindow = 500

// MemoryStore keeps records as JSON values indexed by a sorted set scored
// by creation time. Queries rank the newest window in process.
type MemoryStore struct {
	client     redis.UniversalClient
	keyPrefix  string
	scanWindow int64
	now        func() time.Time
}

// NewMemoryStore creates a memory store on an existing client.
func NewMemoryStore(client redis.UniversalClient, keyPrefix string) *MemoryStore {
	return &MemoryStore{
		client:     client,
		keyPrefix:  keyPrefix,
		scanWindow: DefaultScanWindow,
		now:        time.Now,
	}
}

func (s *MemoryStore) indexKey() string {
	return s.keyPrefix + "memory:index"
}

func (s *MemoryStore) recordKey(id string) string {
	return s.keyPrefix + "memory:record:" + id
}

// Save stores a record and indexes it by time.
func (s *MemoryStore) Save(ctx context.Context, r memory.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(r.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(r.CreatedAt.UnixNano()),
			Member: r.ID,
		})
		return nil
	})
	return err
}

// Query ranks the newest records against q.
func (s *MemoryStore) Query(ctx context.Context, q memory.Query) ([]memory.Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, s.scanWindow-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []memory.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]memory.Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r memory.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return memory.Rank(records, q, s.now()), nil
}

// Delete removes a record and its index entry.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.recordKey(id)).Result()
	if err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
		return err
	}
	if n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Count returns the number of indexed records.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return n, nil
}

var _ memory.Store = (*MemoryStore)(nil)
