package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/memory"
)

// ConversationStore keeps conversations in BadgerDB. Expiry uses Badger's
// native entry TTL, refreshed on every save.
type ConversationStore struct {
	db        *badger.DB
	keyPrefix string
	ttl       time.Duration
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// NewConversationStore opens a database and creates a conversation store.
func NewConversationStore(cfg Config, opts ...Option) (*ConversationStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewConversationStoreFromDB(db, cfg.KeyPrefix, cfg.ConversationTTL)
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// NewConversationStoreFromDB creates a store on an existing database.
func NewConversationStoreFromDB(db *badger.DB, keyPrefix string, ttl time.Duration) *ConversationStore {
	return &ConversationStore{
		db:        db,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		gcStop:    make(chan struct{}),
	}
}

// startGC reclaims value log space left behind by expired conversations.
func (s *ConversationStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

func (s *ConversationStore) key(id string) []byte {
	return []byte(s.keyPrefix + memory.ConversationKey(id))
}

// Load returns the state for id or conversation.ErrNotFound.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	st.Normalize()
	return &st, nil
}

// Save writes the state with a fresh TTL.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st == nil || st.ID == "" {
		return conversation.ErrInvalidID
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(s.key(st.ID), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a conversation. Deleting a missing id is not an error.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(id))
	})
}

// IDs lists the ids of all live conversations.
func (s *ConversationStore) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.keyPrefix + memory.ConversationKey(""))
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

// Close stops GC and closes the database.
func (s *ConversationStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		err = s.db.Close()
	})
	return err
}

var _ conversation.Store = (*ConversationStore)(nil)
