package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
	badgerstore "github.com/felixgeelhaar/agent-router/infrastructure/storage/badger"
	dynamostore "github.com/felixgeelhaar/agent-router/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/agent-router/infrastructure/storage/failover"
	storemem "github.com/felixgeelhaar/agent-router/infrastructure/storage/memory"
	natsstore "github.com/felixgeelhaar/agent-router/infrastructure/storage/nats"
	pgstore "github.com/felixgeelhaar/agent-router/infrastructure/storage/postgres"
	redisstore "github.com/felixgeelhaar/agent-router/infrastructure/storage/redis"
	sqlitestore "github.com/felixgeelhaar/agent-router/infrastructure/storage/sqlite"
)

// ErrUnknownBackend is returned for a backend name no store implements.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Knowledge chunking used by every knowledge backend.
const (
	ChunkSize    = 500
	ChunkOverlap = 50
)

// stores opens the configured backends once and shares connections
// between the stores that use the same backend.
type stores struct {
	cfg     domainconfig.StorageConfig
	sqlite  *sql.DB
	redis   *goredis.Client
	prefix  string
	closers []func(context.Context) error
}

func newStores(cfg domainconfig.StorageConfig) *stores {
	return &stores{cfg: cfg}
}

func (s *stores) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func (s *stores) sqliteDB() (*sql.DB, error) {
	if s.sqlite != nil {
		return s.sqlite, nil
	}
	if dir := filepath.Dir(s.cfg.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sqlitestore.Open(sqlitestore.DefaultConfig(), sqlitestore.WithPath(s.cfg.SQLitePath))
	if err != nil {
		return nil, err
	}
	s.sqlite = db
	s.onClose(func(context.Context) error { return db.Close() })
	return db, nil
}

func (s *stores) redisClient() (*goredis.Client, error) {
	if s.redis != nil {
		return s.redis, nil
	}
	client, cfg, err := redisstore.Connect(redisstore.DefaultConfig(), redisstore.WithURL(s.cfg.RedisURL))
	if err != nil {
		return nil, err
	}
	s.redis = client
	s.prefix = cfg.KeyPrefix
	s.onClose(func(context.Context) error { return client.Close() })
	return client, nil
}

func (s *stores) conversations(ctx context.Context) (conversation.Store, error) {
	ttl := s.cfg.ConversationTTL.Duration()

	switch s.cfg.Conversations {
	case "", "memory":
		return storemem.NewConversationStore(ttl), nil
	case "redis":
		client, err := s.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.NewConversationStore(client, s.prefix, ttl), nil
	case "sqlite":
		db, err := s.sqliteDB()
		if err != nil {
			return nil, err
		}
		store, err := sqlitestore.NewConversationStoreFromDB(db, ttl)
		if err != nil {
			return nil, err
		}
		s.sweep(store)
		return store, nil
	case "badger":
		store, err := badgerstore.NewConversationStore(badgerstore.DefaultConfig(),
			badgerstore.WithDir(s.cfg.BadgerDir),
			badgerstore.WithConversationTTL(ttl),
		)
		if err != nil {
			return nil, err
		}
		s.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case "postgres":
		pgcfg := pgstore.DefaultConfig()
		pool, err := pgstore.NewPool(ctx, s.cfg.PostgresURL, pgcfg)
		if err != nil {
			return nil, err
		}
		s.onClose(func(context.Context) error { pool.Close(); return nil })
		store := pgstore.NewConversationStore(pool, pgcfg.Schema, ttl)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		s.sweep(store)
		return store, nil
	case "dynamodb":
		opts := []dynamostore.ConfigOption{dynamostore.WithConversationTTL(ttl)}
		if s.cfg.DynamoRegion != "" {
			opts = append(opts, dynamostore.WithRegion(s.cfg.DynamoRegion))
		}
		if s.cfg.DynamoTable != "" {
			opts = append(opts, dynamostore.WithConversationsTableName(s.cfg.DynamoTable))
		}
		client, err := dynamostore.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		if err := client.CreateConversationsTable(ctx); err != nil {
			return nil, err
		}
		return dynamostore.NewConversationStore(client), nil
	}
	return nil, fmt.Errorf("%w: conversations backend %q", ErrUnknownBackend, s.cfg.Conversations)
}

func (s *stores) memoryBackend(name string) (memory.Store, error) {
	switch name {
	case "", "memory":
		return storemem.NewMemoryStore(), nil
	case "redis":
		client, err := s.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.NewMemoryStore(client, s.prefix), nil
	case "sqlite":
		db, err := s.sqliteDB()
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewMemoryStoreFromDB(db)
	}
	return nil, fmt.Errorf("%w: memory backend %q", ErrUnknownBackend, name)
}

// memory opens the primary memory store. When a fallback is configured the
// two are combined so that an unreachable primary degrades to the fallback.
func (s *stores) memory() (memory.Store, error) {
	primary, err := s.memoryBackend(s.cfg.Memory)
	if err != nil {
		if s.cfg.MemoryFallback == "" {
			return nil, err
		}
		logging.Warn().
			Add(logging.Component("storage")).
			Add(logging.Str("backend", s.cfg.Memory)).
			Add(logging.ErrorField(err)).
			Msg("memory backend unavailable, using fallback only")
		return s.memoryBackend(s.cfg.MemoryFallback)
	}
	if s.cfg.MemoryFallback == "" || s.cfg.MemoryFallback == s.cfg.Memory {
		return primary, nil
	}
	fallback, err := s.memoryBackend(s.cfg.MemoryFallback)
	if err != nil {
		return nil, err
	}
	return failover.NewMemoryStore(primary, fallback), nil
}

func (s *stores) knowledge() (knowledge.Store, error) {
	switch s.cfg.Knowledge {
	case "", "memory":
		return storemem.NewKnowledgeStore(ChunkSize, ChunkOverlap), nil
	case "sqlite":
		db, err := s.sqliteDB()
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewKnowledgeStoreFromDB(db, ChunkSize, ChunkOverlap)
	}
	return nil, fmt.Errorf("%w: knowledge backend %q", ErrUnknownBackend, s.cfg.Knowledge)
}

// events returns nil for the "none" backend.
func (s *stores) events(ctx context.Context) (event.Store, error) {
	switch s.cfg.Events {
	case "", "memory":
		return storemem.NewEventStore(), nil
	case "none":
		return nil, nil
	case "sqlite":
		db, err := s.sqliteDB()
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewEventStoreFromDB(db)
	case "nats":
		streamCfg := natsstore.DefaultStreamConfig()
		if s.cfg.NATSURL != "" {
			streamCfg.URL = s.cfg.NATSURL
		}
		client, err := natsstore.Connect(ctx, streamCfg)
		if err != nil {
			return nil, err
		}
		s.onClose(func(context.Context) error { return client.Close() })
		return natsstore.NewEventStore(natsstore.Config{Client: client, SubjectPrefix: streamCfg.SubjectPrefix})
	}
	return nil, fmt.Errorf("%w: events backend %q", ErrUnknownBackend, s.cfg.Events)
}

// close releases connections in reverse opening order.
func (s *stores) close(ctx context.Context) error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// sweepInterval is how often SQL conversation stores purge expired rows.
const sweepInterval = 10 * time.Minute

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// sweep purges expired conversations until the stores are closed.
func (s *stores) sweep(store sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.Sweep(ctx)
				if err != nil {
					logging.Warn().
						Add(logging.Component("storage")).
						Add(logging.ErrorField(err)).
						Msg("conversation sweep failed")
					continue
				}
				if n > 0 {
					logging.Debug().
						Add(logging.Component("storage")).
						Add(logging.Count("expired", int(n))).
						Msg("swept expired conversations")
				}
			}
		}
	}()
	s.onClose(func(context.Context) error {
		cancel()
		<-done
		return nil
	})
}
