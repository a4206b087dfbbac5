// Package badger provides an embedded BadgerDB conversation store.
package badger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// ErrConnectionFailed is returned when the database cannot be opened.
var ErrConnectionFailed = errors.New("badger: connection failed")

// Config configures the embedded database.
type Config struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string
	InMemory bool

	SyncWrites bool

	// ValueLogFileSize caps each value log file, in bytes.
	ValueLogFileSize int64

	// GCInterval runs value log GC; zero disables it. Each run rewrites
	// files whose discardable share exceeds GCDiscardRatio.
	GCInterval     time.Duration
	GCDiscardRatio float64

	KeyPrefix string

	// ConversationTTL expires conversations idle for longer. Zero disables expiry.
	ConversationTTL time.Duration
}

// Option configures the database.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

// WithInMemory keeps everything in memory.
func WithInMemory() Option {
	return func(c *Config) { c.InMemory = true }
}

// WithSyncWrites fsyncs every write.
func WithSyncWrites() Option {
	return func(c *Config) { c.SyncWrites = true }
}

// WithGC sets the value log GC schedule.
func WithGC(interval time.Duration, discardRatio float64) Option {
	return func(c *Config) {
		c.GCInterval = interval
		c.GCDiscardRatio = discardRatio
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) { c.KeyPrefix = prefix }
}

// WithConversationTTL sets the inactivity expiry for conversations.
func WithConversationTTL(ttl time.Duration) Option {
	return func(c *Config) { c.ConversationTTL = ttl }
}

// DefaultConfig returns the defaults used by the router.
func DefaultConfig() Config {
	return Config{
		ValueLogFileSize: 64 << 20,
		GCInterval:       5 * time.Minute,
		GCDiscardRatio:   0.5,
		KeyPrefix:        "router:",
		ConversationTTL:  24 * time.Hour,
	}
}

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(dbLogger{})
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return db, nil
}

// dbLogger forwards Badger's warnings and errors to the router log.
type dbLogger struct{}

func (dbLogger) Errorf(format string, args ...any) {
	logging.Error().Add(logging.Component("badger")).Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (dbLogger) Warningf(format string, args ...any) {
	logging.Warn().Add(logging.Component("badger")).Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (dbLogger) Infof(string, ...any)  {}
func (dbLogger) Debugf(string, ...any) {}
