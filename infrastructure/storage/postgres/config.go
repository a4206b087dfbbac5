// Package postgres provides a PostgreSQL conversation store built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConnectionFailed is returned when the pool cannot reach the server.
var ErrConnectionFailed = errors.New("postgres: connection failed")

// Config configures the PostgreSQL connection pool.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxConns and MinConns size the pool.
	MaxConns int32
	MinConns int32

	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// Schema qualifies every table name.
	Schema string

	// ConversationTTL expires conversations idle for longer. Zero disables expiry.
	ConversationTTL time.Duration
}

// ConfigOption configures the pool.
type ConfigOption func(*Config)

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "router",
		User:            "postgres",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		Schema:          "public",
		ConversationTTL: 24 * time.Hour,
	}
}

// ConnectionString renders the libpq keyword/value DSN.
func (c Config) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

// WithPoolSize sets the minimum and maximum pool size.
func WithPoolSize(minConns, maxConns int32) ConfigOption {
	return func(c *Config) {
		c.MinConns = minConns
		c.MaxConns = maxConns
	}
}

// WithSchema sets the table schema.
func WithSchema(schema string) ConfigOption {
	return func(c *Config) { c.Schema = schema }
}

// WithConversationTTL sets the inactivity expiry for conversations.
func WithConversationTTL(ttl time.Duration) ConfigOption {
	return func(c *Config) { c.ConversationTTL = ttl }
}

// NewPool opens a pgx pool and verifies it with a ping. A non-empty dsn
// (URL or keyword/value form) overrides the host fields of cfg.
func NewPool(ctx context.Context, dsn string, cfg Config, opts ...ConfigOption) (*pgxpool.Pool, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if dsn == "" {
		dsn = cfg.ConnectionString()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return pool, nil
}
