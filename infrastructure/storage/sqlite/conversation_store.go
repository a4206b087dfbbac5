package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

// ConversationStore is a SQLite-backed implementation of conversation.Store.
// Idle conversations expire after the configured TTL.
type ConversationStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
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

	s := &ConversationStore{db: db, ttl: cfg.ConversationTTL, now: time.Now}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewConversationStoreFromDB creates a conversation store on an existing connection.
func NewConversationStoreFromDB(db *sql.DB, ttl time.Duration) (*ConversationStore, error) {
	s := &ConversationStore{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConversationStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			turn_count INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_expires ON conversations(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Load returns the state for id or conversation.ErrNotFound. Expired rows
// read as missing.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	var (
		data      []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, expires_at FROM conversations WHERE id = ?", id,
	).Scan(&data, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}
	if expiresAt.Valid && s.now().UnixNano() >= expiresAt.Int64 {
		return nil, conversation.ErrNotFound
	}

	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	st.Normalize()
	return &st, nil
}

// Save upserts the state and pushes its expiry forward.
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

	now := s.now()
	var expiresAt sql.NullInt64
	if s.ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(s.ttl).UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, turn_count, data, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			turn_count = excluded.turn_count,
			data = excluded.data,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		st.ID, st.UserID, st.TurnCount, data, now.UnixNano(), expiresAt,
	)
	return err
}

// Delete removes a conversation. Deleting a missing id is not an error.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	return err
}

// Sweep deletes expired conversations and returns how many were removed.
func (s *ConversationStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE expires_at IS NOT NULL AND expires_at <= ?",
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

var _ conversation.Store = (*ConversationStore)(nil)
