package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

// ConversationStore keeps each conversation as a JSONB document.
type ConversationStore struct {
	pool   *pgxpool.Pool
	schema string
	ttl    time.Duration
}

// NewConversationStore creates a store on an existing pool.
func NewConversationStore(pool *pgxpool.Pool, schema string, ttl time.Duration) *ConversationStore {
	if schema == "" {
		schema = "public"
	}
	return &ConversationStore{
		pool:   pool,
		schema: schema,
		ttl:    ttl,
	}
}

// tableName returns the fully qualified table name.
func (s *ConversationStore) tableName() string {
	return fmt.Sprintf("%s.conversations", s.schema)
}

// Migrate creates the conversations table if it does not exist.
func (s *ConversationStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			turn_count BIGINT NOT NULL DEFAULT 0,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS conversations_expires_at_idx ON %[1]s (expires_at);
	`, s.tableName())
	_, err := s.pool.Exec(ctx, ddl)
	return s.wrapError(err)
}

// Load returns the state for id or conversation.ErrNotFound.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	query := fmt.Sprintf(`
		SELECT state FROM %s
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > now())
	`, s.tableName())

	var data []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversation.ErrNotFound
		}
		return nil, s.wrapError(err)
	}

	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	st.Normalize()
	return &st, nil
}

// Save upserts the state and pushes its expiry forward.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return conversation.ErrInvalidID
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	now := time.Now()
	var expiresAt *time.Time
	if s.ttl > 0 {
		t := now.Add(s.ttl)
		expiresAt = &t
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, turn_count, state, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			turn_count = EXCLUDED.turn_count,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query, st.ID, st.UserID, st.TurnCount, data, now, expiresAt)
	return s.wrapError(err)
}

// Delete removes a conversation. Deleting a missing id is not an error.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName())
	_, err := s.pool.Exec(ctx, query, id)
	return s.wrapError(err)
}

// Sweep deletes expired conversations.
func (s *ConversationStore) Sweep(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, s.tableName())
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, s.wrapError(err)
	}
	return tag.RowsAffected(), nil
}

// wrapError wraps driver errors with ErrConnectionFailed, keeping timeouts
// recognizable.
func (s *ConversationStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ conversation.Store = (*ConversationStore)(nil)
