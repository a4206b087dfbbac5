package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
)

const (
	// maxLikeTerms bounds the OR clauses a text query expands to.
	maxLikeTerms = 16

	// candidateWindow bounds how many prefiltered rows are ranked in process.
	candidateWindow = 500
)

// MemoryStore is a SQLite-backed implementation of memory.Store. Text
// queries prefilter with LIKE and rank the candidates with memory.Rank.
type MemoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMemoryStore opens a database and creates a memory store.
func NewMemoryStore(cfg Config, opts ...Option) (*MemoryStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{db: db, now: time.Now}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewMemoryStoreFromDB creates a memory store on an existing connection.
func NewMemoryStoreFromDB(db *sql.DB) (*MemoryStore, error) {
	s := &MemoryStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save upserts a record.
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

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, conversation_id, user_id, kind, content, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			user_id = excluded.user_id,
			kind = excluded.kind,
			content = excluded.content,
			data = excluded.data,
			created_at = excluded.created_at`,
		r.ID, r.ConversationID, r.UserID, string(r.Kind), r.Content, data, r.CreatedAt.UnixNano(),
	)
	return err
}

// Query filters in SQL and ranks the candidates in process.
func (s *MemoryStore) Query(ctx context.Context, q memory.Query) ([]memory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, q.ConversationID)
	}
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if tokens := textmatch.Tokens(q.Text); len(tokens) > 0 {
		clause, likeArgs := likeTerms("content", tokens, maxLikeTerms)
		where = append(where, clause)
		args = append(args, likeArgs...)
	}

	query := "SELECT data FROM memories"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, candidateWindow)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []memory.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r memory.Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue // Skip malformed entries
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return memory.Rank(records, q, s.now()), nil
}

// Delete removes a record or returns memory.ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

var _ memory.Store = (*MemoryStore)(nil)
