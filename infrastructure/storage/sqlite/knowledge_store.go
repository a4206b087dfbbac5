package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/knowledge"
	"github.com/felixgeelhaar/agent-router/domain/textmatch"
)

// KnowledgeStore keeps documents and their chunks in two tables.
type KnowledgeStore struct {
	db        *sql.DB
	chunkSize int
	overlap   int
}

// NewKnowledgeStoreFromDB creates a knowledge store on an existing connection.
func NewKnowledgeStoreFromDB(db *sql.DB, chunkSize, overlap int) (*KnowledgeStore, error) {
	s := &KnowledgeStore{db: db, chunkSize: chunkSize, overlap: overlap}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KnowledgeStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Add ingests a document, replacing any previous version and its chunks.
func (s *KnowledgeStore) Add(ctx context.Context, doc knowledge.Document) ([]knowledge.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, knowledge.ErrEmptyDocument
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	chunks, err := knowledge.Split(doc, s.chunkSize, s.overlap)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source, data, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, source = excluded.source,
			data = excluded.data, created_at = excluded.created_at`,
		doc.ID, doc.Title, doc.Source, data, doc.CreatedAt.UnixNano(),
	); err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, idx, title, content) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Index, c.Title, c.Content); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Search prefilters chunks with LIKE and scores them with knowledge.Score.
func (s *KnowledgeStore) Search(ctx context.Context, query string, topK int) ([]knowledge.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 3
	}
	tokens := textmatch.Tokens(query)
	if len(tokens) == 0 {
		return []knowledge.Hit{}, nil
	}

	contentClause, args := likeTerms("content", tokens, maxLikeTerms)
	titleClause, titleArgs := likeTerms("title", tokens, maxLikeTerms)
	args = append(args, titleArgs...)
	args = append(args, candidateWindow)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document_id, idx, title, content FROM chunks WHERE "+
			contentClause+" OR "+titleClause+" LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hits := []knowledge.Hit{}
	for rows.Next() {
		var c knowledge.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Title, &c.Content); err != nil {
			return nil, err
		}
		if score := knowledge.Score(query, c); score > 0 {
			hits = append(hits, knowledge.Hit{Chunk: c, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes a document and its chunks.
func (s *KnowledgeStore) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return knowledge.ErrNotFound
	}
	return tx.Commit()
}

var _ knowledge.Store = (*KnowledgeStore)(nil)
