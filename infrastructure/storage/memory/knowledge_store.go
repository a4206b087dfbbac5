package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/knowledge"
)

// KnowledgeStore is an in-memory lexical knowledge base.
type KnowledgeStore struct {
	docs      map[string]knowledge.Document
	chunks    map[string][]knowledge.Chunk // documentID -> chunks
	chunkSize int
	overlap   int
	mu        sync.RWMutex
}

// NewKnowledgeStore creates a store that splits documents into chunks of
// chunkSize runes overlapping by overlap runes.
func NewKnowledgeStore(chunkSize, overlap int) *KnowledgeStore {
	return &KnowledgeStore{
		docs:      make(map[string]knowledge.Document),
		chunks:    make(map[string][]knowledge.Chunk),
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Add ingests a document, replacing any previous version.
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

	s.mu.Lock()
	s.docs[doc.ID] = doc
	s.chunks[doc.ID] = chunks
	s.mu.Unlock()

	return append([]knowledge.Chunk(nil), chunks...), nil
}

// Search scores every chunk against the query. Title matches count toward
// the score at half weight.
func (s *KnowledgeStore) Search(ctx context.Context, query string, topK int) ([]knowledge.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	var hits []knowledge.Hit
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if score := knowledge.Score(query, c); score > 0 {
				hits = append(hits, knowledge.Hit{Chunk: c, Score: score})
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return knowledge.ErrNotFound
	}
	delete(s.docs, documentID)
	delete(s.chunks, documentID)
	return nil
}

var _ knowledge.Store = (*KnowledgeStore)(nil)
