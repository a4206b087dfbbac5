// Package knowledge provides document chunks and the retrieval port.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/textmatch"
)

// Domain errors for knowledge storage.
var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrEmptyDocument indicates a document without content.
	ErrEmptyDocument = errors.New("document has no content")
)

// Document is a unit of ingested knowledge.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Chunk is a searchable slice of a document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	Index      int    `json:"index"`
}

// Hit is a chunk with its similarity score.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Searcher is the knowledge retrieval capability port. Hits are ordered by
// descending score.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Store adds ingestion to retrieval.
type Store interface {
	Searcher
	Add(ctx context.Context, doc Document) ([]Chunk, error)
	Delete(ctx context.Context, documentID string) error
}

// Split cuts a document into chunks of at most size runes, each overlapping
// the previous by overlap runes.
func Split(doc Document, size, overlap int) ([]Chunk, error) {
	runes := []rune(doc.Content)
	if len(runes) == 0 {
		return nil, ErrEmptyDocument
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	for start, i := 0, 0; start < len(runes); i++ {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s#%d", doc.ID, i),
			DocumentID: doc.ID,
			Title:      doc.Title,
			Content:    string(runes[start:end]),
			Index:      i,
		})
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks, nil
}

// Score is the lexical relevance of a chunk to a query, capped at 1. Title
// matches count at half weight.
func Score(query string, c Chunk) float64 {
	score := textmatch.Score(query, c.Content)
	if c.Title != "" {
		score += 0.5 * textmatch.Score(query, c.Title)
	}
	if score > 1 {
		score = 1
	}
	return score
}
