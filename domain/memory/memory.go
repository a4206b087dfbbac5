// Package memory provides long-term memory records and the store port.
package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/textmatch"
)

// Kind classifies a memory record.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindPreference   Kind = "preference"
	KindFact         Kind = "fact"
)

// Domain errors for memory persistence.
var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("memory record not found")

	// ErrInvalidRecord indicates a record without id or content.
	ErrInvalidRecord = errors.New("invalid memory record")
)

// Record is one remembered item.
type Record struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	Kind           Kind              `json:"kind"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Validate reports whether the record can be stored.
func (r Record) Validate() error {
	if r.ID == "" || r.Content == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Query selects records. Empty filters match everything; Text ranks by
// textual match and recency. Limit <= 0 means the store default.
type Query struct {
	Text           string
	ConversationID string
	UserID         string
	Kind           Kind
	Limit          int
}

// Matches reports whether the record passes the query's exact filters.
func (q Query) Matches(r Record) bool {
	if q.ConversationID != "" && r.ConversationID != q.ConversationID {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}

// DefaultLimit applies when a query does not set one.
const DefaultLimit = 5

// Store is the memory capability port. Query returns records ordered by
// relevance, most relevant first.
type Store interface {
	Save(ctx context.Context, record Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// ConversationKey returns the storage key for a conversation's records.
func ConversationKey(id string) string {
	return "conversation:" + id
}

// PreferenceKey returns the storage key for a user's preferences.
func PreferenceKey(userID string) string {
	return "user_preference:" + userID
}

// Rank filters records by q and orders them by relevance. With query text,
// records that share no tokens with it are dropped and the rest are scored
// by match first and recency second. Without text the newest come first.
func Rank(records []Record, q Query, now time.Time) []Record {
	type scored struct {
		rec   Record
		score float64
	}
	var candidates []scored
	for _, r := range records {
		if !q.Matches(r) {
			continue
		}
		score := recency(r.CreatedAt, now)
		if q.Text != "" {
			m := textmatch.Score(q.Text, r.Content)
			if m == 0 {
				continue
			}
			score = 0.8*m + 0.2*score
		}
		candidates = append(candidates, scored{rec: r, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.CreatedAt.After(candidates[j].rec.CreatedAt)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Record, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out
}

// recency decays from 1 for a fresh record towards 0 over days.
func recency(at, now time.Time) float64 {
	age := now.Sub(at).Hours()
	if age < 0 {
		age = 0
	}
	return 1 / (1 + age/24)
}
