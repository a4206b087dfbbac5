package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-router/domain/event"
)

// EventStore keeps turn events in a turn_events table keyed by
// (conversation_id, seq) and indexed by turn, so a single turn is read
// without scanning its conversation.
type EventStore struct {
	db     *sql.DB
	ownsDB bool
	hub    *fanout
}

// NewEventStore opens a database and creates an event store that closes it.
func NewEventStore(cfg Config, opts ...Option) (*EventStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &EventStore{db: db, ownsDB: true, hub: newFanout()}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewEventStoreFromDB creates an event store on a shared connection. Close
// leaves the connection open.
func NewEventStoreFromDB(db *sql.DB) (*EventStore, error) {
	s := &EventStore{db: db, hub: newFanout()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EventStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turn_events (
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			turn_id TEXT NOT NULL DEFAULT '',
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			at INTEGER NOT NULL,
			payload BLOB,
			PRIMARY KEY (conversation_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_turn_events_turn ON turn_events(conversation_id, turn_id, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Append writes events in one transaction. Each conversation's sequence
// continues from its highest stored seq; nothing is written if any event
// is invalid.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO turn_events (conversation_id, seq, turn_id, id, type, version, at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = insert.Close() }()

	next := make(map[string]uint64)
	stored := make([]event.Event, 0, len(events))
	for _, e := range events {
		seq, ok := next[e.ConversationID]
		if !ok {
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(seq), 0) FROM turn_events WHERE conversation_id = ?`,
				e.ConversationID,
			).Scan(&seq); err != nil {
				return err
			}
		}
		seq++
		next[e.ConversationID] = seq

		e.Sequence = seq
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Version == 0 {
			e.Version = 1
		}
		if _, err := insert.ExecContext(ctx,
			e.ConversationID, e.Sequence, e.TurnID, e.ID, string(e.Type), e.Version,
			e.Timestamp.UnixNano(), []byte(e.Payload),
		); err != nil {
			return err
		}
		stored = append(stored, e)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.hub.publish(stored)
	return nil
}

// Load returns a conversation's events in sequence order.
func (s *EventStore) Load(ctx context.Context, conversationID string) ([]event.Event, error) {
	return s.LoadFrom(ctx, conversationID, 0)
}

// LoadFrom returns a conversation's events with seq >= fromSeq.
func (s *EventStore) LoadFrom(ctx context.Context, conversationID string, fromSeq uint64) ([]event.Event, error) {
	return s.query(ctx, `conversation_id = ? AND seq >= ?`, conversationID, fromSeq)
}

// LoadTurn returns the events of one turn in sequence order.
func (s *EventStore) LoadTurn(ctx context.Context, conversationID, turnID string) ([]event.Event, error) {
	return s.query(ctx, `conversation_id = ? AND turn_id = ?`, conversationID, turnID)
}

func (s *EventStore) query(ctx context.Context, where string, args ...any) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(`SELECT conversation_id, seq, turn_id, id, type, version, at, payload FROM turn_events WHERE `)
	b.WriteString(where)
	b.WriteString(` ORDER BY seq`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := []event.Event{}
	for rows.Next() {
		var (
			e       event.Event
			typ     string
			at      int64
			payload []byte
		)
		if err := rows.Scan(&e.ConversationID, &e.Sequence, &e.TurnID, &e.ID, &typ, &e.Version, &at, &payload); err != nil {
			return nil, err
		}
		e.Payload = payload
		e.Type = event.Type(typ)
		e.Timestamp = time.Unix(0, at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Subscribe streams events appended to a conversation until ctx is done.
func (s *EventStore) Subscribe(ctx context.Context, conversationID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, conversationID), nil
}

// Close ends every subscription, then closes the database if the store
// opened it.
func (s *EventStore) Close() error {
	s.hub.closeAll()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// fanout delivers appended events to live subscribers. Slow subscribers
// drop events rather than block Append.
type fanout struct {
	mu   sync.Mutex
	subs map[string]map[chan event.Event]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]map[chan event.Event]struct{})}
}

func (f *fanout) subscribe(ctx context.Context, conversationID string) <-chan event.Event {
	ch := make(chan event.Event, 64)
	f.mu.Lock()
	if f.subs[conversationID] == nil {
		f.subs[conversationID] = make(map[chan event.Event]struct{})
	}
	f.subs[conversationID][ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[conversationID][ch]; ok {
			delete(f.subs[conversationID], ch)
			close(ch)
		}
	}()
	return ch
}

func (f *fanout) publish(events []event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		for ch := range f.subs[e.ConversationID] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, chans := range f.subs {
		for ch := range chans {
			close(ch)
		}
		delete(f.subs, id)
	}
}

var (
	_ event.Store      = (*EventStore)(nil)
	_ event.TurnLoader = (*EventStore)(nil)
)
