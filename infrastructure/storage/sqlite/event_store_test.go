package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/infrastructure/storage/sqlite"
)

func testConfig(t *testing.T) sqlite.Config {
	t.Helper()
	return sqlite.Config{
		DSN:         "file:" + t.TempDir() + "/test.db?mode=rwc",
		AutoMigrate: true,
	}
}

func newTestEventStore(t *testing.T) *sqlite.EventStore {
	t.Helper()
	store, err := sqlite.NewEventStore(testConfig(t))
	if err != nil {
		t.Fatalf("NewEventStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func turnEvent(t *testing.T, conv, turn string, typ event.Type) event.Event {
	t.Helper()
	e, err := event.NewEvent(conv, turn, typ, map[string]string{"turn": turn})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return e
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	received := turnEvent(t, "c1", "t1", event.TypeTurnReceived)
	received.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 123, time.UTC)
	err := store.Append(ctx,
		received,
		turnEvent(t, "c1", "t1", event.TypeIntentClassified),
		turnEvent(t, "c1", "t1", event.TypeTurnResponded),
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	loaded, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 events, got %d", len(loaded))
	}
	for i, e := range loaded {
		if e.Sequence != uint64(i+1) {
			t.Errorf("event %d: sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if e.ID == "" || e.TurnID != "t1" || e.Version != 1 {
			t.Errorf("event %d: id=%q turn=%q version=%d", i, e.ID, e.TurnID, e.Version)
		}
	}
	if !loaded[0].Timestamp.Equal(received.Timestamp) {
		t.Errorf("timestamp = %v, want %v", loaded[0].Timestamp, received.Timestamp)
	}
	var payload map[string]string
	if err := loaded[0].UnmarshalPayload(&payload); err != nil || payload["turn"] != "t1" {
		t.Errorf("payload = %v, %v", payload, err)
	}
	if loaded[2].Type != event.TypeTurnResponded {
		t.Errorf("last type = %s, want %s", loaded[2].Type, event.TypeTurnResponded)
	}
}

func TestEventStore_SequenceIsPerConversation(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	_ = store.Append(ctx, turnEvent(t, "c1", "t1", event.TypeTurnReceived))
	_ = store.Append(ctx,
		turnEvent(t, "c2", "t1", event.TypeTurnReceived),
		turnEvent(t, "c1", "t1", event.TypeTurnResponded),
	)

	from, err := store.LoadFrom(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if len(from) != 1 || from[0].Sequence != 2 {
		t.Fatalf("LoadFrom(2) = %+v, want one event with sequence 2", from)
	}

	other, _ := store.Load(ctx, "c2")
	if len(other) != 1 || other[0].Sequence != 1 {
		t.Errorf("c2 = %+v, want one event with sequence 1", other)
	}
}

func TestEventStore_LoadTurn(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	_ = store.Append(ctx,
		turnEvent(t, "c1", "t1", event.TypeTurnReceived),
		turnEvent(t, "c1", "t2", event.TypeTurnReceived),
		turnEvent(t, "c1", "t1", event.TypeTurnResponded),
		turnEvent(t, "c2", "t1", event.TypeTurnReceived),
	)

	turn, err := store.LoadTurn(ctx, "c1", "t1")
	if err != nil {
		t.Fatalf("LoadTurn failed: %v", err)
	}
	if len(turn) != 2 {
		t.Fatalf("expected 2 events, got %d", len(turn))
	}
	if turn[0].Sequence != 1 || turn[1].Sequence != 3 {
		t.Errorf("sequences = %d, %d; want 1, 3", turn[0].Sequence, turn[1].Sequence)
	}
	if turn[1].Type != event.TypeTurnResponded {
		t.Errorf("type = %s", turn[1].Type)
	}

	missing, err := store.LoadTurn(ctx, "c1", "t9")
	if err != nil || len(missing) != 0 {
		t.Errorf("LoadTurn(t9) = %v, %v; want empty", missing, err)
	}
}

func TestEventStore_InvalidEventStoresNothing(t *testing.T) {
	store := newTestEventStore(t)
	ctx := context.Background()

	err := store.Append(ctx,
		turnEvent(t, "c1", "t1", event.TypeTurnReceived),
		event.Event{Type: event.TypeTurnReceived},
	)
	if !errors.Is(err, event.ErrInvalidEvent) {
		t.Fatalf("Append error = %v, want ErrInvalidEvent", err)
	}

	loaded, _ := store.Load(ctx, "c1")
	if len(loaded) != 0 {
		t.Errorf("expected no events, got %d", len(loaded))
	}
}

func TestEventStore_Subscribe(t *testing.T) {
	store := newTestEventStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = store.Append(context.Background(), turnEvent(t, "c2", "t1", event.TypeTurnReceived))
	if err := store.Append(context.Background(), turnEvent(t, "c1", "t1", event.TypeTurnReceived)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	select {
	case e := <-ch:
		if e.ConversationID != "c1" || e.Sequence != 1 {
			t.Errorf("received %s/%d", e.ConversationID, e.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestEventStore_SharedDBStaysOpen(t *testing.T) {
	db, err := sqlite.Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	store, err := sqlite.NewEventStoreFromDB(db)
	if err != nil {
		t.Fatalf("NewEventStoreFromDB failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("shared connection closed: %v", err)
	}
}
