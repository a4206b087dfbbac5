package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

func TestNewConversationStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		schema   string
		expected string
	}{
		{"default schema", "public", "public.conversations"},
		{"custom schema", "router", "router.conversations"},
		{"empty schema defaults to public", "", "public.conversations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := NewConversationStore(nil, tt.schema, time.Hour)
			if got := store.tableName(); got != tt.expected {
				t.Errorf("tableName() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestConversationStore_InvalidID(t *testing.T) {
	t.Parallel()

	store := NewConversationStore(nil, "", 0)
	if _, err := store.Load(context.Background(), ""); !errors.Is(err, conversation.ErrInvalidID) {
		t.Errorf("Load() error = %v, want ErrInvalidID", err)
	}
	if err := store.Save(context.Background(), &conversation.State{}); !errors.Is(err, conversation.ErrInvalidID) {
		t.Errorf("Save() error = %v, want ErrInvalidID", err)
	}
}

func TestConversationStore_wrapError(t *testing.T) {
	t.Parallel()

	store := NewConversationStore(nil, "", 0)
	if store.wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
	if err := store.wrapError(context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrConnectionFailed) {
		t.Errorf("wrapError(deadline) = %v", err)
	}
	if err := store.wrapError(errors.New("boom")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("wrapError(other) = %v, want ErrConnectionFailed", err)
	}
}

// TestConversationStore_Live runs against ROUTER_TEST_POSTGRES_DSN when set.
func TestConversationStore_Live(t *testing.T) {
	dsn := os.Getenv("ROUTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROUTER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := NewPool(ctx, dsn, DefaultConfig())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Close()

	store := NewConversationStore(pool, "public", time.Hour)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	id := "test-" + time.Now().Format("150405.000000")
	st := conversation.New(id, "u1")
	st.Append(conversation.RoleUser, "hello", time.Now())
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Turns) != 1 {
		t.Errorf("Load() turns = %d, want 1", len(got.Turns))
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, id); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
}
