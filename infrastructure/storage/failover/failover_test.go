package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	inmem "github.com/felixgeelhaar/agent-router/infrastructure/storage/memory"
)

var errDown = errors.New("backend down")

type downMemory struct{}

func (downMemory) Save(context.Context, memory.Record) error { return errDown }
func (downMemory) Query(context.Context, memory.Query) ([]memory.Record, error) {
	return nil, errDown
}
func (downMemory) Delete(context.Context, string) error { return errDown }

type downConversations struct{}

func (downConversations) Load(context.Context, string) (*conversation.State, error) {
	return nil, errDown
}
func (downConversations) Save(context.Context, *conversation.State) error { return errDown }
func (downConversations) Delete(context.Context, string) error           { return errDown }

func TestMemoryStore_FallsBackWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	fallback := inmem.NewMemoryStore()
	store := NewMemoryStore(downMemory{}, fallback)

	require.NoError(t, store.Save(ctx, memory.Record{ID: "1", Content: "记住我喜欢咖啡"}))

	got, err := store.Query(ctx, memory.Query{Text: "咖啡"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	require.NoError(t, store.Delete(ctx, "1"))
}

func TestMemoryStore_EmptyPrimaryConsultsFallback(t *testing.T) {
	ctx := context.Background()
	primary := inmem.NewMemoryStore()
	fallback := inmem.NewMemoryStore()
	require.NoError(t, fallback.Save(ctx, memory.Record{ID: "f", Content: "outage note", CreatedAt: time.Now()}))

	store := NewMemoryStore(primary, fallback)
	got, err := store.Query(ctx, memory.Query{Text: "outage"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f", got[0].ID)
}

func TestMemoryStore_DomainErrorsDoNotFailOver(t *testing.T) {
	store := NewMemoryStore(inmem.NewMemoryStore(), downMemory{})
	err := store.Save(context.Background(), memory.Record{})
	assert.ErrorIs(t, err, memory.ErrInvalidRecord)
	assert.NotErrorIs(t, err, errDown)
}

func TestMemoryStore_BothDown(t *testing.T) {
	store := NewMemoryStore(downMemory{}, downMemory{})
	_, err := store.Query(context.Background(), memory.Query{Text: "x"})
	assert.ErrorIs(t, err, errDown)
}

func TestConversationStore_Failover(t *testing.T) {
	ctx := context.Background()
	fallback := inmem.NewConversationStore(time.Hour)
	store := NewConversationStore(downConversations{}, fallback)

	st := conversation.New("c1", "u1")
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestConversationStore_NotFoundInBoth(t *testing.T) {
	store := NewConversationStore(inmem.NewConversationStore(time.Hour), inmem.NewConversationStore(time.Hour))
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversationStore_NoFallback(t *testing.T) {
	store := NewConversationStore(downConversations{}, nil)
	_, err := store.Load(context.Background(), "c1")
	assert.ErrorIs(t, err, errDown)
}
