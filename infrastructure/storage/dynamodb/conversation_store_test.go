package dynamodb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

// fakeAPI keeps items in a map keyed by the "id" attribute.
type fakeAPI struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
	last  *dynamodb.GetItemInput
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func idOf(key map[string]types.AttributeValue) string {
	return key["id"].(*types.AttributeValueMemberS).Value
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.last = in
	return &dynamodb.GetItemOutput{Item: f.items[idOf(in.Key)]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[idOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, idOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ConversationsTableName != "router_conversations" {
		t.Errorf("ConversationsTableName = %s", cfg.ConversationsTableName)
	}
	WithRegion("eu-west-1")(&cfg)
	WithEndpoint("http://localhost:8000")(&cfg)
	WithConversationsTableName("convs")(&cfg)
	if cfg.Region != "eu-west-1" || cfg.Endpoint != "http://localhost:8000" || cfg.ConversationsTableName != "convs" {
		t.Errorf("options not applied: %+v", cfg)
	}
}

func TestConversationStore_RoundTrip(t *testing.T) {
	api := newFakeAPI()
	store := NewConversationStoreWithAPI(api, "convs", time.Second, time.Hour)
	ctx := context.Background()

	if _, err := store.Load(ctx, "c1"); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}

	st := conversation.New("c1", "u1")
	st.Append(conversation.RoleUser, "查询最新的签证政策", time.Now())
	st.TurnCount = 1
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	item := api.items["c1"]
	if _, ok := item[attrExpiresAt].(*types.AttributeValueMemberN); !ok {
		t.Errorf("expires_at missing or not a number: %T", item[attrExpiresAt])
	}

	got, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.UserID != "u1" || len(got.Turns) != 1 {
		t.Errorf("Load() = %+v", got)
	}
	if aws.ToString(api.last.ProjectionExpression) == "" {
		t.Error("Load() should project attributes")
	}

	if err := store.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "c1"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Load() after delete error = %v", err)
	}
}

func TestConversationStore_ExpiredItemReadsAsMissing(t *testing.T) {
	api := newFakeAPI()
	store := NewConversationStoreWithAPI(api, "convs", time.Second, time.Minute)
	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.Save(context.Background(), conversation.New("c1", "")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := store.Load(context.Background(), "c1"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestConversationStore_NoTTL(t *testing.T) {
	api := newFakeAPI()
	store := NewConversationStoreWithAPI(api, "convs", 0, 0)

	if err := store.Save(context.Background(), conversation.New("c1", "")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := api.items["c1"][attrExpiresAt]; ok {
		t.Error("expires_at should be omitted without a TTL")
	}
}

func TestConversationStore_Errors(t *testing.T) {
	api := newFakeAPI()
	api.err = errors.New("throttled")
	store := NewConversationStoreWithAPI(api, "convs", time.Second, 0)

	if _, err := store.Load(context.Background(), ""); !errors.Is(err, conversation.ErrInvalidID) {
		t.Errorf("Load(\"\") error = %v, want ErrInvalidID", err)
	}
	if _, err := store.Load(context.Background(), "c1"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Load() error = %v, want ErrConnectionFailed", err)
	}
	if err := store.Save(context.Background(), conversation.New("c1", "")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Save() error = %v, want ErrConnectionFailed", err)
	}
}
