package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

const attrExpiresAt = "expires_at"

// conversationItem represents a conversation in DynamoDB.
type conversationItem struct {
	ID        string `dynamodbav:"id"`
	UserID    string `dynamodbav:"user_id,omitempty"`
	TurnCount int64  `dynamodbav:"turn_count"`
	State     string `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updated_at"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// ConversationStore is a DynamoDB-backed implementation of
// conversation.Store. Items carry an epoch-seconds expires_at attribute for
// DynamoDB TTL; since TTL deletion is lazy, Load also checks it.
type ConversationStore struct {
	client       API
	tableName    string
	queryTimeout time.Duration
	ttl          time.Duration
	now          func() time.Time
}

// NewConversationStore creates a store from a configured client.
func NewConversationStore(client *Client) *ConversationStore {
	cfg := client.Config()
	return NewConversationStoreWithAPI(client.DynamoDB(), cfg.ConversationsTableName, cfg.QueryTimeout, cfg.ConversationTTL)
}

// NewConversationStoreWithAPI creates a store on any DynamoDB API implementation.
func NewConversationStoreWithAPI(api API, tableName string, queryTimeout, ttl time.Duration) *ConversationStore {
	if queryTimeout <= 0 {
		queryTimeout = DefaultConfig().QueryTimeout
	}
	return &ConversationStore{
		client:       api,
		tableName:    tableName,
		queryTimeout: queryTimeout,
		ttl:          ttl,
		now:          time.Now,
	}
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// Load returns the state for id or conversation.ErrNotFound.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	proj := expression.NamesList(expression.Name("id"), expression.Name("state"), expression.Name(attrExpiresAt))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      key(id),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	if result.Item == nil {
		return nil, conversation.ErrNotFound
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return nil, conversation.ErrNotFound
	}

	var st conversation.State
	if err := json.Unmarshal([]byte(item.State), &st); err != nil {
		return nil, err
	}
	st.Normalize()
	return &st, nil
}

// Save replaces the stored item and pushes its expiry forward.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return conversation.ErrInvalidID
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	now := s.now()
	item := conversationItem{
		ID:        st.ID,
		UserID:    st.UserID,
		TurnCount: st.TurnCount,
		State:     string(data),
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if s.ttl > 0 {
		item.ExpiresAt = now.Add(s.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	return s.wrapError(err)
}

// Delete removes a conversation. Deleting a missing id is not an error.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(id),
	})
	return s.wrapError(err)
}

func (s *ConversationStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ conversation.Store = (*ConversationStore)(nil)
