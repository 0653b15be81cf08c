package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoItem is the persisted shape: the full record is stored as a
// serialized JSON document so the table schema stays stable as
// ThreadState grows fields.
type dynamoItem struct {
	ThreadKey string `dynamodbav:"threadKey"`
	State     string `dynamodbav:"state"`
	Record    string `dynamodbav:"record"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

// DynamoStorage persists thread states to a DynamoDB table keyed by
// threadKey. No TTL attribute is written: threads persist indefinitely.
type DynamoStorage struct {
	client    dynamoAPI
	tableName string
}

// NewDynamoStorage builds a storage backed by the provided DynamoDB client.
func NewDynamoStorage(client dynamoAPI, tableName string) *DynamoStorage {
	if client == nil {
		panic("state: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("state: table name cannot be empty")
	}
	return &DynamoStorage{client: client, tableName: tableName}
}

func (s *DynamoStorage) Load(ctx context.Context, key ThreadKey) (*ThreadState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("state: load thread item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrThreadNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("state: unmarshal thread item: %w", err)
	}

	var ts ThreadState
	if err := json.Unmarshal([]byte(item.Record), &ts); err != nil {
		return nil, fmt.Errorf("state: decode thread record: %w", err)
	}
	return &ts, nil
}

func (s *DynamoStorage) Save(ctx context.Context, ts *ThreadState) error {
	if ts == nil {
		return errors.New("state: thread state cannot be nil")
	}
	record, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("state: encode thread record: %w", err)
	}

	item, err := attributevalue.MarshalMap(dynamoItem{
		ThreadKey: ts.Key().String(),
		State:     string(ts.Current),
		Record:    string(record),
		UpdatedAt: ts.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("state: marshal thread item: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("state: persist thread item: %w", err)
	}
	return nil
}

func (s *DynamoStorage) Delete(ctx context.Context, key ThreadKey) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       dynamoKey(key),
	}); err != nil {
		return fmt.Errorf("state: delete thread item: %w", err)
	}
	return nil
}

func dynamoKey(key ThreadKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"threadKey": &types.AttributeValueMemberS{Value: key.String()},
	}
}
