package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/timmy/callinsight/internal/domain"
)

// maxBatchWriteItems is the DynamoDB BatchWriteItem request limit.
const maxBatchWriteItems = 25

var errUnprocessedItems = errors.New("dynamodb left items unprocessed")

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoMessageStore.
type DynamoDBAPI interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoMessageItem is the table layout: partition key contextId, sort key createdAt (epoch ms).
type dynamoMessageItem struct {
	ContextID string                 `dynamodbav:"contextId"`
	CreatedAt int64                  `dynamodbav:"createdAt"`
	MessageID string                 `dynamodbav:"messageId"`
	Content   string                 `dynamodbav:"content"`
	Role      string                 `dynamodbav:"role"`
	Metadata  map[string]interface{} `dynamodbav:"metadata,omitempty"`
}

// DynamoMessageStore implements MessageStore on a DynamoDB table.
type DynamoMessageStore struct {
	client     DynamoDBAPI
	table      string
	newBackOff func() backoff.BackOff
}

// NewDynamoMessageStore creates a store on table.
func NewDynamoMessageStore(client DynamoDBAPI, table string) *DynamoMessageStore {
	return &DynamoMessageStore{
		client: client,
		table:  table,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// PutMessages writes msgs in chunks of 25, retrying unprocessed items with
// exponential backoff. Puts overwrite by key so redelivery is harmless.
func (s *DynamoMessageStore) PutMessages(ctx context.Context, msgs []domain.Message) error {
	for start := 0; start < len(msgs); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(msgs) {
			end = len(msgs)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, m := range msgs[start:end] {
			item, err := attributevalue.MarshalMap(toDynamoItem(m))
			if err != nil {
				return fmt.Errorf("failed to marshal message %s: %w", m.ID, err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := s.writeBatch(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoMessageStore) writeBatch(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: requests}

	op := func() error {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(out.UnprocessedItems) > 0 && len(out.UnprocessedItems[s.table]) > 0 {
			pending = out.UnprocessedItems
			return fmt.Errorf("%w: %d", errUnprocessedItems, len(out.UnprocessedItems[s.table]))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("failed to write messages to %s: %w", s.table, err)
	}
	return nil
}

// ListMessages queries a context in ascending createdAt order, following pagination.
func (s *DynamoMessageStore) ListMessages(ctx context.Context, contextID string) ([]domain.Message, error) {
	var out []domain.Message
	var startKey map[string]types.AttributeValue

	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("contextId = :cid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cid": &types.AttributeValueMemberS{Value: contextID},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query messages for %s: %w", contextID, err)
		}

		var items []dynamoMessageItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages for %s: %w", contextID, err)
		}
		for _, item := range items {
			out = append(out, item.toMessage())
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func toDynamoItem(m domain.Message) dynamoMessageItem {
	return dynamoMessageItem{
		ContextID: m.ContextID,
		CreatedAt: m.Timestamp.UnixMilli(),
		MessageID: m.ID,
		Content:   m.Content,
		Role:      m.Role,
		Metadata:  m.Metadata,
	}
}

func (i dynamoMessageItem) toMessage() domain.Message {
	return domain.Message{
		ID:        i.MessageID,
		ContextID: i.ContextID,
		Content:   i.Content,
		Role:      i.Role,
		Timestamp: time.UnixMilli(i.CreatedAt).UTC(),
		Metadata:  i.Metadata,
	}
}
