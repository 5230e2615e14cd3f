package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig holds configuration for one SQS queue.
type SQSConfig struct {
	URL string
	// VisibilityTimeout overrides the queue default on receive when positive.
	VisibilityTimeout time.Duration
}

// SQSQueue implements Queue on Amazon SQS. FIFO queues (".fifo" suffix)
// get group and deduplication ids on send.
type SQSQueue struct {
	client     SQSAPI
	url        string
	name       string
	fifo       bool
	visibility time.Duration
}

// NewSQSQueue wraps an SQS client for the queue at cfg.URL.
func NewSQSQueue(client SQSAPI, cfg *SQSConfig) (*SQSQueue, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}
	name := cfg.URL
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	return &SQSQueue{
		client:     client,
		url:        cfg.URL,
		name:       name,
		fifo:       strings.HasSuffix(name, ".fifo"),
		visibility: cfg.VisibilityTimeout,
	}, nil
}

// Name returns the queue name parsed from its URL.
func (q *SQSQueue) Name() string {
	return q.name
}

// Send publishes body. Standard queues ignore the deduplication id.
func (q *SQSQueue) Send(ctx context.Context, body []byte, opts *SendOptions) (string, error) {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	}
	if q.fifo {
		group := "default"
		if opts != nil && opts.GroupID != "" {
			group = opts.GroupID
		}
		in.MessageGroupId = aws.String(group)
		if opts != nil && opts.DeduplicationID != "" {
			in.MessageDeduplicationId = aws.String(opts.DeduplicationID)
		}
	}

	out, err := q.client.SendMessage(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", q.name, err)
	}
	return aws.ToString(out.MessageId), nil
}

// Receive long-polls SQS. wait is capped at the SQS maximum of 20s and max at 10.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10
	}
	if wait > 20*time.Second {
		wait = 20 * time.Second
	}

	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if q.visibility > 0 {
		in.VisibilityTimeout = int32(q.visibility / time.Second)
	}

	out, err := q.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", q.name, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  receiveCount(m.Attributes),
			SentAt:        sentAt(m.Attributes),
		})
	}
	return msgs, nil
}

// Delete acknowledges the message.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", q.name, err)
	}
	return nil
}

// Release sets the message visibility to zero. SQS still counts the delivery
// in ApproximateReceiveCount, so a release consumes one attempt.
func (q *SQSQueue) Release(ctx context.Context, receiptHandle string) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to release message on %s: %w", q.name, err)
	}
	return nil
}

func receiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func sentAt(attrs map[string]string) time.Time {
	ms, err := strconv.ParseInt(attrs[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
