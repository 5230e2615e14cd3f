package queue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	received []types.Message
	released []string
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: f.received}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.released = append(f.released, aws.ToString(in.ReceiptHandle))
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func TestSQSQueue_FIFOSendSetsDeduplication(t *testing.T) {
	fake := &fakeSQS{}
	q, err := NewSQSQueue(fake, &SQSConfig{URL: "https://sqs.us-east-1.amazonaws.com/123/transcription.fifo"})
	if err != nil {
		t.Fatal(err)
	}
	if q.Name() != "transcription.fifo" {
		t.Errorf("Name() = %q", q.Name())
	}

	if _, err := q.Send(context.Background(), []byte("{}"), &SendOptions{DeduplicationID: "job-1"}); err != nil {
		t.Fatal(err)
	}
	in := fake.sent[0]
	if aws.ToString(in.MessageDeduplicationId) != "job-1" {
		t.Errorf("MessageDeduplicationId = %q, want job-1", aws.ToString(in.MessageDeduplicationId))
	}
	if aws.ToString(in.MessageGroupId) != "default" {
		t.Errorf("MessageGroupId = %q, want default", aws.ToString(in.MessageGroupId))
	}
}

func TestSQSQueue_StandardSendOmitsFIFOFields(t *testing.T) {
	fake := &fakeSQS{}
	q, _ := NewSQSQueue(fake, &SQSConfig{URL: "https://sqs.us-east-1.amazonaws.com/123/parser"})
	q.Send(context.Background(), []byte("{}"), &SendOptions{DeduplicationID: "job-1"})

	if fake.sent[0].MessageDeduplicationId != nil || fake.sent[0].MessageGroupId != nil {
		t.Error("standard queue send carried FIFO attributes")
	}
}

func TestSQSQueue_ReceiveParsesAttributes(t *testing.T) {
	fake := &fakeSQS{received: []types.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"id":"x"}`),
		ReceiptHandle: aws.String("rh-1"),
		Attributes: map[string]string{
			"ApproximateReceiveCount": "3",
			"SentTimestamp":           "1700000000000",
		},
	}, {
		MessageId:     aws.String("m-2"),
		Body:          aws.String(`{}`),
		ReceiptHandle: aws.String("rh-2"),
	}}}
	q, _ := NewSQSQueue(fake, &SQSConfig{URL: "https://example/q"})

	msgs, err := q.Receive(context.Background(), 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ReceiveCount != 3 || msgs[0].SentAt.UnixMilli() != 1700000000000 {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].ReceiveCount != 1 {
		t.Errorf("missing receive count should default to 1, got %d", msgs[1].ReceiveCount)
	}

	if err := q.Release(context.Background(), "rh-1"); err != nil {
		t.Fatal(err)
	}
	if len(fake.released) != 1 || fake.released[0] != "rh-1" {
		t.Errorf("released = %v", fake.released)
	}
}
