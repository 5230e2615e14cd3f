// Package queue defines the at-least-once queue contract shared by the pipeline stages.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownReceipt is returned when a receipt handle no longer refers to an in-flight message.
	ErrUnknownReceipt = errors.New("unknown receipt handle")

	// ErrNoDeadLetter is returned when a message should be dead-lettered but no
	// dead-letter destination is configured.
	ErrNoDeadLetter = errors.New("no dead-letter queue configured")
)

// Message is one delivery of a queued body. ReceiveCount starts at 1 for the first delivery.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	ReceiveCount  int
	SentAt        time.Time
}

// SendOptions carries optional delivery attributes.
type SendOptions struct {
	// DeduplicationID suppresses duplicate sends within the provider's window.
	DeduplicationID string
	// GroupID orders messages within a group on FIFO queues.
	GroupID string
}

// Queue is a visibility-timeout queue with competing consumers.
type Queue interface {
	// Name identifies the queue in logs and metrics.
	Name() string

	// Send enqueues a body and returns the provider message ID.
	Send(ctx context.Context, body []byte, opts *SendOptions) (string, error)

	// Receive long-polls for up to max messages, waiting at most wait.
	// Received messages stay invisible to other consumers for the visibility window.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Delete acknowledges a message so it is never redelivered.
	Delete(ctx context.Context, receiptHandle string) error

	// Release makes an in-flight message visible again immediately. Where the
	// provider allows it the release does not count as an attempt; SQS keeps
	// counting it in ApproximateReceiveCount.
	Release(ctx context.Context, receiptHandle string) error
}

// SendJSON marshals v and sends it to q.
func SendJSON(ctx context.Context, q Queue, v interface{}, opts *SendOptions) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message for %s: %w", q.Name(), err)
	}
	return q.Send(ctx, body, opts)
}

// MoveToDeadLetter forwards body to dlq and then acknowledges msg on src.
// The send happens first so a crash in between redelivers rather than loses the message.
func MoveToDeadLetter(ctx context.Context, src, dlq Queue, msg Message, body []byte) error {
	if dlq == nil {
		return ErrNoDeadLetter
	}
	if body == nil {
		body = msg.Body
	}
	if _, err := dlq.Send(ctx, body, &SendOptions{DeduplicationID: msg.ID}); err != nil {
		return fmt.Errorf("failed to send to dead-letter queue %s: %w", dlq.Name(), err)
	}
	if err := src.Delete(ctx, msg.ReceiptHandle); err != nil {
		return fmt.Errorf("failed to delete dead-lettered message from %s: %w", src.Name(), err)
	}
	return nil
}
