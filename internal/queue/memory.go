package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/callinsight/internal/clock"
)

const (
	defaultVisibilityTimeout = 30 * time.Second
	defaultDedupWindow       = 5 * time.Minute
	memoryPollInterval       = 20 * time.Millisecond
)

type memoryMessage struct {
	id             string
	body           []byte
	sentAt         time.Time
	receiveCount   int
	deliveries     int // receipt sequence, never rolled back
	receipt        string
	invisibleUntil time.Time
}

// MemoryQueue is an in-process Queue with visibility timeouts, receive counts and
// deduplication. It backs local runs and tests.
type MemoryQueue struct {
	name       string
	clock      clock.Clock
	visibility time.Duration
	dedup      time.Duration

	mu       sync.Mutex
	messages []*memoryMessage
	seen     map[string]memoryDedup
}

type memoryDedup struct {
	messageID string
	at        time.Time
}

// MemoryConfig holds configuration for an in-memory queue.
type MemoryConfig struct {
	Name              string
	VisibilityTimeout time.Duration
	Clock             clock.Clock
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(cfg *MemoryConfig) *MemoryQueue {
	q := &MemoryQueue{
		name:       cfg.Name,
		clock:      cfg.Clock,
		visibility: cfg.VisibilityTimeout,
		dedup:      defaultDedupWindow,
		seen:       make(map[string]memoryDedup),
	}
	if q.clock == nil {
		q.clock = clock.New()
	}
	if q.visibility <= 0 {
		q.visibility = defaultVisibilityTimeout
	}
	return q
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string {
	return q.name
}

// Send enqueues a copy of body.
func (q *MemoryQueue) Send(ctx context.Context, body []byte, opts *SendOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	if opts != nil && opts.DeduplicationID != "" {
		if prev, ok := q.seen[opts.DeduplicationID]; ok && now.Sub(prev.at) < q.dedup {
			return prev.messageID, nil
		}
	}

	msg := &memoryMessage{
		id:     uuid.New().String(),
		body:   append([]byte(nil), body...),
		sentAt: now,
	}
	q.messages = append(q.messages, msg)
	if opts != nil && opts.DeduplicationID != "" {
		q.seen[opts.DeduplicationID] = memoryDedup{messageID: msg.id, at: now}
	}
	return msg.id, nil
}

// Receive returns up to max visible messages, waiting up to wait for one to appear.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if msgs := q.take(max); len(msgs) > 0 {
			return msgs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if remaining > memoryPollInterval {
			remaining = memoryPollInterval
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(remaining):
		}
	}
}

func (q *MemoryQueue) take(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var out []Message
	for _, m := range q.messages {
		if len(out) == max {
			break
		}
		if now.Before(m.invisibleUntil) {
			continue
		}
		m.receiveCount++
		m.deliveries++
		m.receipt = fmt.Sprintf("%s#%d", m.id, m.deliveries)
		m.invisibleUntil = now.Add(q.visibility)
		out = append(out, Message{
			ID:            m.id,
			Body:          append([]byte(nil), m.body...),
			ReceiptHandle: m.receipt,
			ReceiveCount:  m.receiveCount,
			SentAt:        m.sentAt,
		})
	}
	return out
}

// Delete removes the message currently held under receiptHandle.
func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
}

// Release makes the message held under receiptHandle visible again and hands
// back the attempt: the next delivery reports the same receive count.
func (q *MemoryQueue) Release(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.receipt == receiptHandle {
			m.invisibleUntil = time.Time{}
			m.receipt = ""
			if m.receiveCount > 0 {
				m.receiveCount--
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptHandle)
}

// Len returns the number of messages still stored, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Bodies returns copies of all stored message bodies in send order.
func (q *MemoryQueue) Bodies() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, append([]byte(nil), m.body...))
	}
	return out
}
