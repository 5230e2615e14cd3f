package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/callinsight/internal/clock"
)

func newTestQueue(c clock.Clock) *MemoryQueue {
	return NewMemoryQueue(&MemoryConfig{Name: "test", VisibilityTimeout: time.Minute, Clock: c})
}

func TestMemoryQueue_VisibilityAndReceiveCount(t *testing.T) {
	ctx := context.Background()
	c := clock.NewSimulated(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := newTestQueue(c)

	if _, err := q.Send(ctx, []byte("a"), nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs, err := q.Receive(ctx, 1, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Receive() = %v, %v; want one message", msgs, err)
	}
	if msgs[0].ReceiveCount != 1 {
		t.Errorf("ReceiveCount = %d, want 1", msgs[0].ReceiveCount)
	}

	again, _ := q.Receive(ctx, 1, 0)
	if len(again) != 0 {
		t.Fatalf("message visible during its visibility window")
	}

	c.Advance(time.Minute)
	again, _ = q.Receive(ctx, 1, 0)
	if len(again) != 1 || again[0].ReceiveCount != 2 {
		t.Fatalf("redelivery = %+v, want ReceiveCount 2", again)
	}

	if err := q.Delete(ctx, msgs[0].ReceiptHandle); !errors.Is(err, ErrUnknownReceipt) {
		t.Errorf("Delete(stale receipt) error = %v, want ErrUnknownReceipt", err)
	}
	if err := q.Delete(ctx, again[0].ReceiptHandle); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", q.Len())
	}
}

func TestMemoryQueue_Release(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(clock.NewSimulated(time.Unix(0, 0)))
	q.Send(ctx, []byte("a"), nil)

	msgs, _ := q.Receive(ctx, 1, 0)
	if err := q.Release(ctx, msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	again, _ := q.Receive(ctx, 1, 0)
	if len(again) != 1 {
		t.Fatal("released message not visible")
	}
	if again[0].ReceiveCount != 1 {
		t.Errorf("ReceiveCount after release = %d, want 1", again[0].ReceiveCount)
	}
	if again[0].ReceiptHandle == msgs[0].ReceiptHandle {
		t.Error("redelivery reused the released receipt handle")
	}
	if err := q.Delete(ctx, msgs[0].ReceiptHandle); !errors.Is(err, ErrUnknownReceipt) {
		t.Errorf("Delete(stale receipt) error = %v, want ErrUnknownReceipt", err)
	}
}

func TestMemoryQueue_Deduplication(t *testing.T) {
	ctx := context.Background()
	c := clock.NewSimulated(time.Unix(0, 0))
	q := newTestQueue(c)

	first, _ := q.Send(ctx, []byte("a"), &SendOptions{DeduplicationID: "job-1"})
	second, _ := q.Send(ctx, []byte("a"), &SendOptions{DeduplicationID: "job-1"})
	if first != second {
		t.Errorf("duplicate send returned new id %q, want %q", second, first)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	c.Advance(defaultDedupWindow)
	q.Send(ctx, []byte("a"), &SendOptions{DeduplicationID: "job-1"})
	if q.Len() != 2 {
		t.Errorf("Len() = %d after dedup window, want 2", q.Len())
	}
}

func TestMemoryQueue_ReceiveHonoursCancel(t *testing.T) {
	q := newTestQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Receive(ctx, 1, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive() error = %v, want context.Canceled", err)
	}
}

func TestMoveToDeadLetter(t *testing.T) {
	ctx := context.Background()
	src := newTestQueue(nil)
	dlq := newTestQueue(nil)
	src.Send(ctx, []byte("original"), nil)
	msgs, _ := src.Receive(ctx, 1, 0)

	if err := MoveToDeadLetter(ctx, src, nil, msgs[0], nil); !errors.Is(err, ErrNoDeadLetter) {
		t.Fatalf("MoveToDeadLetter(nil dlq) error = %v, want ErrNoDeadLetter", err)
	}
	if src.Len() != 1 {
		t.Fatal("message removed without a dead-letter queue")
	}

	if err := MoveToDeadLetter(ctx, src, dlq, msgs[0], []byte("failed")); err != nil {
		t.Fatalf("MoveToDeadLetter() error = %v", err)
	}
	if src.Len() != 0 {
		t.Errorf("source Len() = %d, want 0", src.Len())
	}
	bodies := dlq.Bodies()
	if len(bodies) != 1 || string(bodies[0]) != "failed" {
		t.Errorf("dead-letter bodies = %q, want [failed]", bodies)
	}
}
