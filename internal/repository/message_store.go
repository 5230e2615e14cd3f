package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/timmy/callinsight/internal/domain"
)

// MessageStore holds conversation messages keyed by (ContextID, Timestamp in ms).
// PutMessages is an idempotent upsert: writing the same messages twice leaves
// one copy of each.
type MessageStore interface {
	PutMessages(ctx context.Context, msgs []domain.Message) error
	ListMessages(ctx context.Context, contextID string) ([]domain.Message, error)
}

type messageKey struct {
	contextID string
	createdAt int64
}

// MemoryMessageStore is an in-process MessageStore for local runs and tests.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	msgs map[messageKey]domain.Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{msgs: make(map[messageKey]domain.Message)}
}

func (s *MemoryMessageStore) PutMessages(ctx context.Context, msgs []domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.msgs[messageKey{m.ContextID, m.Timestamp.UnixMilli()}] = m
	}
	return nil
}

func (s *MemoryMessageStore) ListMessages(ctx context.Context, contextID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for k, m := range s.msgs {
		if k.contextID == contextID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Len returns the number of stored messages across all contexts.
func (s *MemoryMessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
