package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/events"
	"github.com/timmy/callinsight/internal/queue"
)

var testStart = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

var errStoreDown = errors.New("store unavailable")

func newQueue(name string, c clock.Clock) *queue.MemoryQueue {
	return queue.NewMemoryQueue(&queue.MemoryConfig{Name: name, VisibilityTimeout: time.Minute, Clock: c})
}

func sendJob(t *testing.T, q queue.Queue, job *domain.TranscriptionJob) {
	t.Helper()
	if _, err := queue.SendJSON(context.Background(), q, job, nil); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}
}

func receiveOne(t *testing.T, q queue.Queue) queue.Message {
	t.Helper()
	msgs, err := q.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Receive() returned %d messages, want 1", len(msgs))
	}
	return msgs[0]
}

func decodeJobs(t *testing.T, q *queue.MemoryQueue) []domain.TranscriptionJob {
	t.Helper()
	var jobs []domain.TranscriptionJob
	for _, b := range q.Bodies() {
		var j domain.TranscriptionJob
		if err := json.Unmarshal(b, &j); err != nil {
			t.Fatalf("queued body is not a job: %v", err)
		}
		jobs = append(jobs, j)
	}
	return jobs
}

func completedJob(sourceURI, text string, at time.Time) *domain.TranscriptionJob {
	job := domain.NewTranscriptionJob(sourceURI, at.Add(-time.Minute))
	_ = job.MarkProcessing()
	_ = job.MarkCompleted(text, nil, at)
	return job
}

type fakeConversationStore struct {
	mu      sync.Mutex
	rows    map[string]domain.Conversation
	upserts int
	err     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{rows: make(map[string]domain.Conversation)}
}

func (f *fakeConversationStore) Upsert(ctx context.Context, conv *domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.err != nil {
		return f.err
	}
	row := *conv
	row.Messages = nil
	if prev, ok := f.rows[conv.ID]; ok {
		row.CreatedAt = prev.CreatedAt
	}
	f.rows[conv.ID] = row
	return nil
}

func (f *fakeConversationStore) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return &row, nil
}

func (f *fakeConversationStore) List(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	all := make([]domain.Conversation, 0, len(f.rows))
	for _, row := range f.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeConversationStore) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.rows)), nil
}

type fakeResponseStore struct {
	mu        sync.Mutex
	rows      []domain.QuestionnaireResponse
	failAfter int // fail once this many rows are stored; <0 never fails
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{failAfter: -1}
}

func (f *fakeResponseStore) Create(ctx context.Context, resp *domain.QuestionnaireResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.rows) >= f.failAfter {
		return errStoreDown
	}
	f.rows = append(f.rows, *resp)
	return nil
}

func (f *fakeResponseStore) ListByConversation(ctx context.Context, conversationID string) ([]domain.QuestionnaireResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QuestionnaireResponse
	for _, r := range f.rows {
		if r.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.ConversationParsed
	err    error
}

func (f *fakePublisher) PublishConversationParsed(ctx context.Context, ev events.ConversationParsed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}
