package transcription

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider completes every job after a fixed number of polls with a
// canned transcript. It backs local runs and tests.
type MockProvider struct {
	mu sync.Mutex

	// PollsUntilDone is the number of running polls before completion.
	PollsUntilDone int
	// Transcript is returned by Fetch.
	Transcript Transcript
	// FailReason, when set, makes every job fail.
	FailReason string
	// SubmitErr and FetchErr are returned by Submit and Fetch when set.
	SubmitErr error
	FetchErr  error

	polls       map[string]int
	submissions []SubmitRequest
}

// NewMockProvider returns a provider that completes immediately with text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{Transcript: Transcript{Text: text}}
}

func (m *MockProvider) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.submissions = append(m.submissions, req)
	return req.JobName, nil
}

func (m *MockProvider) Poll(ctx context.Context, handle string) (PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[string]int)
	}
	m.polls[handle]++
	if m.polls[handle] <= m.PollsUntilDone {
		return PollResult{Status: StatusRunning}, nil
	}
	if m.FailReason != "" {
		return PollResult{Status: StatusFailed, FailureReason: m.FailReason}, nil
	}
	return PollResult{Status: StatusCompleted, TranscriptURI: fmt.Sprintf("mock://%s.json", handle)}, nil
}

func (m *MockProvider) Fetch(ctx context.Context, location string) (*Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	t := m.Transcript
	return &t, nil
}

// Submissions returns the requests received so far.
func (m *MockProvider) Submissions() []SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitRequest(nil), m.submissions...)
}
