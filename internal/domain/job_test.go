package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestJobIDForSource_Deterministic(t *testing.T) {
	uri := "s3://calls/2024/01/agent-7.wav"

	id1 := JobIDForSource(uri)
	id2 := JobIDForSource(uri)
	if id1 != id2 {
		t.Errorf("expected identical IDs, got %s and %s", id1, id2)
	}
	if len(id1) != 36 {
		t.Errorf("invalid UUID length: got %d, want 36", len(id1))
	}
	if other := JobIDForSource("s3://calls/2024/01/agent-8.wav"); other == id1 {
		t.Errorf("different sources should produce different IDs: %s", other)
	}
}

func TestNewTranscriptionJob_IgnoresIngestTime(t *testing.T) {
	a := NewTranscriptionJob("s3://calls/a.mp3", time.Unix(100, 0))
	b := NewTranscriptionJob("s3://calls/a.mp3", time.Unix(200, 0))

	if a.ID != b.ID {
		t.Errorf("expected same job ID across ingest times, got %s and %s", a.ID, b.ID)
	}
	if a.Status != JobStatusPending {
		t.Errorf("expected pending status, got %s", a.Status)
	}
}

func TestTranscriptionJob_Transitions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("completed", func(t *testing.T) {
		job := NewTranscriptionJob("s3://calls/a.mp3", now)
		if err := job.MarkProcessing(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := job.MarkCompleted("hello", nil, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.CompletedAt == nil || job.TranscriptText != "hello" {
			t.Errorf("expected completedAt and transcript to be set, got %+v", job)
		}
		if err := job.ValidateCompleted(); err != nil {
			t.Errorf("expected valid completed job, got %v", err)
		}
		if err := job.MarkFailed("late", now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("failed", func(t *testing.T) {
		job := NewTranscriptionJob("s3://calls/a.mp3", now)
		_ = job.MarkProcessing()
		if err := job.MarkFailed("stt failed", now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.CompletedAt == nil || job.TranscriptText != "" || job.ErrorMessage != "stt failed" {
			t.Errorf("unexpected failed job state: %+v", job)
		}
		if err := job.MarkCompleted("x", nil, now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("complete without processing", func(t *testing.T) {
		job := NewTranscriptionJob("s3://calls/a.mp3", now)
		if err := job.MarkCompleted("x", nil, now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestTranscriptionJob_WireFormat(t *testing.T) {
	job := NewTranscriptionJob("s3://calls/a.mp3", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	job.Metadata["file_extension"] = ".mp3"

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"id", "sourceURI", "status", "createdAt", "metadata"} {
		if _, ok := body[key]; !ok {
			t.Errorf("expected key %q in queue body %s", key, data)
		}
	}
	for _, key := range []string{"completedAt", "transcriptText"} {
		if _, ok := body[key]; ok {
			t.Errorf("pending job must not carry %q", key)
		}
	}
}
