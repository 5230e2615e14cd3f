package service

import (
	"context"
	"testing"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
)

var testExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".mp4", ".webm"}

func s3Record(bucket, key string, size int64) S3EventRecord {
	var r S3EventRecord
	r.EventName = "ObjectCreated:Put"
	r.S3.Bucket.Name = bucket
	r.S3.Object.Key = key
	r.S3.Object.Size = size
	return r
}

func TestIngestService_HandleEvent(t *testing.T) {
	c := clock.NewSimulated(testStart)
	q := newQueue("transcription", c)
	svc := NewIngestService(q, &IngestConfig{SupportedExtensions: testExtensions, Clock: c})

	ev := &S3Event{Records: []S3EventRecord{
		s3Record("calls", "2026/03/call-1.mp3", 1024),
		s3Record("calls", "notes/readme.txt", 10),
		s3Record("calls", "", 0),
		s3Record("calls", "support+line%2Fcall%282%29.WAV", 2048),
	}}

	stats := svc.HandleEvent(context.Background(), ev)
	want := IngestStats{Processed: 2, Skipped: 1, Errors: 1}
	if stats != want {
		t.Fatalf("HandleEvent() stats = %+v, want %+v", stats, want)
	}

	jobs := decodeJobs(t, q)
	if len(jobs) != 2 {
		t.Fatalf("queued %d jobs, want 2", len(jobs))
	}

	tests := []struct {
		name      string
		job       domain.TranscriptionJob
		sourceURI string
		key       string
		ext       string
		size      float64
	}{
		{"plain key", jobs[0], "s3://calls/2026/03/call-1.mp3", "2026/03/call-1.mp3", ".mp3", 1024},
		{"encoded key", jobs[1], "s3://calls/support line/call(2).WAV", "support line/call(2).WAV", ".wav", 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.job.SourceURI != tt.sourceURI {
				t.Errorf("SourceURI = %q, want %q", tt.job.SourceURI, tt.sourceURI)
			}
			if tt.job.ID != domain.JobIDForSource(tt.sourceURI) {
				t.Errorf("ID = %q, want id derived from source", tt.job.ID)
			}
			if tt.job.Status != domain.JobStatusPending {
				t.Errorf("Status = %q, want pending", tt.job.Status)
			}
			if !tt.job.CreatedAt.Equal(testStart) {
				t.Errorf("CreatedAt = %v, want %v", tt.job.CreatedAt, testStart)
			}
			if tt.job.Metadata["key"] != tt.key || tt.job.Metadata["bucket"] != "calls" {
				t.Errorf("Metadata location = %v/%v", tt.job.Metadata["bucket"], tt.job.Metadata["key"])
			}
			if tt.job.Metadata["file_extension"] != tt.ext {
				t.Errorf("file_extension = %v, want %s", tt.job.Metadata["file_extension"], tt.ext)
			}
			if tt.job.Metadata["file_size"] != tt.size {
				t.Errorf("file_size = %v, want %v", tt.job.Metadata["file_size"], tt.size)
			}
		})
	}
}

func TestIngestService_DuplicateEventsCollapse(t *testing.T) {
	c := clock.NewSimulated(testStart)
	q := newQueue("transcription", c)
	svc := NewIngestService(q, &IngestConfig{SupportedExtensions: []string{"mp3"}, Clock: c})

	ev := &S3Event{Records: []S3EventRecord{s3Record("calls", "a.mp3", 1)}}
	svc.HandleEvent(context.Background(), ev)
	stats := svc.HandleEvent(context.Background(), ev)

	if stats.Processed != 1 {
		t.Errorf("Processed = %d, want 1", stats.Processed)
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1", q.Len())
	}
}

func TestIngestService_HandleEventJSON(t *testing.T) {
	q := newQueue("transcription", nil)
	svc := NewIngestService(q, &IngestConfig{SupportedExtensions: testExtensions})

	body := []byte(`{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"calls"},"object":{"key":"x.flac","size":5}}}]}`)
	stats, err := svc.HandleEventJSON(context.Background(), body)
	if err != nil {
		t.Fatalf("HandleEventJSON() error = %v", err)
	}
	if stats.Processed != 1 {
		t.Errorf("Processed = %d, want 1", stats.Processed)
	}

	if _, err := svc.HandleEventJSON(context.Background(), []byte("{")); err == nil {
		t.Error("HandleEventJSON() with malformed body returned nil error")
	}
}

func TestIngestService_QueueFailureCountsAsError(t *testing.T) {
	q := newQueue("transcription", nil)
	svc := NewIngestService(q, &IngestConfig{SupportedExtensions: testExtensions})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := svc.HandleEvent(ctx, &S3Event{Records: []S3EventRecord{s3Record("calls", "a.mp3", 1)}})
	if stats.Errors != 1 || stats.Processed != 0 {
		t.Errorf("stats = %+v, want one error", stats)
	}
}

func TestIngestService_IngestKeyUsesLiteralKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		want      IngestStats
		sourceURI string
	}{
		{"plus sign", "call+1.wav", IngestStats{Processed: 1}, "s3://calls/call+1.wav"},
		{"percent sign", "100%.wav", IngestStats{Processed: 1}, "s3://calls/100%.wav"},
		{"encoded-looking key", "support%2Fcall.mp3", IngestStats{Processed: 1}, "s3://calls/support%2Fcall.mp3"},
		{"unsupported", "notes+1.txt", IngestStats{Skipped: 1}, ""},
		{"empty key", "", IngestStats{Errors: 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue("transcription", nil)
			svc := NewIngestService(q, &IngestConfig{SupportedExtensions: testExtensions})

			stats := svc.IngestKey(context.Background(), "calls", tt.key, 42)
			if stats != tt.want {
				t.Fatalf("IngestKey() stats = %+v, want %+v", stats, tt.want)
			}
			jobs := decodeJobs(t, q)
			if tt.sourceURI == "" {
				if len(jobs) != 0 {
					t.Errorf("queued %d jobs, want 0", len(jobs))
				}
				return
			}
			if len(jobs) != 1 {
				t.Fatalf("queued %d jobs, want 1", len(jobs))
			}
			if jobs[0].SourceURI != tt.sourceURI || jobs[0].Metadata["key"] != tt.key {
				t.Errorf("job source = %q key = %v, want %q / %q", jobs[0].SourceURI, jobs[0].Metadata["key"], tt.sourceURI, tt.key)
			}
			if jobs[0].ID != domain.JobIDForSource(tt.sourceURI) {
				t.Errorf("job id = %q, want id derived from %q", jobs[0].ID, tt.sourceURI)
			}
		})
	}
}
