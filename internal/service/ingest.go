package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
)

// S3Event is an S3 object-created notification.
type S3Event struct {
	Records []S3EventRecord `json:"Records"`
}

// S3EventRecord is one object in an S3 notification. Object keys arrive
// URL-encoded.
type S3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// IngestStats counts the records of one event.
type IngestStats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// IngestConfig holds configuration for the ingest service.
type IngestConfig struct {
	SupportedExtensions []string
	Clock               clock.Clock
	Metrics             *metrics.Metrics
}

// IngestService turns file events into pending transcription jobs on the
// transcription queue.
type IngestService struct {
	queue      queue.Queue
	extensions map[string]bool
	clock      clock.Clock
	metrics    *metrics.Metrics
}

// NewIngestService creates an ingest service publishing to q.
func NewIngestService(q queue.Queue, cfg *IngestConfig) *IngestService {
	exts := make(map[string]bool, len(cfg.SupportedExtensions))
	for _, e := range cfg.SupportedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	return &IngestService{queue: q, extensions: exts, clock: c, metrics: cfg.Metrics}
}

// HandleEventJSON decodes a raw notification body and handles it.
func (s *IngestService) HandleEventJSON(ctx context.Context, body []byte) (IngestStats, error) {
	var ev S3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return IngestStats{}, fmt.Errorf("invalid s3 event: %w", err)
	}
	return s.HandleEvent(ctx, &ev), nil
}

// HandleEvent enqueues one job per supported audio object. Records are
// independent: a failing record is counted and the rest still run.
func (s *IngestService) HandleEvent(ctx context.Context, ev *S3Event) IngestStats {
	var stats IngestStats
	for i, rec := range ev.Records {
		skipped, err := s.handleRecord(ctx, rec)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField("record", i).Error("Failed to ingest record")
		}
		stats.add(skipped, err)
	}
	s.record(ctx, stats)
	return stats
}

// IngestKey ingests one object by its literal key. Event notifications
// URL-encode keys; callers holding a real key use this instead.
func (s *IngestService) IngestKey(ctx context.Context, bucket, key string, size int64) IngestStats {
	var stats IngestStats
	skipped, err := s.ingestKey(ctx, bucket, key, size)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Failed to ingest object")
	}
	stats.add(skipped, err)
	s.record(ctx, stats)
	return stats
}

func (st *IngestStats) add(skipped bool, err error) {
	switch {
	case err != nil:
		st.Errors++
	case skipped:
		st.Skipped++
	default:
		st.Processed++
	}
}

func (s *IngestService) record(ctx context.Context, stats IngestStats) {
	s.metrics.RecordIngest(stats.Processed, stats.Skipped, stats.Errors)
	logger.With(logger.Fields{
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"errors":    stats.Errors,
	}).Info(ctx, "File event handled")
}

func (s *IngestService) handleRecord(ctx context.Context, rec S3EventRecord) (bool, error) {
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return false, fmt.Errorf("invalid object key %q: %w", rec.S3.Object.Key, err)
	}
	return s.ingestKey(ctx, rec.S3.Bucket.Name, key, rec.S3.Object.Size)
}

func (s *IngestService) ingestKey(ctx context.Context, bucket, key string, size int64) (bool, error) {
	if bucket == "" || key == "" {
		return false, fmt.Errorf("record is missing bucket or key")
	}

	ext := strings.ToLower(path.Ext(key))
	if !s.extensions[ext] {
		logger.FromContext(ctx).WithField("key", key).Debug("Skipping unsupported file")
		return true, nil
	}

	return false, s.IngestObject(ctx, bucket, key, size)
}

// IngestObject enqueues a pending job for s3://bucket/key. The job id is the
// deduplication id, so repeated notifications for one object collapse on
// queues that deduplicate.
func (s *IngestService) IngestObject(ctx context.Context, bucket, key string, size int64) error {
	sourceURI := fmt.Sprintf("s3://%s/%s", bucket, key)
	job := domain.NewTranscriptionJob(sourceURI, s.clock.Now())
	job.Metadata["file_size"] = size
	job.Metadata["file_extension"] = strings.ToLower(path.Ext(key))
	job.Metadata["bucket"] = bucket
	job.Metadata["key"] = key

	msgID, err := queue.SendJSON(ctx, s.queue, job, &queue.SendOptions{DeduplicationID: job.ID})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:     job.ID,
		logger.FieldSourceURI: sourceURI,
		logger.FieldMessageID: msgID,
	}).Info("Queued transcription job")
	return nil
}
