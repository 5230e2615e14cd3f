package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
	"github.com/timmy/callinsight/internal/transcription"
)

// ErrTranscriptionTimeout is returned when a job does not finish within the
// configured timeout.
var ErrTranscriptionTimeout = errors.New("transcription timed out")

// TranscriberConfig holds configuration for TranscriberService.
type TranscriberConfig struct {
	Source     queue.Queue // pending jobs
	Forward    queue.Queue // completed jobs, consumed by the parser
	DeadLetter queue.Queue
	Provider   transcription.Provider

	LanguageCode string
	MaxSpeakers  int
	PollInterval time.Duration
	Timeout      time.Duration
	MaxAttempts  int

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// TranscriberService drives pending jobs through the speech-to-text provider.
type TranscriberService struct {
	cfg      TranscriberConfig
	delivery delivery
}

// NewTranscriberService creates a transcription worker handler.
func NewTranscriberService(cfg TranscriberConfig) *TranscriberService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &TranscriberService{
		cfg: cfg,
		delivery: delivery{
			source:      cfg.Source,
			deadLetter:  cfg.DeadLetter,
			maxAttempts: cfg.MaxAttempts,
			metrics:     cfg.Metrics,
		},
	}
}

// Handle processes one pending-job delivery. A completed job is forwarded
// before the original is deleted, so a crash in between duplicates rather
// than loses it.
func (s *TranscriberService) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.SetComponent(ctx, "transcriber")

	var job domain.TranscriptionJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		s.cfg.Metrics.RecordTranscription(metrics.OutcomeDeadLettered, 0)
		return s.delivery.toDeadLetter(ctx, msg, nil, fmt.Errorf("%w: %v", domain.ErrInvalidJob, err))
	}
	if err := job.ValidatePending(); err != nil {
		s.cfg.Metrics.RecordTranscription(metrics.OutcomeDeadLettered, 0)
		return s.delivery.toDeadLetter(ctx, msg, nil, err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.WithField(ctx, logger.FieldSourceURI, job.SourceURI)
	start := s.cfg.Clock.Now()

	if s.delivery.overdue(msg) {
		return s.fail(ctx, msg, &job, fmt.Errorf("%w: received %d times", ErrAttemptsExhausted, msg.ReceiveCount), 0)
	}

	if err := job.MarkProcessing(); err != nil {
		return s.delivery.toDeadLetter(ctx, msg, nil, err)
	}

	transcript, err := s.transcribe(ctx, &job, msg.ReceiveCount, start)
	elapsed := s.cfg.Clock.Now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			s.delivery.release(ctx, msg)
			s.cfg.Metrics.RecordTranscription(metrics.OutcomeReleased, elapsed.Seconds())
			return err
		}
		return s.fail(ctx, msg, &job, err, elapsed)
	}

	if err := job.MarkCompleted(transcript.Text, transcript.Segments, s.cfg.Clock.Now()); err != nil {
		return err
	}
	if _, err := queue.SendJSON(ctx, s.cfg.Forward, &job, &queue.SendOptions{DeduplicationID: job.ID}); err != nil {
		return fmt.Errorf("failed to forward job to %s: %w", s.cfg.Forward.Name(), err)
	}
	if err := s.cfg.Source.Delete(ctx, msg.ReceiptHandle); err != nil {
		return fmt.Errorf("failed to delete job from %s: %w", s.cfg.Source.Name(), err)
	}

	s.cfg.Metrics.RecordTranscription(metrics.OutcomeSuccess, elapsed.Seconds())
	logger.With(logger.Fields{"segments": len(transcript.Segments)}).
		WithDuration(elapsed).
		WithStatus(string(job.Status)).
		Info(ctx, "Transcription completed")
	return nil
}

func (s *TranscriberService) fail(ctx context.Context, msg queue.Message, job *domain.TranscriptionJob, cause error, elapsed time.Duration) error {
	if !s.delivery.exhausted(msg) {
		s.cfg.Metrics.RecordTranscription(metrics.OutcomeFailure, elapsed.Seconds())
		return s.delivery.retryLater(ctx, msg, cause)
	}

	if err := job.MarkFailed(cause.Error(), s.cfg.Clock.Now()); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal failed job: %w", err)
	}
	s.cfg.Metrics.RecordTranscription(metrics.OutcomeDeadLettered, elapsed.Seconds())
	return s.delivery.toDeadLetter(ctx, msg, body, cause)
}

// transcribe submits the job and polls until it finishes or the deadline
// passes. Poll errors are tolerated until the deadline.
func (s *TranscriberService) transcribe(ctx context.Context, job *domain.TranscriptionJob, attempt int, start time.Time) (*transcription.Transcript, error) {
	req := transcription.SubmitRequest{
		JobName:      fmt.Sprintf("%s-%d", job.ID, attempt),
		SourceURI:    job.SourceURI,
		MediaFormat:  transcription.MediaFormatForURI(job.SourceURI),
		LanguageCode: s.cfg.LanguageCode,
		MaxSpeakers:  s.cfg.MaxSpeakers,
	}
	handle, err := s.cfg.Provider.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", req.JobName, err)
	}
	logger.FromContext(ctx).WithField("stt_job", handle).Info("Transcription submitted")

	deadline := start.Add(s.cfg.Timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.cfg.Provider.Poll(ctx, handle)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.FromContext(ctx).WithError(err).Warn("Transcription poll failed")
		case res.Status == transcription.StatusCompleted:
			return s.fetch(ctx, res.TranscriptURI)
		case res.Status == transcription.StatusFailed:
			reason := res.FailureReason
			if reason == "" {
				reason = "unknown reason"
			}
			return nil, fmt.Errorf("transcription %s failed: %s", handle, reason)
		}

		if !s.cfg.Clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrTranscriptionTimeout, s.cfg.Timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.cfg.Clock.After(s.cfg.PollInterval):
		}
	}
}

func (s *TranscriberService) fetch(ctx context.Context, location string) (*transcription.Transcript, error) {
	t, err := s.cfg.Provider.Fetch(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		return nil, transcription.ErrEmptyTranscript
	}
	return t, nil
}
