package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/events"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
	"github.com/timmy/callinsight/internal/repository"
)

// ConversationStore persists conversation rows.
type ConversationStore interface {
	Upsert(ctx context.Context, conv *domain.Conversation) error
}

// EventPublisher announces parsed conversations.
type EventPublisher interface {
	PublishConversationParsed(ctx context.Context, ev events.ConversationParsed) error
}

// ParserConfig holds configuration for ParserService.
type ParserConfig struct {
	Source        queue.Queue // completed jobs
	DeadLetter    queue.Queue
	Conversations ConversationStore
	Messages      repository.MessageStore
	Events        EventPublisher // optional
	Segmenter     SegmentationStrategy
	MaxAttempts   int
	Clock         clock.Clock
	Metrics       *metrics.Metrics
}

// ParserService turns completed jobs into a conversation row plus ordered
// messages. Every write is keyed by ids derived from the job, so redelivery
// overwrites rather than duplicates.
type ParserService struct {
	cfg      ParserConfig
	delivery delivery
}

// NewParserService creates a conversation parser handler.
func NewParserService(cfg ParserConfig) *ParserService {
	if cfg.Segmenter == nil {
		cfg.Segmenter = SingleSpeaker{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &ParserService{
		cfg: cfg,
		delivery: delivery{
			source:      cfg.Source,
			deadLetter:  cfg.DeadLetter,
			maxAttempts: cfg.MaxAttempts,
			metrics:     cfg.Metrics,
		},
	}
}

// Handle processes one completed-job delivery.
func (s *ParserService) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.SetComponent(ctx, "parser")

	var job domain.TranscriptionJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		s.cfg.Metrics.RecordParseFailure()
		return s.delivery.toDeadLetter(ctx, msg, nil, fmt.Errorf("%w: %v", domain.ErrInvalidJob, err))
	}
	if err := job.ValidateCompleted(); err != nil {
		s.cfg.Metrics.RecordParseFailure()
		return s.delivery.toDeadLetter(ctx, msg, nil, err)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	conv, msgs, err := s.BuildConversation(&job)
	if err != nil {
		s.cfg.Metrics.RecordParseFailure()
		return s.delivery.toDeadLetter(ctx, msg, nil, err)
	}
	ctx = logger.SetConversationID(ctx, conv.ID)

	if err := s.persist(ctx, conv, msgs); err != nil {
		if ctx.Err() != nil {
			s.delivery.release(ctx, msg)
			return err
		}
		s.cfg.Metrics.RecordParseFailure()
		if s.delivery.exhausted(msg) {
			return s.delivery.toDeadLetter(ctx, msg, nil, err)
		}
		return s.delivery.retryLater(ctx, msg, err)
	}

	s.publish(ctx, &job, conv, len(msgs))

	if err := s.cfg.Source.Delete(ctx, msg.ReceiptHandle); err != nil {
		return fmt.Errorf("failed to delete job from %s: %w", s.cfg.Source.Name(), err)
	}

	s.cfg.Metrics.RecordParsed(len(msgs))
	logger.With(logger.Fields{"segmentation": s.cfg.Segmenter.Name()}).
		WithCount(len(msgs)).
		Info(ctx, "Conversation stored")
	return nil
}

// BuildConversation derives the conversation and its messages from a
// completed job. Message timestamps start at completedAt truncated to the
// millisecond and increase by one millisecond per segment.
func (s *ParserService) BuildConversation(job *domain.TranscriptionJob) (*domain.Conversation, []domain.Message, error) {
	segments, err := s.cfg.Segmenter.Segment(job)
	if err != nil {
		return nil, nil, err
	}

	convID := domain.ConversationIDForJob(job.ID)
	contextID := domain.ContextIDForConversation(convID)
	now := s.cfg.Clock.Now().UTC()

	conv := &domain.Conversation{
		ID:           convID,
		ContextID:    contextID,
		TranscriptID: job.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata: datatypes.JSONMap{
			"source_uri":    job.SourceURI,
			"segmentation":  s.cfg.Segmenter.Name(),
			"message_count": len(segments),
			"completed_at":  job.CompletedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	base := job.CompletedAt.UTC().Truncate(time.Millisecond)
	msgs := make([]domain.Message, len(segments))
	for i, seg := range segments {
		msgs[i] = domain.Message{
			ID:        domain.MessageIDForSegment(contextID, i),
			ContextID: contextID,
			Content:   seg.Text,
			Role:      seg.Speaker,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Metadata: map[string]interface{}{
				domain.MessageMetaSegmentIndex: i,
				domain.MessageMetaConfidence:   seg.Confidence,
			},
		}
	}
	conv.Messages = msgs
	return conv, msgs, nil
}

func (s *ParserService) persist(ctx context.Context, conv *domain.Conversation, msgs []domain.Message) error {
	if err := s.cfg.Conversations.Upsert(ctx, conv); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	if err := s.cfg.Messages.PutMessages(ctx, msgs); err != nil {
		return fmt.Errorf("failed to store messages: %w", err)
	}
	return nil
}

func (s *ParserService) publish(ctx context.Context, job *domain.TranscriptionJob, conv *domain.Conversation, n int) {
	if s.cfg.Events == nil {
		return
	}
	err := s.cfg.Events.PublishConversationParsed(ctx, events.ConversationParsed{
		ConversationID: conv.ID,
		ContextID:      conv.ContextID,
		TranscriptID:   conv.TranscriptID,
		SourceURI:      job.SourceURI,
		MessageCount:   n,
		ParsedAt:       s.cfg.Clock.Now().UTC(),
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to publish conversation event")
	}
}
