package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/prompts"
	"github.com/timmy/callinsight/internal/repository"
)

// ErrInvalidQuestionnaire is returned for requests that cannot be processed as given.
var ErrInvalidQuestionnaire = errors.New("invalid questionnaire request")

// ConversationReader loads conversation rows.
type ConversationReader interface {
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]domain.Conversation, error)
	Count(ctx context.Context) (int64, error)
}

// ResponseStore persists questionnaire responses.
type ResponseStore interface {
	Create(ctx context.Context, resp *domain.QuestionnaireResponse) error
	ListByConversation(ctx context.Context, conversationID string) ([]domain.QuestionnaireResponse, error)
}

// QuestionnaireConfig holds configuration for QuestionnaireService.
type QuestionnaireConfig struct {
	Conversations ConversationReader
	Messages      repository.MessageStore
	Responses     ResponseStore
	Generator     AnswerGenerator

	// Confidence is recorded for every successful answer, clamped to [0,1].
	Confidence    float64
	AnswerTimeout time.Duration
	// DefaultInstructions replace empty per-question instructions.
	DefaultInstructions string

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// QuestionnaireService answers question batches against stored conversations.
type QuestionnaireService struct {
	cfg QuestionnaireConfig
}

// NewQuestionnaireService creates a questionnaire service.
func NewQuestionnaireService(cfg QuestionnaireConfig) *QuestionnaireService {
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 60 * time.Second
	}
	if cfg.DefaultInstructions == "" {
		cfg.DefaultInstructions = prompts.DefaultInstructions
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &QuestionnaireService{cfg: cfg}
}

// Process answers each question in order and stores one response per
// question. Answer failures become placeholder responses with zero
// confidence; a storage failure aborts the run, keeping what was already
// stored.
func (s *QuestionnaireService) Process(ctx context.Context, conversationID string, questions []domain.Question) ([]domain.QuestionnaireResponse, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidQuestionnaire)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidQuestionnaire, i)
		}
	}

	ctx = logger.SetConversationID(ctx, conversationID)
	ctx = logger.SetComponent(ctx, "questionnaire")

	conv, err := s.cfg.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.cfg.Messages.ListMessages(ctx, conv.ContextID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	transcript := prompts.FormatTranscript(msgs)

	responses := make([]domain.QuestionnaireResponse, 0, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		resp := s.answer(ctx, conv.ID, transcript, q)
		if err := s.cfg.Responses.Create(ctx, resp); err != nil {
			return responses, fmt.Errorf("failed to store response for question %s: %w", q.ID, err)
		}
		responses = append(responses, *resp)
	}

	logger.With(nil).WithCount(len(responses)).Info(ctx, "Questionnaire processed")
	return responses, nil
}

func (s *QuestionnaireService) answer(ctx context.Context, conversationID, transcript string, q domain.Question) *domain.QuestionnaireResponse {
	instructions := q.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = s.cfg.DefaultInstructions
	}
	prompt := Prompt{
		System: prompts.AnswerSystemPrompt,
		User:   prompts.AnswerUserPrompt(transcript, q.Text, instructions),
	}

	start := s.cfg.Clock.Now()
	actx, cancel := context.WithTimeout(ctx, s.cfg.AnswerTimeout)
	text, err := s.cfg.Generator.Answer(actx, prompt)
	cancel()
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty answer")
	}
	elapsed := s.cfg.Clock.Now().Sub(start)

	resp := &domain.QuestionnaireResponse{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		QuestionID:     q.ID,
		CreatedAt:      s.cfg.Clock.Now().UTC(),
		Metadata:       datatypes.JSONMap{"question_text": q.Text},
	}

	if err != nil {
		s.cfg.Metrics.RecordAnswer(metrics.OutcomeFailure, elapsed.Seconds())
		logger.FromContext(ctx).WithError(err).WithField("question_id", q.ID).Warn("Failed to answer question")
		resp.Answer = domain.AnswerErrorPlaceholder
		resp.Confidence = 0
		resp.Metadata["error"] = err.Error()
		return resp
	}

	s.cfg.Metrics.RecordAnswer(metrics.OutcomeSuccess, elapsed.Seconds())
	resp.Answer = strings.TrimSpace(text)
	resp.Confidence = domain.Confidence(s.cfg.Confidence).Clamp()
	resp.Metadata["model"] = s.cfg.Generator.Model()
	return resp
}

// GetConversation returns the conversation with its messages in timestamp order.
func (s *QuestionnaireService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.cfg.Conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.cfg.Messages.ListMessages(ctx, conv.ContextID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	conv.Messages = msgs
	return conv, nil
}

// ListConversations returns a page of conversations, newest first, and the
// total number stored. Messages are not loaded.
func (s *QuestionnaireService) ListConversations(ctx context.Context, limit, offset int) ([]domain.Conversation, int64, error) {
	if limit <= 0 || offset < 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive and offset non-negative", ErrInvalidQuestionnaire)
	}
	convs, err := s.cfg.Conversations.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	total, err := s.cfg.Conversations.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return convs, total, nil
}

// ListResponses returns the stored responses of a conversation, oldest first.
func (s *QuestionnaireService) ListResponses(ctx context.Context, conversationID string) ([]domain.QuestionnaireResponse, error) {
	if _, err := s.cfg.Conversations.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.cfg.Responses.ListByConversation(ctx, conversationID)
}
