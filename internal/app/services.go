package app

import (
	"context"

	"github.com/timmy/callinsight/internal/repository"
	"github.com/timmy/callinsight/internal/service"
)

// IngestService builds the job ingestion service.
func (a *App) IngestService(ctx context.Context) (*service.IngestService, error) {
	qs, err := a.Queues(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewIngestService(qs.Transcription, &service.IngestConfig{
		SupportedExtensions: a.Cfg.Ingest.SupportedExtensions,
		Clock:               a.Clock,
		Metrics:             a.Metrics,
	}), nil
}

// TranscriberService builds the transcription worker handler.
func (a *App) TranscriberService(ctx context.Context) (*service.TranscriberService, error) {
	qs, err := a.Queues(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := a.TranscriptionProvider(ctx)
	if err != nil {
		return nil, err
	}

	tc := a.Cfg.Transcription
	return service.NewTranscriberService(service.TranscriberConfig{
		Source:       qs.Transcription,
		Forward:      qs.Parser,
		DeadLetter:   qs.TranscriptionDeadLetter,
		Provider:     provider,
		LanguageCode: tc.LanguageCode,
		MaxSpeakers:  tc.MaxSpeakers,
		PollInterval: tc.PollInterval,
		Timeout:      tc.Timeout,
		MaxAttempts:  tc.MaxAttempts,
		Clock:        a.Clock,
		Metrics:      a.Metrics,
	}), nil
}

// ParserService builds the conversation parser handler.
func (a *App) ParserService(ctx context.Context) (*service.ParserService, error) {
	qs, err := a.Queues(ctx)
	if err != nil {
		return nil, err
	}
	db, err := a.Database()
	if err != nil {
		return nil, err
	}
	messages, err := a.MessageStore(ctx)
	if err != nil {
		return nil, err
	}
	segmenter, err := service.NewSegmentationStrategy(a.Cfg.Parser.Segmentation, a.Cfg.Parser.Speakers)
	if err != nil {
		return nil, err
	}

	return service.NewParserService(service.ParserConfig{
		Source:        qs.Parser,
		DeadLetter:    qs.ParserDeadLetter,
		Conversations: repository.NewConversationRepository(db),
		Messages:      messages,
		Events:        a.Events(),
		Segmenter:     segmenter,
		MaxAttempts:   a.Cfg.Parser.MaxAttempts,
		Clock:         a.Clock,
		Metrics:       a.Metrics,
	}), nil
}

// QuestionnaireService builds the questionnaire processor.
func (a *App) QuestionnaireService(ctx context.Context) (*service.QuestionnaireService, error) {
	db, err := a.Database()
	if err != nil {
		return nil, err
	}
	messages, err := a.MessageStore(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := a.AnswerGenerator()
	if err != nil {
		return nil, err
	}

	qc := a.Cfg.Questionnaire
	return service.NewQuestionnaireService(service.QuestionnaireConfig{
		Conversations:       repository.NewConversationRepository(db),
		Messages:            messages,
		Responses:           repository.NewResponseRepository(db),
		Generator:           generator,
		Confidence:          qc.Confidence,
		AnswerTimeout:       a.Cfg.LLM.Timeout,
		DefaultInstructions: qc.DefaultInstructions,
		Clock:               a.Clock,
		Metrics:             a.Metrics,
	}), nil
}
