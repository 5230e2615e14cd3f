// Package app wires configuration into the pipeline's queues, stores, providers
// and services. Every binary under cmd/ builds one App.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"gorm.io/gorm"

	"github.com/timmy/callinsight/internal/awsutil"
	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/config"
	"github.com/timmy/callinsight/internal/events"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
	"github.com/timmy/callinsight/internal/repository"
	"github.com/timmy/callinsight/internal/service"
	"github.com/timmy/callinsight/internal/storage"
	"github.com/timmy/callinsight/internal/transcription"
)

// Queues are the pipeline's queues. Dead-letter queues may be nil.
type Queues struct {
	Transcription           queue.Queue
	TranscriptionDeadLetter queue.Queue
	Parser                  queue.Queue
	ParserDeadLetter        queue.Queue
}

// App holds process-wide dependencies, each built at most once.
type App struct {
	Cfg     *config.Config
	Name    string
	Clock   clock.Clock
	Metrics *metrics.Metrics

	mu       sync.Mutex
	awsCfg   *aws.Config
	queues   *Queues
	db       *gorm.DB
	messages repository.MessageStore
	closers  []func(context.Context) error
}

// InitLogger installs the default logger for the named binary.
func InitLogger(name string) *logger.Logger {
	l := logger.NewFromEnv(logger.LoadFromEnv(name))
	logger.SetDefaultLogger(l)
	return l
}

// New creates an App for the named binary.
func New(cfg *config.Config, name string) *App {
	return &App{
		Cfg:     cfg,
		Name:    name,
		Clock:   clock.New(),
		Metrics: metrics.DefaultMetrics,
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Close releases everything the App opened, in reverse order.
func (a *App) Close(ctx context.Context) {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to close dependency")
		}
	}
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

// AWS returns the shared AWS configuration.
func (a *App) AWS(ctx context.Context) (aws.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awsLocked(ctx)
}

func (a *App) awsLocked(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsutil.Load(ctx, &a.Cfg.AWS)
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &cfg
	return cfg, nil
}

// Queues returns the configured queues. In memory mode every stage of one
// process shares the same queues.
func (a *App) Queues(ctx context.Context) (*Queues, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queues != nil {
		return a.queues, nil
	}

	qc := a.Cfg.Queue
	switch qc.Provider {
	case "memory":
		mem := func(name string, visibility time.Duration) queue.Queue {
			return queue.NewMemoryQueue(&queue.MemoryConfig{Name: name, VisibilityTimeout: visibility, Clock: a.Clock})
		}
		a.queues = &Queues{
			Transcription:           mem("transcription", qc.TranscriptionVisibility),
			TranscriptionDeadLetter: mem("transcription-dlq", 0),
			Parser:                  mem("parser", qc.ParserVisibility),
			ParserDeadLetter:        mem("parser-dlq", 0),
		}
		logger.Warn("Using in-memory queues, jobs do not survive a restart")
	case "sqs", "":
		awsCfg, err := a.awsLocked(ctx)
		if err != nil {
			return nil, err
		}
		qs, err := sqsQueues(sqs.NewFromConfig(awsCfg), &qc)
		if err != nil {
			return nil, err
		}
		a.queues = qs
	default:
		return nil, fmt.Errorf("unsupported queue provider %q", qc.Provider)
	}
	return a.queues, nil
}

func sqsQueues(client queue.SQSAPI, qc *config.QueueConfig) (*Queues, error) {
	qs := &Queues{}

	open := func(url string, visibility time.Duration) (queue.Queue, error) {
		q, err := queue.NewSQSQueue(client, &queue.SQSConfig{URL: url, VisibilityTimeout: visibility})
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	optional := func(name, url string) (queue.Queue, error) {
		if url == "" {
			logger.Warn("No %s configured, exhausted messages will be dropped", name)
			return nil, nil
		}
		return open(url, 0)
	}

	var err error
	if qs.Transcription, err = open(qc.TranscriptionURL, qc.TranscriptionVisibility); err != nil {
		return nil, fmt.Errorf("transcription queue: %w", err)
	}
	if qs.Parser, err = open(qc.ParserURL, qc.ParserVisibility); err != nil {
		return nil, fmt.Errorf("parser queue: %w", err)
	}
	if qs.TranscriptionDeadLetter, err = optional("transcription dead-letter queue", qc.TranscriptionDeadLetterURL); err != nil {
		return nil, fmt.Errorf("transcription dead-letter queue: %w", err)
	}
	if qs.ParserDeadLetter, err = optional("parser dead-letter queue", qc.ParserDeadLetterURL); err != nil {
		return nil, fmt.Errorf("parser dead-letter queue: %w", err)
	}
	return qs, nil
}

// Database opens the relational store.
func (a *App) Database() (*gorm.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}

	db, err := repository.InitDB(&a.Cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.onClose(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return db, nil
}

// MessageStore opens the document store holding conversation messages.
func (a *App) MessageStore(ctx context.Context) (repository.MessageStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.messages != nil {
		return a.messages, nil
	}

	mc := a.Cfg.Messages
	switch mc.Provider {
	case "dynamodb", "":
		awsCfg, err := a.awsLocked(ctx)
		if err != nil {
			return nil, err
		}
		a.messages = repository.NewDynamoMessageStore(dynamodb.NewFromConfig(awsCfg), mc.Table)
	case "mongo":
		store, err := repository.NewMongoMessageStore(ctx, mc.MongoURI, mc.MongoDatabase, mc.MongoCollection)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		a.messages = store
	case "memory":
		a.messages = repository.NewMemoryMessageStore()
		logger.Warn("Using in-memory message store, messages do not survive a restart")
	default:
		return nil, fmt.Errorf("unsupported message store %q", mc.Provider)
	}
	return a.messages, nil
}

// Storage opens the bucket holding transcription output.
func (a *App) Storage(ctx context.Context) (storage.ObjectStorage, error) {
	sc := a.Cfg.Storage
	bucket := sc.Bucket
	if bucket == "" {
		bucket = a.Cfg.Transcription.OutputBucket
	}
	region := sc.Region
	if region == "" {
		region = a.Cfg.AWS.Region
	}
	accessKey, secretKey := sc.AccessKey, sc.SecretKey
	if accessKey == "" {
		accessKey, secretKey = a.Cfg.AWS.AccessKey, a.Cfg.AWS.SecretKey
	}
	return storage.NewStorage(ctx, &storage.S3Config{
		Type:      storage.StorageType(sc.Type),
		Endpoint:  sc.Endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    sc.UseSSL,
		Bucket:    bucket,
		Region:    region,
	})
}

// TranscriptionProvider builds the configured speech-to-text provider.
func (a *App) TranscriptionProvider(ctx context.Context) (transcription.Provider, error) {
	tc := a.Cfg.Transcription
	switch tc.Provider {
	case "aws", "":
		awsCfg, err := a.AWS(ctx)
		if err != nil {
			return nil, err
		}
		var store storage.ObjectStorage
		if tc.OutputBucket != "" {
			if store, err = a.Storage(ctx); err != nil {
				return nil, err
			}
		}
		return transcription.NewAWSProvider(transcribe.NewFromConfig(awsCfg), &transcription.AWSConfig{
			OutputBucket: tc.OutputBucket,
			Storage:      store,
		}), nil
	case "http":
		if tc.BaseURL == "" {
			return nil, fmt.Errorf("transcription: base_url is required for the http provider")
		}
		return transcription.NewHTTPProvider(&transcription.HTTPConfig{
			BaseURL: tc.BaseURL,
			APIKey:  tc.APIKey,
		}), nil
	case "mock":
		p := transcription.NewMockProvider("Thank you for calling, how can I help you today? — I would like to check the status of my order.")
		p.PollsUntilDone = 1
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider %q", tc.Provider)
	}
}

// AnswerGenerator builds the configured LLM client.
func (a *App) AnswerGenerator() (service.AnswerGenerator, error) {
	lc := a.Cfg.LLM
	if err := lc.ValidateWithAPIKey(); err != nil {
		return nil, err
	}
	if lc.Provider == "mock" {
		return &service.MockAnswerGenerator{}, nil
	}
	return service.NewOpenAIAnswerGenerator(&service.OpenAIConfig{
		Model:       lc.Model,
		APIKey:      lc.APIKey,
		BaseURL:     lc.BaseURL,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		Timeout:     lc.Timeout,
		MaxRetries:  lc.MaxRetries,
	}), nil
}

// Events builds the conversation event publisher.
func (a *App) Events() *events.Publisher {
	kc := a.Cfg.Kafka
	p := events.New(&events.Config{
		Enabled: kc.Enabled,
		Brokers: kc.Brokers,
		Topic:   kc.Topic,
		Source:  a.Name,
	}, a.Metrics)

	a.mu.Lock()
	a.onClose(func(context.Context) error { return p.Close() })
	a.mu.Unlock()
	return p
}

// SyncLogger flushes the rotated log file. Defer it in main.
func SyncLogger() {
	_ = logger.Sync()
}
