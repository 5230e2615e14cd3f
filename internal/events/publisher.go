// Package events publishes pipeline notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
)

// TypeConversationParsed is emitted once a conversation and its messages are stored.
const TypeConversationParsed = "conversation.parsed"

// ConversationParsed is the payload of TypeConversationParsed.
type ConversationParsed struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ContextID      string    `json:"context_id"`
	TranscriptID   string    `json:"transcript_id"`
	SourceURI      string    `json:"source_uri"`
	MessageCount   int       `json:"message_count"`
	ParsedAt       time.Time `json:"parsed_at"`
}

// Writer is the subset of kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	Source  string // producing service, sent as a header
}

// Publisher writes events to one topic. When disabled it only logs them.
type Publisher struct {
	writer  Writer
	topic   string
	source  string
	metrics *metrics.Metrics
}

// New creates a publisher. Disabled or broker-less configs give a log-only publisher.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Kafka disabled, conversation events are logged only")
		p := &Publisher{metrics: m}
		if cfg != nil {
			p.topic, p.source = cfg.Topic, cfg.Source
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.GetDefault().WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("Kafka publisher initialized")

	return NewWithWriter(writer, cfg.Topic, cfg.Source, m)
}

// NewWithWriter creates a publisher on an existing writer.
func NewWithWriter(w Writer, topic, source string, m *metrics.Metrics) *Publisher {
	return &Publisher{writer: w, topic: topic, source: source, metrics: m}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

// PublishConversationParsed publishes ev keyed by conversation id so all
// events of one conversation land on the same partition.
func (p *Publisher) PublishConversationParsed(ctx context.Context, ev ConversationParsed) error {
	ev.Type = TypeConversationParsed
	return p.publish(ctx, ev.Type, ev.ConversationID, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if p.writer == nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			"event_type": eventType,
			"key":        key,
		}).Debugf("event: %s", payload)
		p.metrics.RecordEvent(eventType, nil)
		return nil
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "source", Value: []byte(p.source)},
		},
	})
	p.metrics.RecordEvent(eventType, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", eventType, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
