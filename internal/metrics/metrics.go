// Package metrics provides Prometheus metrics for the pipeline stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callinsight"

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeReleased     = "released"
)

// Metrics holds the Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	JobsIngested  prometheus.Counter
	IngestSkipped prometheus.Counter
	IngestErrors  prometheus.Counter

	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	ConversationsParsed prometheus.Counter
	MessagesWritten     prometheus.Counter
	ParseFailures       prometheus.Counter

	DeadLettered  *prometheus.CounterVec
	ReceiveErrors *prometheus.CounterVec

	QuestionsAnswered *prometheus.CounterVec
	AnswerLatency     prometheus.Histogram

	EventsPublished *prometheus.CounterVec
}

// DefaultMetrics is registered on the default Prometheus registry.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_ingested_total",
			Help:      "Transcription jobs enqueued from file events",
		}),
		IngestSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_skipped_total",
			Help:      "File event records skipped for unsupported extensions",
		}),
		IngestErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "File event records that could not be enqueued",
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription attempts by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Time from submit to transcript fetched",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		ConversationsParsed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_parsed_total",
			Help:      "Conversations persisted by the parser",
		}),
		MessagesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Messages written to the message store",
		}),
		ParseFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Parser deliveries left for redelivery",
		}),
		DeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Messages moved to a dead-letter queue",
		}, []string{"queue"}),
		ReceiveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_receive_errors_total",
			Help:      "Failed queue receive calls",
		}, []string{"queue"}),
		QuestionsAnswered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_answered_total",
			Help:      "Questionnaire questions processed by outcome",
		}, []string{"outcome"}),
		AnswerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_latency_seconds",
			Help:      "Answer generation latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Conversation events published by result",
		}, []string{"type", "result"}),
	}
}

// RecordIngest counts the outcome of one file event batch.
func (m *Metrics) RecordIngest(processed, skipped, errors int) {
	if m == nil {
		return
	}
	m.JobsIngested.Add(float64(processed))
	m.IngestSkipped.Add(float64(skipped))
	m.IngestErrors.Add(float64(errors))
}

// RecordTranscription counts one transcription attempt. seconds is recorded on success.
func (m *Metrics) RecordTranscription(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.TranscriptionDuration.Observe(seconds)
	}
}

// RecordParsed counts a persisted conversation and its messages.
func (m *Metrics) RecordParsed(messages int) {
	if m == nil {
		return
	}
	m.ConversationsParsed.Inc()
	m.MessagesWritten.Add(float64(messages))
}

func (m *Metrics) RecordParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailures.Inc()
}

func (m *Metrics) RecordDeadLetter(queue string) {
	if m == nil {
		return
	}
	m.DeadLettered.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordReceiveError(queue string) {
	if m == nil {
		return
	}
	m.ReceiveErrors.WithLabelValues(queue).Inc()
}

// RecordAnswer counts one answered question and its generation latency.
func (m *Metrics) RecordAnswer(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.QuestionsAnswered.WithLabelValues(outcome).Inc()
	m.AnswerLatency.Observe(seconds)
}

// RecordEvent counts a publish attempt. err == nil records "ok".
func (m *Metrics) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}
