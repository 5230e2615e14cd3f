package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordIngest(2, 1, 3)
	m.RecordTranscription(OutcomeSuccess, 12)
	m.RecordTranscription(OutcomeFailure, 0)
	m.RecordDeadLetter("transcription")
	m.RecordEvent("conversation.parsed", errors.New("broker down"))

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"jobs ingested", m.JobsIngested, 2},
		{"ingest skipped", m.IngestSkipped, 1},
		{"ingest errors", m.IngestErrors, 3},
		{"transcription success", m.Transcriptions.WithLabelValues(OutcomeSuccess), 1},
		{"transcription failure", m.Transcriptions.WithLabelValues(OutcomeFailure), 1},
		{"dead lettered", m.DeadLettered.WithLabelValues("transcription"), 1},
		{"event errors", m.EventsPublished.WithLabelValues("conversation.parsed", "error"), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIngest(1, 1, 1)
	m.RecordAnswer(OutcomeSuccess, 1)
	m.RecordParsed(3)
}
