package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestContextFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "parser"})

	ctx := l.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = SetConversationID(ctx, "conv-1")

	With(Fields{FieldCount: 3}).WithDuration(1500 * time.Millisecond).Info(ctx, "parsed")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	tests := map[string]interface{}{
		"message":           "parsed",
		"service":           "parser",
		FieldJobID:          "job-1",
		FieldConversationID: "conv-1",
		FieldCount:          float64(3),
		FieldDurationMs:     float64(1500),
	}
	for key, want := range tests {
		if got := line[key]; got != want {
			t.Errorf("field %s = %v, want %v", key, got, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Error("expected default logger for a bare context")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
