package prompts

import (
	"strings"
	"testing"

	"github.com/timmy/callinsight/internal/domain"
)

func TestAnswerUserPrompt(t *testing.T) {
	transcript := FormatTranscript([]domain.Message{
		{Role: "speaker_1", Content: "Thanks for calling."},
		{Role: "speaker_2", Content: "My bill is wrong."},
	})
	if transcript != "speaker_1: Thanks for calling.\nspeaker_2: My bill is wrong." {
		t.Fatalf("FormatTranscript() = %q", transcript)
	}

	tests := []struct {
		name         string
		instructions string
		want         string
	}{
		{"default instructions", "", "Instructions: " + DefaultInstructions},
		{"custom instructions", "Answer yes or no.", "Instructions: Answer yes or no."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := AnswerUserPrompt(transcript, "Was the customer satisfied?", tt.instructions)
			for _, part := range []string{transcript, "Question: Was the customer satisfied?", tt.want} {
				if !strings.Contains(p, part) {
					t.Errorf("prompt missing %q:\n%s", part, p)
				}
			}
			if !strings.HasSuffix(p, "Answer:") {
				t.Errorf("prompt should end with Answer:, got %q", p[len(p)-20:])
			}
		})
	}
}
