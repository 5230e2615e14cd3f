// Package prompts holds the LLM prompts used to answer questionnaires.
package prompts

import (
	"fmt"
	"strings"

	"github.com/timmy/callinsight/internal/domain"
)

// AnswerSystemPrompt sets the model's role for questionnaire answering.
const AnswerSystemPrompt = "You are analyzing conversations to answer specific questions."

// DefaultInstructions apply to questions submitted without instructions.
const DefaultInstructions = "Provide a clear and concise answer."

const answerUserTemplate = `Based on the following conversation, please answer the question.

Conversation:
%s

Question: %s

Instructions: %s

Answer:`

// FormatTranscript renders messages one per line as "role: content".
func FormatTranscript(msgs []domain.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// AnswerUserPrompt builds the user message for one question.
func AnswerUserPrompt(transcript, question, instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}
	return fmt.Sprintf(answerUserTemplate, transcript, question, instructions)
}
