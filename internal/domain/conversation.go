package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Message metadata keys written by the conversation parser.
const (
	MessageMetaSegmentIndex = "segment_index"
	MessageMetaConfidence   = "confidence"
)

// ErrConversationNotFound is returned when a conversation id has no stored record.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is the structured record derived from one completed transcription job.
// Its messages live in the document store under ContextID.
type Conversation struct {
	ID           string            `gorm:"type:text;primaryKey" json:"id"`
	ContextID    string            `gorm:"type:text;not null;index:idx_conversations_context" json:"context_id"`
	TranscriptID string            `gorm:"type:text;not null;uniqueIndex:idx_conversations_transcript" json:"transcript_id"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	Messages     []Message         `gorm:"-" json:"messages,omitempty"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// Message is one speaker turn of a conversation. Within a ContextID messages are
// totally ordered by Timestamp.
type Message struct {
	ID        string                 `json:"id"`
	ContextID string                 `json:"context_id"`
	Content   string                 `json:"content"`
	Role      string                 `json:"role"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
