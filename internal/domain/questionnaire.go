package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// AnswerErrorPlaceholder is stored as the answer of a question that could not be processed.
const AnswerErrorPlaceholder = "Error: Could not process question"

// Confidence is a score in [0.0, 1.0]. It is persisted as an integer percentage.
type Confidence float64

// Clamp returns the confidence bounded to [0.0, 1.0]. NaN maps to 0.
func (c Confidence) Clamp() Confidence {
	f := float64(c)
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return c
	}
}

// Value implements the driver.Valuer interface, storing the score as 0-100.
func (c Confidence) Value() (driver.Value, error) {
	return int64(math.Round(float64(c.Clamp()) * 100)), nil
}

// Scan implements the sql.Scanner interface for the 0-100 integer column.
func (c *Confidence) Scan(value interface{}) error {
	var pct float64
	switch v := value.(type) {
	case nil:
		pct = 0
	case int64:
		pct = float64(v)
	case int32:
		pct = float64(v)
	case float64:
		pct = v
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("failed to scan Confidence: %w", err)
		}
		pct = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("failed to scan Confidence: %w", err)
		}
		pct = f
	default:
		return errors.New("failed to scan Confidence")
	}
	*c = Confidence(pct / 100).Clamp()
	return nil
}

// Question is one analyst-supplied question of a questionnaire.
type Question struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Instructions string `json:"instructions,omitempty"`
}

// QuestionnaireResponse is the answer to one question for one conversation.
// Responses are append-only: re-running a questionnaire adds new rows.
type QuestionnaireResponse struct {
	ID             string            `gorm:"type:text;primaryKey" json:"id"`
	ConversationID string            `gorm:"type:text;not null;index:idx_responses_conversation" json:"conversation_id"`
	QuestionID     string            `gorm:"type:text;not null" json:"question_id"`
	Answer         string            `gorm:"type:text;not null" json:"answer"`
	Confidence     Confidence        `gorm:"type:integer;not null" json:"confidence"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	Conversation   *Conversation     `gorm:"foreignKey:ConversationID;references:ID" json:"-"`
}

// TableName returns the database table name for QuestionnaireResponse.
func (QuestionnaireResponse) TableName() string {
	return "questionnaire_responses"
}

// Answered reports whether the response carries a usable answer at the given threshold.
func (r *QuestionnaireResponse) Answered(threshold Confidence) bool {
	return r.Confidence > 0 && r.Confidence >= threshold
}
