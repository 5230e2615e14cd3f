package repository

import (
	"context"
	"fmt"

	"github.com/timmy/callinsight/internal/domain"
	"gorm.io/gorm"
)

// ResponseRepository stores questionnaire answers.
type ResponseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(db *gorm.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create inserts one response. Responses are append-only.
func (r *ResponseRepository) Create(ctx context.Context, resp *domain.QuestionnaireResponse) error {
	if err := r.db.WithContext(ctx).Create(resp).Error; err != nil {
		return fmt.Errorf("failed to store response %s: %w", resp.ID, err)
	}
	return nil
}

// ListByConversation returns the responses of a conversation, oldest first.
func (r *ResponseRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.QuestionnaireResponse, error) {
	var out []domain.QuestionnaireResponse
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list responses for %s: %w", conversationID, err)
	}
	return out, nil
}
