package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/callinsight/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository stores conversation rows.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Upsert inserts the conversation or, when a row with the same id exists,
// refreshes it. created_at keeps its first value.
func (r *ConversationRepository) Upsert(ctx context.Context, conv *domain.Conversation) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"context_id", "transcript_id", "updated_at", "metadata"}),
	}).Create(conv).Error
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// GetByID returns domain.ErrConversationNotFound when no row exists.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List returns conversations newest first.
func (r *ConversationRepository) List(ctx context.Context, limit, offset int) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	return convs, err
}

// Count returns the number of stored conversations.
func (r *ConversationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Conversation{}).Count(&count).Error
	return count, err
}
