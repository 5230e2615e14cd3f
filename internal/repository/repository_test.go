package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timmy/callinsight/internal/config"
	"github.com/timmy/callinsight/internal/domain"
	"gorm.io/datatypes"
)

func newTestDB(t *testing.T) *ConversationRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         ":memory:",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	return NewConversationRepository(db)
}

func testConversation(jobID string, at time.Time) *domain.Conversation {
	id := domain.ConversationIDForJob(jobID)
	return &domain.Conversation{
		ID:           id,
		ContextID:    domain.ContextIDForConversation(id),
		TranscriptID: jobID,
		CreatedAt:    at,
		UpdatedAt:    at,
		Metadata:     datatypes.JSONMap{"message_count": 2},
	}
}

func TestConversationRepository_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestDB(t)
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	conv := testConversation("job-1", first)
	if err := repo.Upsert(ctx, conv); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	again := testConversation("job-1", first.Add(time.Hour))
	again.Metadata = datatypes.JSONMap{"message_count": 3}
	if err := repo.Upsert(ctx, again); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("Count() = %d, %v; want 1", count, err)
	}

	got, err := repo.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want first insert time %v", got.CreatedAt, first)
	}
	if got.Metadata["message_count"] != float64(3) {
		t.Errorf("Metadata = %v, want refreshed message_count", got.Metadata)
	}
}

func TestConversationRepository_GetByIDNotFound(t *testing.T) {
	repo := newTestDB(t)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("GetByID() error = %v, want ErrConversationNotFound", err)
	}
}

func TestResponseRepository_StoresConfidenceAsPercentage(t *testing.T) {
	ctx := context.Background()
	convs := newTestDB(t)
	responses := NewResponseRepository(convs.db)

	conv := testConversation("job-2", time.Now().UTC())
	if err := convs.Upsert(ctx, conv); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, c := range []domain.Confidence{0.8, 0} {
		err := responses.Create(ctx, &domain.QuestionnaireResponse{
			ID:             []string{"r-1", "r-2"}[i],
			ConversationID: conv.ID,
			QuestionID:     "q",
			Answer:         "a",
			Confidence:     c,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var raw int
	if err := convs.db.Raw("SELECT confidence FROM questionnaire_responses WHERE id = ?", "r-1").Scan(&raw).Error; err != nil {
		t.Fatal(err)
	}
	if raw != 80 {
		t.Errorf("stored confidence = %d, want 80", raw)
	}

	got, err := responses.ListByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "r-1" || got[0].Confidence != 0.8 {
		t.Errorf("ListByConversation() = %+v", got)
	}
}

func TestResponseRepository_RejectsUnknownConversation(t *testing.T) {
	convs := newTestDB(t)
	responses := NewResponseRepository(convs.db)

	err := responses.Create(context.Background(), &domain.QuestionnaireResponse{
		ID:             "r-1",
		ConversationID: "missing",
		QuestionID:     "q",
		Answer:         "a",
		CreatedAt:      time.Now(),
	})
	if err == nil {
		t.Error("Create() succeeded for a conversation that does not exist")
	}
}

func TestMemoryMessageStore_PutIsIdempotentAndOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	msgs := []domain.Message{
		{ID: "b", ContextID: "c", Content: "second", Timestamp: base.Add(time.Millisecond)},
		{ID: "a", ContextID: "c", Content: "first", Timestamp: base},
	}
	store.PutMessages(ctx, msgs)
	store.PutMessages(ctx, msgs)

	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	got, _ := store.ListMessages(ctx, "c")
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = %s,%s; want a,b", got[0].ID, got[1].ID)
	}
}
