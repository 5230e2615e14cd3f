package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/callinsight/internal/domain"
)

// QuestionnaireProcessor is the questionnaire service as used by the handler.
type QuestionnaireProcessor interface {
	Process(ctx context.Context, conversationID string, questions []domain.Question) ([]domain.QuestionnaireResponse, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]domain.Conversation, int64, error)
	ListResponses(ctx context.Context, conversationID string) ([]domain.QuestionnaireResponse, error)
}

// QuestionnaireHandler handles questionnaire and conversation endpoints.
type QuestionnaireHandler struct {
	svc       QuestionnaireProcessor
	threshold domain.Confidence
}

// NewQuestionnaireHandler creates a questionnaire handler. Responses at or above
// threshold are reported as answered.
func NewQuestionnaireHandler(svc QuestionnaireProcessor, threshold float64) *QuestionnaireHandler {
	return &QuestionnaireHandler{svc: svc, threshold: domain.Confidence(threshold).Clamp()}
}

// QuestionnaireRequest is the body of POST /api/v1/questionnaires.
type QuestionnaireRequest struct {
	ConversationID string            `json:"conversation_id"`
	Questions      []domain.Question `json:"questions"`
}

// ResponseItem is one answered question.
type ResponseItem struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Answered   bool      `json:"answered"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuestionnaireResponse is the body returned for a processed questionnaire.
type QuestionnaireResponse struct {
	ConversationID string         `json:"conversation_id"`
	Responses      []ResponseItem `json:"responses"`
}

func (h *QuestionnaireHandler) toResponseItems(rs []domain.QuestionnaireResponse) []ResponseItem {
	items := make([]ResponseItem, len(rs))
	for i, r := range rs {
		items[i] = ResponseItem{
			ID:         r.ID,
			QuestionID: r.QuestionID,
			Answer:     r.Answer,
			Confidence: float64(r.Confidence),
			Answered:   r.Answered(h.threshold),
			CreatedAt:  r.CreatedAt,
		}
	}
	return items
}

// Process handles POST /api/v1/questionnaires.
func (h *QuestionnaireHandler) Process(c *gin.Context) {
	var req QuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "conversation_id is required")
		return
	}
	if len(req.Questions) == 0 {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "at least one question is required")
		return
	}

	rs, err := h.svc.Process(c.Request.Context(), req.ConversationID, req.Questions)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, QuestionnaireResponse{
		ConversationID: req.ConversationID,
		Responses:      h.toResponseItems(rs),
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ConversationList is one page of stored conversations.
type ConversationList struct {
	Conversations []domain.Conversation `json:"conversations"`
	Total         int64                 `json:"total"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// ListConversations handles GET /api/v1/conversations?limit=&offset=.
func (h *QuestionnaireHandler) ListConversations(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "offset must be a non-negative integer")
		return
	}

	convs, total, err := h.svc.ListConversations(c.Request.Context(), limit, offset)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	c.JSON(http.StatusOK, ConversationList{Conversations: convs, Total: total, Limit: limit, Offset: offset})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// GetConversation handles GET /api/v1/conversations/:id.
func (h *QuestionnaireHandler) GetConversation(c *gin.Context) {
	conv, err := h.svc.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, conv)
}

// ListResponses handles GET /api/v1/conversations/:id/responses.
func (h *QuestionnaireHandler) ListResponses(c *gin.Context) {
	id := c.Param("id")
	rs, err := h.svc.ListResponses(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuestionnaireResponse{
		ConversationID: id,
		Responses:      h.toResponseItems(rs),
	})
}
