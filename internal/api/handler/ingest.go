package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/callinsight/internal/service"
)

// EventIngester turns raw file-event bodies into queued jobs.
type EventIngester interface {
	HandleEventJSON(ctx context.Context, body []byte) (service.IngestStats, error)
}

// IngestHandler handles file-event notifications.
type IngestHandler struct {
	svc EventIngester
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(svc EventIngester) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// HandleEvents handles POST /api/v1/ingest/events with an S3 notification body.
// Per-record failures are reported in the counts, not as an HTTP error.
func (h *IngestHandler) HandleEvents(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "failed to read body")
		return
	}

	stats, err := h.svc.HandleEventJSON(c.Request.Context(), body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, stats)
}
