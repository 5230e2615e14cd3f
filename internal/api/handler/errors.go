package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/callinsight/internal/api/middleware"
	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/service"
)

// Error codes returned in the error envelope.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_error"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Error errorBody `json:"error"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuestionnaire):
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrConversationNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err.Error())
	default:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
