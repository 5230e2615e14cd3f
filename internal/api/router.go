package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/callinsight/internal/api/handler"
	"github.com/timmy/callinsight/internal/api/middleware"
	"github.com/timmy/callinsight/internal/config"
)

// Dependencies are the services behind the HTTP API.
type Dependencies struct {
	Questionnaires handler.QuestionnaireProcessor
	Ingest         handler.EventIngester // optional
	DB             handler.Pinger        // optional

	// AnsweredThreshold is the confidence from which a response counts as answered.
	AnsweredThreshold float64
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps *Dependencies, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	questionnaireHandler := handler.NewQuestionnaireHandler(deps.Questionnaires, deps.AnsweredThreshold)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/questionnaires", questionnaireHandler.Process)

		v1.GET("/conversations", questionnaireHandler.ListConversations)
		v1.GET("/conversations/:id", questionnaireHandler.GetConversation)
		v1.GET("/conversations/:id/responses", questionnaireHandler.ListResponses)

		if deps.Ingest != nil {
			v1.POST("/ingest/events", handler.NewIngestHandler(deps.Ingest).HandleEvents)
		}
	}

	return r
}
