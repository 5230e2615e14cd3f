package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/timmy/callinsight/internal/api"
	"github.com/timmy/callinsight/internal/app"
	"github.com/timmy/callinsight/internal/config"
)

func main() {
	log := app.InitLogger("callinsight-api")
	defer app.SyncLogger()

	// CONFIG_PATH overrides the default ./configs/config.yaml lookup.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a := app.New(cfg, "callinsight-api")
	defer a.Close(context.Background())

	questionnaires, err := a.QuestionnaireService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize questionnaire service")
	}
	ingest, err := a.IngestService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize ingest service")
	}
	db, err := a.Database()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Fatal("Failed to get database handle")
	}

	router := api.SetupRouter(&api.Dependencies{
		Questionnaires: questionnaires,
		Ingest:         ingest,
		DB:             sqlDB,

		AnsweredThreshold: cfg.Questionnaire.AnsweredThreshold,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).WithField("mode", cfg.Server.Mode).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server exited")
}
