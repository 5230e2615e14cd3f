// Command pipeline runs the transcription worker, the conversation parser and
// the HTTP API in one process. With queue.provider=memory it is a
// self-contained local environment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/timmy/callinsight/internal/api"
	"github.com/timmy/callinsight/internal/app"
	"github.com/timmy/callinsight/internal/config"
)

func main() {
	log := app.InitLogger("callinsight-pipeline")
	defer app.SyncLogger()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a := app.New(cfg, "pipeline")
	defer a.Close(context.Background())

	qs, err := a.Queues(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize queues")
	}
	transcriber, err := a.TranscriberService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize transcriber")
	}
	parser, err := a.ParserService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize parser")
	}
	questionnaires, err := a.QuestionnaireService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize questionnaire service")
	}
	ingest, err := a.IngestService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize ingest service")
	}

	var wg sync.WaitGroup
	for _, r := range []struct {
		name   string
		runner interface{ Run(context.Context) error }
	}{
		{"transcriber", a.NewRunner(qs.Transcription, transcriber)},
		{"parser", a.NewRunner(qs.Parser, parser)},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.runner.Run(ctx); err != nil {
				log.WithError(err).WithField("worker", r.name).Error("Worker stopped with error")
			}
		}()
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.SetupRouter(&api.Dependencies{
			Questionnaires: questionnaires,
			Ingest:         ingest,

			AnsweredThreshold: cfg.Questionnaire.AnsweredThreshold,
		}, &cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("API server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("API server forced to shutdown")
	}
	wg.Wait()
	log.Info("Pipeline exited")
}
