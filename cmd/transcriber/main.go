package main

import (
	"context"
	"flag"

	"github.com/timmy/callinsight/internal/app"
	"github.com/timmy/callinsight/internal/config"
)

func main() {
	log := app.InitLogger("callinsight-transcriber")
	defer app.SyncLogger()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a := app.New(cfg, "transcriber")
	defer a.Close(context.Background())

	svc, err := a.TranscriberService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize transcriber")
	}
	qs, err := a.Queues(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize queues")
	}

	log.WithField("provider", cfg.Transcription.Provider).Info("Starting transcription worker")
	if err := a.RunWorker(ctx, qs.Transcription, svc); err != nil {
		log.WithError(err).Error("Transcription worker stopped with error")
	}
}
