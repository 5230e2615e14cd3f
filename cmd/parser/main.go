package main

import (
	"context"
	"flag"

	"github.com/timmy/callinsight/internal/app"
	"github.com/timmy/callinsight/internal/config"
)

func main() {
	log := app.InitLogger("callinsight-parser")
	defer app.SyncLogger()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a := app.New(cfg, "parser")
	defer a.Close(context.Background())

	svc, err := a.ParserService(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize parser")
	}
	qs, err := a.Queues(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize queues")
	}

	log.WithField("segmentation", cfg.Parser.Segmentation).Info("Starting conversation parser")
	if err := a.RunWorker(ctx, qs.Parser, svc); err != nil {
		log.WithError(err).Error("Conversation parser stopped with error")
	}
}
