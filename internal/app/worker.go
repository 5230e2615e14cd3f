package app

import (
	"context"
	"time"

	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/observability"
	"github.com/timmy/callinsight/internal/queue"
	"github.com/timmy/callinsight/internal/worker"
)

// RunWorker serves the observability endpoints and runs a polling loop over q
// until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context, q queue.Queue, h worker.Handler) error {
	obs := observability.NewServer(a.Cfg.Metrics.Port)
	obs.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.GetDefault().WithError(err).Warn("Observability server shutdown failed")
		}
	}()

	runner := a.NewRunner(q, h)
	obs.SetReady(true)
	return runner.Run(logger.SetComponent(ctx, a.Name))
}

// NewRunner builds a polling loop over q with the configured receive settings.
func (a *App) NewRunner(q queue.Queue, h worker.Handler) *worker.Runner {
	return worker.NewRunner(worker.Config{
		Queue:       q,
		Handler:     h,
		MaxMessages: a.Cfg.Queue.MaxMessages,
		WaitTime:    a.Cfg.Queue.WaitTime,
		Clock:       a.Clock,
		Metrics:     a.Metrics,
	})
}
