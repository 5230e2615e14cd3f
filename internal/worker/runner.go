// Package worker runs the sequential receive-and-handle loop shared by the
// queue-driven pipeline stages.
package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/timmy/callinsight/internal/clock"
	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
)

// Handler processes one delivery. It owns the ack decision: delete, release,
// dead-letter, or leave the message to reappear after its visibility timeout.
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg queue.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg queue.Message) error {
	return f(ctx, msg)
}

// Config holds configuration for a Runner.
type Config struct {
	Queue       queue.Queue
	Handler     Handler
	MaxMessages int
	WaitTime    time.Duration
	// IdleDelay is slept after an empty receive when WaitTime is zero.
	IdleDelay time.Duration
	// MaxErrorDelay caps the backoff between failed receives.
	MaxErrorDelay time.Duration
	Clock         clock.Clock
	Metrics       *metrics.Metrics
}

// Runner is a single sequential polling loop. Several processes may run
// Runners on the same queue; they share nothing in-process.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 1
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Second
	}
	if cfg.MaxErrorDelay <= 0 {
		cfg.MaxErrorDelay = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Runner{cfg: cfg}
}

// Run loops until ctx is cancelled. Receive errors are retried with
// exponential backoff; they never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logger.WithField(ctx, logger.FieldQueue, r.cfg.Queue.Name())
	logger.CtxInfo(ctx, "Worker started")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = r.cfg.MaxErrorDelay
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			logger.CtxInfo(ctx, "Worker stopped")
			return nil
		}

		n, err := r.RunOnce(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			r.cfg.Metrics.RecordReceiveError(r.cfg.Queue.Name())
			delay = bo.NextBackOff()
			logger.FromContext(ctx).WithError(err).Warnf("Receive failed, retrying in %s", delay)
		case n == 0 && r.cfg.WaitTime <= 0:
			bo.Reset()
			delay = r.cfg.IdleDelay
		default:
			bo.Reset()
			continue
		}

		select {
		case <-ctx.Done():
		case <-r.cfg.Clock.After(delay):
		}
	}
}

// RunOnce performs one receive and handles each message in order. It returns
// the number of messages received.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.cfg.Queue.Receive(ctx, r.cfg.MaxMessages, r.cfg.WaitTime)
	if err != nil {
		return 0, err
	}

	for i, msg := range msgs {
		if ctx.Err() != nil {
			r.release(msgs[i:])
			break
		}
		msgCtx := logger.WithField(ctx, logger.FieldMessageID, msg.ID)
		if err := r.cfg.Handler.Handle(msgCtx, msg); err != nil {
			logger.FromContext(msgCtx).WithError(err).Warn("Message not processed")
		}
	}
	return len(msgs), nil
}

// release returns unhandled messages to the queue on shutdown.
func (r *Runner) release(msgs []queue.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, m := range msgs {
		if err := r.cfg.Queue.Release(ctx, m.ReceiptHandle); err != nil {
			logger.GetDefault().WithError(err).WithField(logger.FieldMessageID, m.ID).Warn("Failed to release message")
		}
	}
}
