package service

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/callinsight/internal/logger"
	"github.com/timmy/callinsight/internal/metrics"
	"github.com/timmy/callinsight/internal/queue"
)

// ErrAttemptsExhausted is the failure recorded for a message delivered more
// often than the attempt bound allows.
var ErrAttemptsExhausted = errors.New("delivery attempts exhausted")

// delivery applies the ack policy shared by the queue-driven stages:
// poison messages are dead-lettered at once, failed attempts are left to
// reappear until the receive count reaches maxAttempts, and shutdown releases.
type delivery struct {
	source      queue.Queue
	deadLetter  queue.Queue
	maxAttempts int
	metrics     *metrics.Metrics
}

// exhausted reports whether msg is on its last allowed attempt.
func (d delivery) exhausted(msg queue.Message) bool {
	return d.maxAttempts > 0 && msg.ReceiveCount >= d.maxAttempts
}

// overdue reports whether msg was delivered past its last attempt, e.g. after
// a dead-letter move whose delete failed.
func (d delivery) overdue(msg queue.Message) bool {
	return d.maxAttempts > 0 && msg.ReceiveCount > d.maxAttempts
}

// toDeadLetter moves msg with body to the dead-letter queue. Without a
// dead-letter queue the body is logged and the message deleted, so the
// attempt bound holds either way.
func (d delivery) toDeadLetter(ctx context.Context, msg queue.Message, body []byte, reason error) error {
	log := logger.FromContext(ctx).WithError(reason).WithField(logger.FieldAttempt, msg.ReceiveCount)
	err := queue.MoveToDeadLetter(ctx, d.source, d.deadLetter, msg, body)
	if errors.Is(err, queue.ErrNoDeadLetter) {
		if body == nil {
			body = msg.Body
		}
		if derr := d.source.Delete(ctx, msg.ReceiptHandle); derr != nil {
			log.WithField("delete_error", derr.Error()).Error("Failed to drop message without dead-letter queue")
			return derr
		}
		d.metrics.RecordDeadLetter(d.source.Name())
		log.WithField("body", string(body)).Error("No dead-letter queue configured, message dropped")
		return reason
	}
	if err != nil {
		log.WithField("dlq_error", err.Error()).Error("Failed to dead-letter message")
		return err
	}
	d.metrics.RecordDeadLetter(d.source.Name())
	log.Warn("Message moved to dead-letter queue")
	return reason
}

// release makes msg visible again. It runs on a fresh context because ctx is
// usually already cancelled.
func (d delivery) release(ctx context.Context, msg queue.Message) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.source.Release(rctx, msg.ReceiptHandle); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to release message")
		return
	}
	logger.FromContext(ctx).Info("Message released for redelivery")
}

// retryLater logs a failed attempt and leaves msg to reappear after its
// visibility timeout.
func (d delivery) retryLater(ctx context.Context, msg queue.Message, reason error) error {
	logger.FromContext(ctx).WithError(reason).WithFields(logger.Fields{
		logger.FieldAttempt: msg.ReceiveCount,
		"max_attempts":      d.maxAttempts,
	}).Warn("Attempt failed, message will be redelivered")
	return reason
}
