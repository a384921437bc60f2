package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wayfarer-ops/wayfarer/internal/jobs"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
)

// Delivery sends one notification; implemented by *outbox.Deliverer.
type Delivery interface {
	Deliver(ctx context.Context, id string, lastAttempt bool) error
}

// DeliverJob is the asynq handler for email:deliver.
type DeliverJob struct {
	Deliverer Delivery
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	attempt   func(ctx context.Context) bool
}

// NewDeliverJob wires the delivery handler.
func NewDeliverJob(d Delivery, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliverJob {
	return &DeliverJob{Deliverer: d, Logger: logger, Metrics: metrics, attempt: lastAttempt}
}

// lastAttempt reports whether asynq will not retry the running task again.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// Handle processes delivery tasks. Permanent failures skip the retry queue.
func (j *DeliverJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Deliverer == nil {
		return errors.New("deliver notification: handler not configured")
	}
	tracker := j.metrics().Track(TaskDeliverNotification)
	defer func() {
		err = tracker.End(err)
	}()

	payload, err := outbox.ParseDeliverPayload(t)
	if err != nil {
		j.logger().Error("decode delivery task", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	final := false
	if j.attempt != nil {
		final = j.attempt(ctx)
	}
	if err := j.Deliverer.Deliver(ctx, payload.NotificationID, final); err != nil {
		if errors.Is(err, outbox.ErrPermanent) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (j *DeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
