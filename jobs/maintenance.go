package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wayfarer-ops/wayfarer/internal/jobs"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SweepJob republishes notifications that stayed PENDING past the threshold,
// covering crashes between commit and enqueue.
type SweepJob struct {
	Store     outbox.StaleLister
	Publisher outbox.Publisher
	OlderThan time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes outbox:sweep tasks.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil || j.Publisher == nil {
		return errors.New("outbox sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	olderThan := j.OlderThan
	if payload.OlderThanSeconds > 0 {
		olderThan = time.Duration(payload.OlderThanSeconds) * time.Second
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskOutboxSweep)
	defer func() {
		err = tracker.End(err)
	}()

	n, err := outbox.Sweep(ctx, j.Store, j.Publisher, olderThan, payload.Limit)
	if err != nil {
		loggerOrDefault(j.Logger).Error("outbox sweep", slog.Any("error", err))
		return err
	}
	if n > 0 {
		loggerOrDefault(j.Logger).Info("outbox sweep republished notifications", slog.Int("count", n))
	}
	return nil
}

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob prunes expired idempotency keys.
type CleanupJob struct {
	Store     KeyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes idempotency:cleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = 72 * time.Hour
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	pruned, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		loggerOrDefault(j.Logger).Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	loggerOrDefault(j.Logger).Info("idempotency keys pruned", slog.Int64("count", pruned), slog.Duration("retention", retention))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
