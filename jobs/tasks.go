package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wayfarer-ops/wayfarer/internal/outbox"
)

const (
	// QueueDefault carries maintenance tasks.
	QueueDefault = "default"
	// QueueNotifications carries outbox deliveries.
	QueueNotifications = outbox.QueueNotifications

	// TaskDeliverNotification delivers one staged email.
	TaskDeliverNotification = outbox.TaskDeliver
	// TaskOutboxSweep republishes notifications stuck in PENDING.
	TaskOutboxSweep = "outbox:sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SweepPayload tunes one sweep run.
type SweepPayload struct {
	OlderThanSeconds int `json:"olderThanSeconds"`
	Limit            int `json:"limit"`
}

// NewOutboxSweepTask builds the periodic sweep task.
func NewOutboxSweepTask(olderThan time.Duration, limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{OlderThanSeconds: int(olderThan.Seconds()), Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxSweep, body, asynq.Queue(QueueDefault)), nil
}

// CleanupPayload tunes one idempotency cleanup run.
type CleanupPayload struct {
	RetentionHours int `json:"retentionHours"`
}

// NewIdempotencyCleanupTask builds the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
