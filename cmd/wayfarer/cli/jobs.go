package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/jobs"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector is the subset of *asynq.Inspector used for queue stats.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Defaults carries the payload defaults of manually triggered tasks.
type Defaults struct {
	SweepAfter time.Duration
	SweepLimit int
	Retention  time.Duration
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
	defaults  Defaults
}

// NewJobsCLI initialises the CLI helpers against redis.
func NewJobsCLI(opts asynq.RedisClientOpt, defaults Defaults) *JobsCLI {
	return newJobsCLI(asynq.NewClient(opts), asynq.NewInspector(opts), defaults)
}

func newJobsCLI(client Enqueuer, inspector Inspector, defaults Defaults) *JobsCLI {
	if defaults.SweepAfter <= 0 {
		defaults.SweepAfter = 10 * time.Minute
	}
	if defaults.SweepLimit <= 0 {
		defaults.SweepLimit = 200
	}
	if defaults.Retention <= 0 {
		defaults.Retention = 72 * time.Hour
	}
	return &JobsCLI{client: client, inspector: inspector, defaults: defaults}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a maintenance task by name with the configured payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var (
		task *asynq.Task
		err  error
	)
	switch strings.TrimSpace(name) {
	case jobs.TaskOutboxSweep:
		task, err = jobs.NewOutboxSweepTask(c.defaults.SweepAfter, c.defaults.SweepLimit)
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(c.defaults.Retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// Redeliver enqueues a delivery for one notification, typically a FAILED one
// an operator reset to PENDING.
func (c *JobsCLI) Redeliver(ctx context.Context, notificationID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	id := strings.TrimSpace(notificationID)
	if id == "" {
		return nil, errors.New("jobs cli: notification id required")
	}
	task, err := outbox.NewDeliverTask(id)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports metrics for the notification and default queues.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	queues := []string{jobs.QueueNotifications, jobs.QueueDefault}
	out := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: q}
		info, err := c.inspector.GetQueueInfo(q)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("inspect %s: %w", q, err)
		}
		if info != nil {
			stats.Pending, stats.Active, stats.Scheduled = info.Pending, info.Active, info.Scheduled
			stats.Retry, stats.Archived = info.Retry, info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}
