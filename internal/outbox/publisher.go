package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Publisher hands committed notifications to the delivery mechanism.
type Publisher interface {
	Publish(ctx context.Context, ids ...string) error
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuePublisher enqueues one delivery task per notification.
type QueuePublisher struct {
	client Enqueuer
}

// NewQueuePublisher constructs a queue backed publisher.
func NewQueuePublisher(client Enqueuer) *QueuePublisher {
	return &QueuePublisher{client: client}
}

// Publish implements Publisher. Already queued notifications are not an error.
func (p *QueuePublisher) Publish(ctx context.Context, ids ...string) error {
	var errs []error
	for _, id := range ids {
		task, err := NewDeliverTask(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := p.client.EnqueueContext(ctx, task); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
				continue
			}
			errs = append(errs, fmt.Errorf("enqueue %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// InlinePublisher delivers immediately in the calling goroutine.
// Failed deliveries stay PENDING for the sweeper.
type InlinePublisher struct {
	deliverer *Deliverer
	logger    *slog.Logger
}

// NewInlinePublisher constructs an inline publisher.
func NewInlinePublisher(d *Deliverer, logger *slog.Logger) *InlinePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlinePublisher{deliverer: d, logger: logger}
}

// Publish implements Publisher.
func (p *InlinePublisher) Publish(ctx context.Context, ids ...string) error {
	var errs []error
	for _, id := range ids {
		if err := p.deliverer.Deliver(ctx, id, false); err != nil {
			p.logger.Warn("inline delivery failed", slog.String("notification_id", id), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder captures published ids; used by tests.
type Recorder struct {
	IDs []string
	Err error
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ids ...string) error {
	if r.Err != nil {
		return r.Err
	}
	r.IDs = append(r.IDs, ids...)
	return nil
}
