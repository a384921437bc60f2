package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	jobmetrics "github.com/wayfarer-ops/wayfarer/internal/jobs"
	"github.com/wayfarer-ops/wayfarer/internal/platform/mailer"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
)

// NotificationStore is the persistence used during delivery.
type NotificationStore interface {
	Get(ctx context.Context, id string) (Notification, error)
	MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, final bool) error
}

// Deliverer sends staged notifications.
type Deliverer struct {
	store   NotificationStore
	sender  mailer.Sender
	files   storage.Storage
	public  string
	from    string
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// DelivererConfig collects the dependencies of a Deliverer.
type DelivererConfig struct {
	Store     NotificationStore
	Sender    mailer.Sender
	Storage   storage.Storage
	PublicDir string
	From      string
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// NewDeliverer constructs a Deliverer.
func NewDeliverer(cfg DelivererConfig) *Deliverer {
	files := cfg.Storage
	if files == nil {
		files = storage.Disabled{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		store:   cfg.Store,
		sender:  cfg.Sender,
		files:   files,
		public:  cfg.PublicDir,
		from:    cfg.From,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Deliver sends the notification identified by id. lastAttempt marks transient
// failures as final. Returned errors wrapping ErrPermanent must not be retried.
func (d *Deliverer) Deliver(ctx context.Context, id string, lastAttempt bool) error {
	n, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPermanent, err)
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.Status != StatusPending {
		d.metrics.Notification(string(n.Kind), jobmetrics.OutcomeSkipped)
		return nil
	}
	if n.Recipient == "" {
		if err := d.store.MarkFailed(ctx, n.ID, "recipient missing", true); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		d.metrics.Notification(string(n.Kind), jobmetrics.OutcomeFailed)
		return fmt.Errorf("%w: recipient missing", ErrPermanent)
	}

	attachments, err := d.resolveAttachments(ctx, n)
	if err != nil {
		return d.fail(ctx, n, err, lastAttempt)
	}
	msgID, err := d.sender.Send(ctx, mailer.Message{
		From:        d.from,
		To:          []string{n.Recipient},
		Subject:     n.Subject,
		HTML:        n.HTML,
		Attachments: attachments,
	})
	if err != nil {
		return d.fail(ctx, n, err, lastAttempt)
	}
	if err := d.store.MarkSent(ctx, n.ID, msgID, d.now().UTC()); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	d.metrics.Notification(string(n.Kind), jobmetrics.OutcomeSent)
	d.logger.Info("notification delivered",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("message_id", msgID),
	)
	return nil
}

func (d *Deliverer) fail(ctx context.Context, n Notification, cause error, lastAttempt bool) error {
	permanent := errors.Is(cause, mailer.ErrPermanent) || errors.Is(cause, ErrPermanent)
	final := permanent || lastAttempt
	if err := d.store.MarkFailed(ctx, n.ID, cause.Error(), final); err != nil {
		d.logger.Error("record delivery failure", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	outcome := jobmetrics.OutcomeRetry
	if final {
		outcome = jobmetrics.OutcomeFailed
	}
	d.metrics.Notification(string(n.Kind), outcome)
	d.logger.Warn("notification delivery failed",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.Bool("final", final),
		slog.Any("error", cause),
	)
	if permanent {
		return fmt.Errorf("%w: %v", ErrPermanent, cause)
	}
	return cause
}

// resolveAttachments loads attachment bytes. Missing files are dropped so the
// email still goes out; storage outages are returned for retry.
func (d *Deliverer) resolveAttachments(ctx context.Context, n Notification) ([]mailer.Attachment, error) {
	out := make([]mailer.Attachment, 0, len(n.Attachments))
	for _, ref := range n.Attachments {
		var (
			data        []byte
			contentType = ref.ContentType
			err         error
		)
		switch {
		case ref.StorageKey != "":
			var ct string
			data, ct, err = d.files.Get(ctx, ref.StorageKey)
			if contentType == "" {
				contentType = ct
			}
			if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrNotConfigured) {
				d.logger.Warn("attachment unavailable", slog.String("notification_id", n.ID), slog.String("key", ref.StorageKey), slog.Any("error", err))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("fetch attachment %s: %w", ref.StorageKey, err)
			}
		case ref.LocalPath != "":
			path, ok := FindLocal(d.public, ref.LocalPath)
			if !ok {
				d.logger.Warn("attachment missing on disk", slog.String("notification_id", n.ID), slog.String("path", ref.LocalPath))
				continue
			}
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read attachment %s: %w", path, err)
			}
		default:
			continue
		}
		if contentType == "" {
			contentType = "application/pdf"
		}
		out = append(out, mailer.Attachment{Filename: ref.Filename, ContentType: contentType, Data: data})
	}
	return out, nil
}

// StaleLister lists pending notifications older than a cutoff.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Sweep republishes pending notifications older than olderThan and reports how many were handed over.
func Sweep(ctx context.Context, store StaleLister, pub Publisher, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	ids, err := store.ListStale(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale notifications: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := pub.Publish(ctx, ids...); err != nil {
		return 0, fmt.Errorf("republish notifications: %w", err)
	}
	return len(ids), nil
}
