package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/wayfarer-ops/wayfarer/internal/jobs"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/mailer"
)

type flakySender struct {
	err   error
	calls int
}

func (f *flakySender) Send(context.Context, mailer.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("msg-%d", f.calls), nil
}

func stage(t *testing.T, store *outbox.MemoryStore) outbox.Notification {
	t.Helper()
	n := outbox.New(outbox.Draft{Kind: outbox.KindDMCShare, Recipient: "dmc@partner.test", Subject: "Quote", HTML: "<p>hi</p>"})
	require.NoError(t, store.Insert(context.Background(), n))
	return n
}

func deliverTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := outbox.NewDeliverTask(id)
	require.NoError(t, err)
	return task
}

func newDeliverJob(store *outbox.MemoryStore, sender mailer.Sender, final bool) *DeliverJob {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	d := outbox.NewDeliverer(outbox.DelivererConfig{Store: store, Sender: sender, From: "ops@agency.test", Metrics: metrics})
	job := NewDeliverJob(d, nil, metrics)
	job.attempt = func(context.Context) bool { return final }
	return job
}

func TestDeliverJobMarksSent(t *testing.T) {
	store := outbox.NewMemoryStore()
	n := stage(t, store)
	sender := &flakySender{}

	require.NoError(t, newDeliverJob(store, sender, false).Handle(context.Background(), deliverTask(t, n.ID)))
	got, err := store.Get(context.Background(), n.ID)
	require.NoError(t, err)
	require.Equal(t, outbox.StatusSent, got.Status)
	require.Equal(t, "msg-1", got.ProviderMessageID)

	require.NoError(t, newDeliverJob(store, sender, false).Handle(context.Background(), deliverTask(t, n.ID)))
	require.Equal(t, 1, sender.calls, "a sent notification is not delivered twice")
}

func TestDeliverJobRetriesTransientFailures(t *testing.T) {
	store := outbox.NewMemoryStore()
	n := stage(t, store)
	sender := &flakySender{err: errors.New("connection reset")}

	err := newDeliverJob(store, sender, false).Handle(context.Background(), deliverTask(t, n.ID))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	got, _ := store.Get(context.Background(), n.ID)
	require.Equal(t, outbox.StatusPending, got.Status)
	require.Equal(t, 1, got.Attempts)

	err = newDeliverJob(store, sender, true).Handle(context.Background(), deliverTask(t, n.ID))
	require.Error(t, err)
	got, _ = store.Get(context.Background(), n.ID)
	require.Equal(t, outbox.StatusFailed, got.Status)
	require.Equal(t, "connection reset", got.LastError)
}

func TestDeliverJobSkipsRetryOnPermanentFailure(t *testing.T) {
	store := outbox.NewMemoryStore()
	n := stage(t, store)
	sender := &flakySender{err: fmt.Errorf("%w: mailbox unavailable", mailer.ErrPermanent)}

	err := newDeliverJob(store, sender, false).Handle(context.Background(), deliverTask(t, n.ID))
	require.ErrorIs(t, err, asynq.SkipRetry)
	got, _ := store.Get(context.Background(), n.ID)
	require.Equal(t, outbox.StatusFailed, got.Status)

	err = newDeliverJob(store, sender, false).Handle(context.Background(), asynq.NewTask(TaskDeliverNotification, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = newDeliverJob(store, sender, false).Handle(context.Background(), deliverTask(t, "unknown"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSweepJobRepublishesStalePending(t *testing.T) {
	store := outbox.NewMemoryStore()
	stale := stage(t, store)
	sent := stage(t, store)
	require.NoError(t, store.MarkSent(context.Background(), sent.ID, "msg", time.Now()))

	pub := &outbox.Recorder{}
	job := &SweepJob{Store: store, Publisher: pub, OlderThan: time.Hour, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewOutboxSweepTask(time.Hour, 50)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, pub.IDs, "fresh notifications are left alone")

	body, err := json.Marshal(SweepPayload{OlderThanSeconds: 1})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskOutboxSweep, body)))
	require.Equal(t, []string{stale.ID}, pub.IDs)

	pub.Err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskOutboxSweep, body)))
}

type fakePruner struct {
	retention time.Duration
}

func (f *fakePruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 3, nil
}

func TestCleanupJobUsesPayloadRetention(t *testing.T) {
	pruner := &fakePruner{}
	job := &CleanupJob{Store: pruner, Retention: 24 * time.Hour, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 24*time.Hour, pruner.retention)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, pruner.retention)
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsBothQueues(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{QueueNotifications: {Queue: QueueNotifications, Pending: 4, Retry: 1}}, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Queues []QueueHealth `json:"queues"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []QueueHealth{
		{Queue: QueueNotifications, Pending: 4, Retry: 1},
		{Queue: QueueDefault},
	}, body.Data.Queues)
}
