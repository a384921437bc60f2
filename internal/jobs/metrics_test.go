package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("outbox:sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("outbox:sweep").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox:sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox:sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("outbox:sweep")))
}

func TestNotificationCounter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Notification("dmc_share", OutcomeSent)
	m.Notification("dmc_share", OutcomeSent)
	m.Notification("payment_notice", OutcomeFailed)
	m.Notification("", OutcomeSent)

	require.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("dmc_share", OutcomeSent)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("payment_notice", OutcomeFailed)))

	var nilMetrics *Metrics
	nilMetrics.Notification("dmc_share", OutcomeSent)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
