package jobs

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceRetentionDefaults(t *testing.T) {
	m := NewMaintenance(slog.Default(), nil, nil, nil, 0, 0)
	require.Equal(t, 7*24*60*60.0, m.idemRetention.Seconds())
	require.Equal(t, 90*24*60*60.0, m.auditRetention.Seconds())
}

func TestMaintenanceHandlersRecordMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	m := NewMaintenance(slog.Default(), nil, nil, metrics, 0, 0)

	require.NoError(t, m.HandleIdempotencyCleanup(context.Background(), NewIdempotencyCleanupTask()))
	require.NoError(t, m.HandleAuditPrune(context.Background(), NewAuditPruneTask()))

	runs := testutil.ToFloat64(metrics.runs.WithLabelValues(TaskIdempotencyCleanup, "success"))
	require.Equal(t, 1.0, runs)
	runs = testutil.ToFloat64(metrics.runs.WithLabelValues(TaskAuditPrune, "success"))
	require.Equal(t, 1.0, runs)
}

func TestTrackerNilMetricsSafe(t *testing.T) {
	var m *Metrics
	tracker := m.Track("anything")
	require.NoError(t, tracker.End(nil))
}
