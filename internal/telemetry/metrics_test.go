package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*LauncherMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewLauncherMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != LauncherMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func sumFor(t *testing.T, data metricdata.Aggregation, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum")
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewLauncherMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewLauncherMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates instruments with SDK provider", func(t *testing.T) {
		t.Parallel()

		metrics, _ := newTestMetrics(t)
		assert.NotNil(t, metrics.claimsResumed)
		assert.NotNil(t, metrics.podsSwept)
		assert.NotNil(t, metrics.runawayDetected)
		assert.NotNil(t, metrics.runawayDeleted)
		assert.NotNil(t, metrics.launches)
	})
}

func TestLauncherMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var metrics *LauncherMetrics
	ctx := context.Background()

	// None of these should panic
	metrics.RecordClaimResumed(ctx)
	metrics.RecordPodSwept(ctx, "Running")
	metrics.RecordRunawayDetected(ctx, RunawayStateNew, 3)
	metrics.RecordRunawayDeleted(ctx)
	metrics.RecordLaunch(ctx, "sync", LaunchOutcomeSuccess)
	assert.NoError(t, metrics.RegisterBacklogGauge(func() int { return 1 }))
}

func TestLauncherMetrics_Counters(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordClaimResumed(ctx)
	metrics.RecordClaimResumed(ctx)
	metrics.RecordPodSwept(ctx, "Running")
	metrics.RecordPodSwept(ctx, "Succeeded")
	metrics.RecordPodSwept(ctx, "Running")
	metrics.RecordRunawayDetected(ctx, RunawayStateNew, 2)
	metrics.RecordRunawayDetected(ctx, RunawayStateExisting, 5)
	metrics.RecordRunawayDetected(ctx, RunawayStateExisting, 0)
	metrics.RecordRunawayDeleted(ctx)
	metrics.RecordLaunch(ctx, "sync", LaunchOutcomeFailure)

	assert.Equal(t, int64(2), sumFor(t, collect(t, reader, "workload_launcher_claims_resumed_total")))

	swept := collect(t, reader, "workload_launcher_pods_swept_total")
	assert.Equal(t, int64(2), sumFor(t, swept, attribute.String("phase", "Running")))
	assert.Equal(t, int64(1), sumFor(t, swept, attribute.String("phase", "Succeeded")))

	detected := collect(t, reader, "workload_launcher_runaway_pods_detected_total")
	assert.Equal(t, int64(2), sumFor(t, detected, attribute.String("state", RunawayStateNew)))
	assert.Equal(t, int64(5), sumFor(t, detected, attribute.String("state", RunawayStateExisting)))

	deleted := collect(t, reader, "workload_launcher_runaway_pods_deleted_total")
	assert.Equal(t, int64(1), sumFor(t, deleted, attribute.String("dry_run", "false")))

	launches := collect(t, reader, "workload_launcher_launches_total")
	assert.Equal(t, int64(1), sumFor(t, launches,
		attribute.String("type", "sync"),
		attribute.String("outcome", LaunchOutcomeFailure)))
}

func TestLauncherMetrics_BacklogGauge(t *testing.T) {
	t.Parallel()

	metrics, reader := newTestMetrics(t)
	remaining := 7
	require.NoError(t, metrics.RegisterBacklogGauge(func() int { return remaining }))

	gauge, ok := collect(t, reader, "workload_launcher_backlog_remaining").(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}
