// Package telemetry provides OpenTelemetry instrumentation for the workload launcher.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LauncherMetricsMeterName is the name used for the launcher metrics meter
const LauncherMetricsMeterName = "github.com/stacklok/workload-launcher/launcher"

// Runaway detection states
const (
	RunawayStateNew      = "new"
	RunawayStateExisting = "existing"
)

// Launch outcomes
const (
	LaunchOutcomeSuccess = "success"
	LaunchOutcomeFailure = "failure"
)

// LauncherMetrics holds the OpenTelemetry instruments for the launcher
type LauncherMetrics struct {
	meter           metric.Meter
	claimsResumed   metric.Int64Counter
	podsSwept       metric.Int64Counter
	runawayDetected metric.Int64Counter
	runawayDeleted  metric.Int64Counter
	launches        metric.Int64Counter
}

// NewLauncherMetrics creates a new LauncherMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewLauncherMetrics(provider metric.MeterProvider) (*LauncherMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(LauncherMetricsMeterName)

	claimsResumed, err := meter.Int64Counter(
		"workload_launcher_claims_resumed_total",
		metric.WithDescription("Number of claimed workloads handed back to the launch pipeline at startup"),
		metric.WithUnit("{workload}"),
	)
	if err != nil {
		return nil, err
	}

	podsSwept, err := meter.Int64Counter(
		"workload_launcher_pods_swept_total",
		metric.WithDescription("Number of pods deleted after exceeding their phase TTL"),
		metric.WithUnit("{pod}"),
	)
	if err != nil {
		return nil, err
	}

	runawayDetected, err := meter.Int64Counter(
		"workload_launcher_runaway_pods_detected_total",
		metric.WithDescription("Number of running pods without an active workload, per mark cycle"),
		metric.WithUnit("{pod}"),
	)
	if err != nil {
		return nil, err
	}

	runawayDeleted, err := meter.Int64Counter(
		"workload_launcher_runaway_pods_deleted_total",
		metric.WithDescription("Number of runaway pods past their delete-by deadline"),
		metric.WithUnit("{pod}"),
	)
	if err != nil {
		return nil, err
	}

	launches, err := meter.Int64Counter(
		"workload_launcher_launches_total",
		metric.WithDescription("Number of workload launch attempts"),
		metric.WithUnit("{workload}"),
	)
	if err != nil {
		return nil, err
	}

	return &LauncherMetrics{
		meter:           meter,
		claimsResumed:   claimsResumed,
		podsSwept:       podsSwept,
		runawayDetected: runawayDetected,
		runawayDeleted:  runawayDeleted,
		launches:        launches,
	}, nil
}

// RecordClaimResumed counts one claim handed back to the pipeline
func (m *LauncherMetrics) RecordClaimResumed(ctx context.Context) {
	if m == nil || m.claimsResumed == nil {
		return
	}
	m.claimsResumed.Add(ctx, 1)
}

// RecordPodSwept counts one pod deleted by the TTL sweeper
func (m *LauncherMetrics) RecordPodSwept(ctx context.Context, phase string) {
	if m == nil || m.podsSwept == nil {
		return
	}
	m.podsSwept.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordRunawayDetected adds count pods in the given detection state
func (m *LauncherMetrics) RecordRunawayDetected(ctx context.Context, state string, count int) {
	if m == nil || m.runawayDetected == nil || count <= 0 {
		return
	}
	m.runawayDetected.Add(ctx, int64(count), metric.WithAttributes(attribute.String("state", state)))
}

// RecordRunawayDeleted counts one runaway pod deletion.
// Dry runs are recorded here too and always carry dry_run="false".
func (m *LauncherMetrics) RecordRunawayDeleted(ctx context.Context) {
	if m == nil || m.runawayDeleted == nil {
		return
	}
	m.runawayDeleted.Add(ctx, 1, metric.WithAttributes(attribute.String("dry_run", "false")))
}

// RecordLaunch counts one launch attempt
func (m *LauncherMetrics) RecordLaunch(ctx context.Context, workloadType, outcome string) {
	if m == nil || m.launches == nil {
		return
	}
	m.launches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", workloadType),
		attribute.String("outcome", outcome),
	))
}

// RegisterBacklogGauge exposes the remaining backlog through an observable gauge
func (m *LauncherMetrics) RegisterBacklogGauge(remaining func() int) error {
	if m == nil || m.meter == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge(
		"workload_launcher_backlog_remaining",
		metric.WithDescription("Claimed workloads still blocking intake"),
		metric.WithUnit("{workload}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(remaining()))
			return nil
		}),
	)
	return err
}
