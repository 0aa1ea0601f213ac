package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	corev1 "k8s.io/api/core/v1"

	"github.com/stacklok/workload-launcher/internal/dataplane"
	"github.com/stacklok/workload-launcher/internal/featureflag"
	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/otel"
	"github.com/stacklok/workload-launcher/internal/telemetry"
	"github.com/stacklok/workload-launcher/internal/workload"
)

// DefaultGracePeriod is how long a runaway pod keeps running after it is marked
const DefaultGracePeriod = 24 * time.Hour

// IdentitySource supplies the dataplane identity the detector evaluates flags and ledger queries for
type IdentitySource interface {
	Latest() (dataplane.Config, bool)
}

// RunawayDetector finds running job pods the ledger no longer considers active, labels them
// with a delete-by deadline, and removes them once the deadline passes.
type RunawayDetector struct {
	settings
	pods      kubernetes.PodClient
	ledger    workload.Client
	flags     featureflag.Client
	identity  IdentitySource
	namespace string
	grace     time.Duration
}

// NewRunawayDetector creates a detector for job pods in namespace. A grace <= 0 uses DefaultGracePeriod.
func NewRunawayDetector(
	pods kubernetes.PodClient,
	ledger workload.Client,
	flags featureflag.Client,
	identity IdentitySource,
	namespace string,
	grace time.Duration,
	opts ...Option,
) *RunawayDetector {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &RunawayDetector{
		settings:  newSettings(opts),
		pods:      pods,
		ledger:    ledger,
		flags:     flags,
		identity:  identity,
		namespace: namespace,
		grace:     grace,
	}
}

// detectionEnabled returns the identity to act for, or false when detection is off or
// no identity has been published yet.
func (d *RunawayDetector) detectionEnabled(ctx context.Context) (dataplane.Config, bool) {
	cfg, ok := d.identity.Latest()
	if !ok || cfg.DataplaneID == "" {
		slog.Debug("No dataplane identity yet, skipping runaway detection")
		return dataplane.Config{}, false
	}
	if !d.flags.BoolVariation(ctx, featureflag.RunawayPodDetection, featureflag.Dataplane(cfg.DataplaneID)) {
		return dataplane.Config{}, false
	}
	trace.SpanFromContext(ctx).SetAttributes(
		otel.AttrDataplaneID.String(cfg.DataplaneID),
		otel.AttrNamespace.String(d.namespace),
	)
	return cfg, true
}

// activeAutoIDs returns the auto ids of this dataplane's workloads the ledger still considers active
func (d *RunawayDetector) activeAutoIDs(ctx context.Context, dataplaneID string) (map[string]struct{}, error) {
	active, err := d.ledger.ListWorkloads(ctx, []string{dataplaneID}, workload.ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workloads: %w", err)
	}
	ids := make(map[string]struct{}, len(active))
	for _, w := range active {
		if w.AutoID != "" {
			ids[w.AutoID] = struct{}{}
		}
	}
	return ids, nil
}

// Mark labels every running job pod without an active ledger record with a delete-by deadline.
// Pods marked on an earlier pass keep their deadline. A marked pod whose workload is active
// again loses its label.
func (d *RunawayDetector) Mark(ctx context.Context) error {
	cfg, ok := d.detectionEnabled(ctx)
	if !ok {
		return nil
	}

	activeIDs, err := d.activeAutoIDs(ctx, cfg.DataplaneID)
	if err != nil {
		return err
	}

	pods, err := d.pods.ListPods(ctx, d.namespace, kubernetes.JobPodSelector)
	if err != nil {
		return fmt.Errorf("failed to list job pods: %w", err)
	}

	deleteBy := strconv.FormatInt(d.now().Add(d.grace).Unix(), 10)
	var newlyMarked, alreadyMarked int
	for i := range pods {
		pod := &pods[i]
		autoID := pod.Labels[kubernetes.LabelAutoID]
		if autoID == "" {
			continue
		}
		_, marked := pod.Labels[kubernetes.LabelDeleteBy]

		if _, ok := activeIDs[autoID]; ok {
			if marked {
				d.unmark(ctx, pod, autoID)
			}
			continue
		}
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		if marked {
			alreadyMarked++
			continue
		}

		err := d.pods.PatchLabels(ctx, pod.Namespace, pod.Name, map[string]string{kubernetes.LabelDeleteBy: deleteBy})
		if err != nil {
			slog.Error("Failed to mark runaway pod", "pod", pod.Name, "auto_id", autoID, "error", err)
			continue
		}
		newlyMarked++
		slog.Info("Marked runaway pod", "pod", pod.Name, "auto_id", autoID, "delete_by", deleteBy)
	}

	trace.SpanFromContext(ctx).SetAttributes(otel.AttrResultCount.Int(newlyMarked))
	d.metrics.RecordRunawayDetected(ctx, telemetry.RunawayStateNew, newlyMarked)
	d.metrics.RecordRunawayDetected(ctx, telemetry.RunawayStateExisting, alreadyMarked)
	slog.Info("Runaway pod detection finished",
		"dataplane_id", cfg.DataplaneID,
		"new", newlyMarked,
		"existing", alreadyMarked)
	return nil
}

func (d *RunawayDetector) unmark(ctx context.Context, pod *corev1.Pod, autoID string) {
	if err := d.pods.RemoveLabel(ctx, pod.Namespace, pod.Name, kubernetes.LabelDeleteBy); err != nil {
		slog.Error("Failed to unmark pod", "pod", pod.Name, "auto_id", autoID, "error", err)
		return
	}
	slog.Info("Unmarked pod whose workload is active again", "pod", pod.Name, "auto_id", autoID)
}

// Sweep deletes marked pods whose deadline has passed and whose workload is still not active.
// Without the deletion flag it only logs what it would delete. The ledger is read before any
// deletion; if it cannot be read nothing is deleted.
func (d *RunawayDetector) Sweep(ctx context.Context) error {
	cfg, ok := d.detectionEnabled(ctx)
	if !ok {
		return nil
	}
	destructive := d.flags.BoolVariation(ctx, featureflag.RunawayPodDeletion, featureflag.Dataplane(cfg.DataplaneID))

	pods, err := d.pods.ListPods(ctx, d.namespace, kubernetes.DeleteBySelector)
	if err != nil {
		return fmt.Errorf("failed to list marked pods: %w", err)
	}
	if len(pods) == 0 {
		return nil
	}

	activeIDs, err := d.activeAutoIDs(ctx, cfg.DataplaneID)
	if err != nil {
		return err
	}

	now := d.now().Unix()
	removed := 0
	for i := range pods {
		pod := &pods[i]
		raw := pod.Labels[kubernetes.LabelDeleteBy]
		deadline, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("Ignoring pod with malformed delete-by label", "pod", pod.Name, "value", raw)
			continue
		}
		if now < deadline {
			continue
		}
		if _, ok := activeIDs[pod.Labels[kubernetes.LabelAutoID]]; ok {
			slog.Info("Skipping marked pod whose workload is active again", "pod", pod.Name)
			continue
		}

		if !destructive {
			slog.Info("Dry run: would delete runaway pod", "pod", pod.Name, "delete_by", deadline)
			d.metrics.RecordRunawayDeleted(ctx)
			removed++
			continue
		}

		if err := d.pods.DeletePod(ctx, pod.Namespace, pod.Name); err != nil {
			slog.Error("Failed to delete runaway pod", "pod", pod.Name, "error", err)
			continue
		}
		d.metrics.RecordRunawayDeleted(ctx)
		removed++
		slog.Info("Deleted runaway pod", "pod", pod.Name, "delete_by", deadline)
	}
	trace.SpanFromContext(ctx).SetAttributes(otel.AttrResultCount.Int(removed))
	return nil
}
