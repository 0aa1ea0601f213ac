package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	corev1 "k8s.io/api/core/v1"

	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/otel"
)

// PhaseUnsuccessful groups every pod phase other than Running and Succeeded
const PhaseUnsuccessful = "Unsuccessful"

// TTLs are the per-phase ages after which job pods are removed. Zero or negative disables a phase.
type TTLs struct {
	Running      time.Duration
	Succeeded    time.Duration
	Unsuccessful time.Duration
}

// TTLSweeper deletes job pods that outlived the TTL for their phase
type TTLSweeper struct {
	settings
	pods      kubernetes.PodClient
	namespace string
	ttls      TTLs
}

// NewTTLSweeper creates a TTL sweeper for job pods in namespace
func NewTTLSweeper(pods kubernetes.PodClient, namespace string, ttls TTLs, opts ...Option) *TTLSweeper {
	return &TTLSweeper{
		settings:  newSettings(opts),
		pods:      pods,
		namespace: namespace,
		ttls:      ttls,
	}
}

// Sweep runs one pass over the job pods. Only the list call can fail the pass;
// a pod that cannot be deleted is logged and skipped.
func (s *TTLSweeper) Sweep(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(otel.AttrNamespace.String(s.namespace))

	pods, err := s.pods.ListPods(ctx, s.namespace, kubernetes.JobPodSelector)
	if err != nil {
		return fmt.Errorf("failed to list job pods: %w", err)
	}

	now := s.now()
	deleted := 0
	for i := range pods {
		pod := &pods[i]

		ts, ok := podTimestamp(pod)
		if !ok {
			slog.Debug("Skipping pod without a timestamp", "pod", pod.Name)
			continue
		}

		phase, ttl := s.ttlFor(pod.Status.Phase)
		if ttl <= 0 || !ts.Before(now.Add(-ttl)) {
			continue
		}

		if err := s.pods.DeletePod(ctx, pod.Namespace, pod.Name); err != nil {
			slog.Error("Failed to delete expired pod",
				"pod", pod.Name,
				"phase", phase,
				"error", err)
			continue
		}
		deleted++
		s.metrics.RecordPodSwept(ctx, phase)
		slog.Info("Deleted expired pod",
			"pod", pod.Name,
			"phase", phase,
			"age", now.Sub(ts).Round(time.Second))
	}

	span.SetAttributes(otel.AttrResultCount.Int(deleted))
	slog.Debug("Pod TTL sweep finished", "listed", len(pods), "deleted", deleted)
	return nil
}

func (s *TTLSweeper) ttlFor(phase corev1.PodPhase) (string, time.Duration) {
	switch phase {
	case corev1.PodRunning:
		return string(corev1.PodRunning), s.ttls.Running
	case corev1.PodSucceeded:
		return string(corev1.PodSucceeded), s.ttls.Succeeded
	default:
		return PhaseUnsuccessful, s.ttls.Unsuccessful
	}
}

// podTimestamp is the earliest condition transition, else the start time
func podTimestamp(pod *corev1.Pod) (time.Time, bool) {
	var earliest time.Time
	for _, c := range pod.Status.Conditions {
		t := c.LastTransitionTime.Time
		if t.IsZero() {
			continue
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if !earliest.IsZero() {
		return earliest, true
	}
	if pod.Status.StartTime != nil && !pod.Status.StartTime.IsZero() {
		return pod.Status.StartTime.Time, true
	}
	return time.Time{}, false
}
