package backlog

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/workload-launcher/internal/otel"
	"github.com/stacklok/workload-launcher/internal/pipeline"
	"github.com/stacklok/workload-launcher/internal/telemetry"
	"github.com/stacklok/workload-launcher/internal/workload"
)

// Dispatcher hands a workload to the launch pipeline
type Dispatcher interface {
	Accept(ctx context.Context, in pipeline.LaunchInput) error
}

// Tracker is told how large the backlog is and when each claim has been resumed
type Tracker interface {
	TrackBacklogSize(n int)
	RecordResumed()
}

// Resumer re-injects workloads this dataplane claimed before it last stopped
type Resumer struct {
	client      workload.Client
	dispatcher  Dispatcher
	dataplaneID string
	parallelism int

	tracker Tracker
	metrics *telemetry.LauncherMetrics
	tracer  trace.Tracer
}

// ResumerOption configures a Resumer
type ResumerOption func(*Resumer)

// WithTracker reports backlog progress to t
func WithTracker(t Tracker) ResumerOption {
	return func(r *Resumer) {
		r.tracker = t
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *telemetry.LauncherMetrics) ResumerOption {
	return func(r *Resumer) {
		r.metrics = m
	}
}

// WithTracer traces each resumption pass
func WithTracer(t trace.Tracer) ResumerOption {
	return func(r *Resumer) {
		r.tracer = t
	}
}

// NewResumer creates a Resumer dispatching at most parallelism claims at a time
func NewResumer(
	client workload.Client,
	dispatcher Dispatcher,
	dataplaneID string,
	parallelism int,
	opts ...ResumerOption,
) *Resumer {
	if parallelism < 1 {
		parallelism = 1
	}
	r := &Resumer{
		client:      client,
		dispatcher:  dispatcher,
		dataplaneID: dataplaneID,
		parallelism: parallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResumeAll hands every claimed workload back to the pipeline and returns once all of them
// have been accepted. A failed handoff is logged and does not stop the others.
func (r *Resumer) ResumeAll(ctx context.Context) error {
	ctx, span := otel.StartSpan(ctx, r.tracer, "backlog.resume",
		trace.WithAttributes(otel.AttrDataplaneID.String(r.dataplaneID)))
	defer span.End()

	claims, err := r.client.ListWorkloads(ctx, []string{r.dataplaneID}, []workload.Status{workload.StatusClaimed})
	if err != nil {
		err = fmt.Errorf("failed to list claimed workloads: %w", err)
		otel.RecordError(span, err)
		return err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(claims)))

	slog.Info("Resuming claimed workloads",
		"dataplane_id", r.dataplaneID,
		"count", len(claims),
		"parallelism", r.parallelism)

	if r.tracker != nil {
		r.tracker.TrackBacklogSize(len(claims))
	}

	g := new(errgroup.Group)
	g.SetLimit(r.parallelism)

	for _, claim := range claims {
		in := pipeline.NewLaunchInput(claim, true)
		g.Go(func() error {
			r.metrics.RecordClaimResumed(ctx)
			if err := r.dispatcher.Accept(ctx, in); err != nil {
				slog.Error("Failed to resume claimed workload",
					"workload_id", in.WorkloadID,
					"error", err)
				return nil
			}
			if r.tracker != nil {
				r.tracker.RecordResumed()
			}
			return nil
		})
	}

	// handoff errors are swallowed above
	_ = g.Wait()

	slog.Info("Finished resuming claimed workloads", "count", len(claims))
	return nil
}
