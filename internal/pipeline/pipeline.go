// Package pipeline turns claimed workloads into running pods: it negotiates the data
// channel of syncs, builds the pod, creates it and reports the launch to the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
	corev1 "k8s.io/api/core/v1"

	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/negotiation"
	"github.com/stacklok/workload-launcher/internal/otel"
	"github.com/stacklok/workload-launcher/internal/telemetry"
	"github.com/stacklok/workload-launcher/internal/workload"
)

const (
	defaultWorkers    = 4
	defaultBufferSize = 64
)

// ErrStopped is returned by Accept once the pipeline has been stopped
var ErrStopped = errors.New("launch pipeline is stopped")

// Negotiator decides the data-channel environment of a sync
type Negotiator interface {
	Decide(ctx context.Context, in *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error)
}

// Pipeline is a buffered queue of launch inputs drained by a fixed set of workers
type Pipeline struct {
	negotiator Negotiator
	factory    *kubernetes.PodFactory
	pods       kubernetes.PodClient
	ledger     workload.Client

	workers int
	inputs  chan LaunchInput
	metrics *telemetry.LauncherMetrics
	tracer  trace.Tracer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Pipeline
type Option func(*pipelineOptions)

type pipelineOptions struct {
	workers    int
	bufferSize int
	metrics    *telemetry.LauncherMetrics
	tracer     trace.Tracer
}

// WithWorkers sets the number of concurrent launches. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *pipelineOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBufferSize sets how many accepted inputs may wait for a worker
func WithBufferSize(n int) Option {
	return func(o *pipelineOptions) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// WithMetrics records launch outcomes on m
func WithMetrics(m *telemetry.LauncherMetrics) Option {
	return func(o *pipelineOptions) {
		o.metrics = m
	}
}

// WithTracer traces each launch with t
func WithTracer(t trace.Tracer) Option {
	return func(o *pipelineOptions) {
		o.tracer = t
	}
}

// New creates a pipeline. It does not process anything until Start is called.
func New(
	negotiator Negotiator,
	factory *kubernetes.PodFactory,
	pods kubernetes.PodClient,
	ledger workload.Client,
	opts ...Option,
) *Pipeline {
	o := pipelineOptions{workers: defaultWorkers, bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	return &Pipeline{
		negotiator: negotiator,
		factory:    factory,
		pods:       pods,
		ledger:     ledger,
		workers:    o.workers,
		inputs:     make(chan LaunchInput, o.bufferSize),
		metrics:    o.metrics,
		tracer:     o.tracer,
		done:       make(chan struct{}),
	}
}

// Accept hands one input to the pipeline. It blocks while the buffer is full.
func (p *Pipeline) Accept(ctx context.Context, in LaunchInput) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}

	select {
	case p.inputs <- in:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers. Calling it more than once, or after Stop, has no effect.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	slog.Info("Starting launch pipeline", "workers", p.workers, "buffer", cap(p.inputs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(workerCtx)
	}
}

// Stop rejects further inputs and waits for in-flight launches to finish.
// Inputs still buffered are dropped; their workloads stay claimed and are resumed on the next start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return
	default:
		close(p.done)
	}
	cancel := p.cancel
	p.mu.Unlock()

	slog.Info("Stopping launch pipeline", "pending", len(p.inputs))
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Pipeline) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-p.inputs:
			// a launch runs to completion once picked up
			p.launch(context.WithoutCancel(ctx), in)
		}
	}
}

func (p *Pipeline) launch(ctx context.Context, in LaunchInput) {
	ctx, span := otel.StartSpan(ctx, p.tracer, "pipeline.launch",
		trace.WithAttributes(
			otel.AttrWorkloadID.String(in.WorkloadID),
			otel.AttrWorkloadType.String(string(in.Type)),
		))
	defer span.End()

	err := p.run(ctx, in)
	if err != nil {
		otel.RecordError(span, err)
		p.metrics.RecordLaunch(ctx, string(in.Type), telemetry.LaunchOutcomeFailure)
		slog.Error("Failed to launch workload",
			"workload_id", in.WorkloadID,
			"type", in.Type,
			"resumed", in.Resumed,
			"error", err)
		return
	}

	p.metrics.RecordLaunch(ctx, string(in.Type), telemetry.LaunchOutcomeSuccess)
	slog.Info("Launched workload",
		"workload_id", in.WorkloadID,
		"type", in.Type,
		"resumed", in.Resumed)
}

// run builds and creates the pod. Inputs that can never launch are reported to the ledger
// as failures; a cluster or ledger error leaves the workload claimed.
func (p *Pipeline) run(ctx context.Context, in LaunchInput) error {
	pod, err := p.buildPod(ctx, in)
	if err != nil {
		if reportErr := p.ledger.Failure(ctx, in.WorkloadID, err.Error()); reportErr != nil {
			return errors.Join(err, fmt.Errorf("failed to report failure: %w", reportErr))
		}
		return err
	}

	if err := p.pods.CreatePod(ctx, pod); err != nil {
		return err
	}
	if err := p.ledger.Launched(ctx, in.WorkloadID); err != nil {
		return fmt.Errorf("pod %s created but launch was not recorded: %w", pod.Name, err)
	}
	return nil
}

func (p *Pipeline) buildPod(ctx context.Context, in LaunchInput) (*corev1.Pod, error) {
	meta := kubernetes.PodMeta{
		WorkloadID: in.WorkloadID,
		AutoID:     in.AutoID,
		Type:       string(in.Type),
		MutexKey:   in.MutexKey,
		Labels:     in.Labels,
	}

	if in.Type == workload.TypeSync {
		input, err := in.syncPayload()
		if err != nil {
			return nil, err
		}
		env, err := p.negotiator.Decide(ctx, input)
		if err != nil {
			return nil, err
		}
		slog.Debug("Negotiated data channel", "workload_id", in.WorkloadID, "environment", env.String())
		return p.factory.SyncPod(meta, input.Source, input.Destination, env)
	}

	payload, err := in.connectorPayload()
	if err != nil {
		return nil, err
	}
	return p.factory.ConnectorPod(meta, payload.Image, payload.Resources.CPULimit, payload.Args)
}
