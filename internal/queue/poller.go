// Package queue pulls pending workloads from the control plane queue, claims them for this
// dataplane and hands them to the launch pipeline.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/workload-launcher/internal/dataplane"
	"github.com/stacklok/workload-launcher/internal/pipeline"
	"github.com/stacklok/workload-launcher/internal/telemetry"
	"github.com/stacklok/workload-launcher/internal/workload"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultQuantity     = 10
)

// Dispatcher hands a claimed workload to the launch pipeline
type Dispatcher interface {
	Accept(ctx context.Context, in pipeline.LaunchInput) error
}

// IdentitySource supplies the dataplane id workloads are claimed for
type IdentitySource interface {
	Latest() (dataplane.Config, bool)
}

// Poller is the dataplane.QueueConsumer backed by the ledger's queue endpoints.
// It starts suspended; Resume and Suspend only flip a flag checked before each poll.
type Poller struct {
	ledger     workload.Client
	dispatcher Dispatcher
	identity   IdentitySource

	interval time.Duration
	quantity int
	priority string
	metrics  *telemetry.LauncherMetrics

	resumed atomic.Bool

	mu      sync.Mutex
	groupID string
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ dataplane.QueueConsumer = (*Poller)(nil)

// Option configures a Poller
type Option func(*Poller)

// WithPollInterval sets the time between polls
func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithQuantity sets how many workloads one poll asks for
func WithQuantity(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.quantity = n
		}
	}
}

// WithPriority restricts polling to one queue priority
func WithPriority(priority string) Option {
	return func(p *Poller) {
		p.priority = priority
	}
}

// WithMetrics records launches that could not be handed off
func WithMetrics(m *telemetry.LauncherMetrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller creates a suspended poller. Nothing is polled until Initialize and Resume.
func NewPoller(ledger workload.Client, dispatcher Dispatcher, identity IdentitySource, opts ...Option) *Poller {
	p := &Poller{
		ledger:     ledger,
		dispatcher: dispatcher,
		identity:   identity,
		interval:   defaultPollInterval,
		quantity:   defaultQuantity,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize implements dataplane.QueueConsumer. The loop is started on the first call;
// later calls only move the poller to another group.
func (p *Poller) Initialize(ctx context.Context, groupID string) error {
	if groupID == "" {
		return errors.New("dataplane group id is required to poll the queue")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.groupID != groupID {
		slog.Info("Queue poller scoped to dataplane group", "group_id", groupID)
	}
	p.groupID = groupID
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)
	return nil
}

// Resume implements dataplane.QueueConsumer
func (p *Poller) Resume() {
	if !p.resumed.Swap(true) {
		slog.Info("Queue polling resumed")
	}
}

// Suspend implements dataplane.QueueConsumer
func (p *Poller) Suspend() {
	if p.resumed.Swap(false) {
		slog.Info("Queue polling suspended")
	}
}

// Resumed reports whether the poller is consuming
func (p *Poller) Resumed() bool {
	return p.resumed.Load()
}

// Stop ends the loop and waits for an in-flight poll to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.resumed.Load() {
				p.poll(ctx)
			}
		case <-ctx.Done():
			slog.Info("Queue poller stopping")
			return
		}
	}
}

// poll takes one batch from the queue. Workloads claimed by another dataplane in the
// meantime are skipped.
func (p *Poller) poll(ctx context.Context) {
	identity, ok := p.identity.Latest()
	if !ok || identity.DataplaneID == "" {
		slog.Warn("No dataplane identity, skipping queue poll")
		return
	}

	p.mu.Lock()
	groupID := p.groupID
	p.mu.Unlock()

	pending, err := p.ledger.PollQueue(ctx, groupID, p.priority, p.quantity)
	if err != nil {
		slog.Error("Failed to poll workload queue", "group_id", groupID, "error", err)
		return
	}

	for _, w := range pending {
		claimed, err := p.ledger.Claim(ctx, w.ID, identity.DataplaneID)
		if err != nil {
			slog.Error("Failed to claim workload", "workload_id", w.ID, "error", err)
			continue
		}
		if !claimed {
			slog.Debug("Workload claimed elsewhere", "workload_id", w.ID)
			continue
		}

		if err := p.dispatcher.Accept(ctx, pipeline.NewLaunchInput(w, false)); err != nil {
			p.metrics.RecordLaunch(ctx, string(w.Type), telemetry.LaunchOutcomeFailure)
			slog.Error("Failed to hand off claimed workload", "workload_id", w.ID, "error", err)
		}
	}
}
