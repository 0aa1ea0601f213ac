package dataplane

import (
	"context"
	"log/slog"
	"sync"
)

// QueueConsumer is the component pulling new workloads from the control plane queue
//
//go:generate mockgen -destination=mocks/mock_intake.go -package=mocks -source=intake.go QueueConsumer
type QueueConsumer interface {
	// Initialize scopes the consumer to a dataplane group
	Initialize(ctx context.Context, groupID string) error
	// Resume starts or continues consuming
	Resume()
	// Suspend pauses consuming without tearing down the consumer
	Suspend()
}

// IntakeGate decides whether the queue consumer should run. Intake stays closed until Start
// is called and an identity has arrived; afterwards the consumer follows DataplaneEnabled.
// Start and OnConfig may race; both only re-evaluate under the same lock.
type IntakeGate struct {
	consumer QueueConsumer

	mu          sync.Mutex
	started     bool
	current     *Config
	initialized bool
	applied     *bool
}

// NewIntakeGate creates a gate controlling consumer
func NewIntakeGate(consumer QueueConsumer) *IntakeGate {
	return &IntakeGate{consumer: consumer}
}

// Start opens the gate once the startup backlog is under control
func (g *IntakeGate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return
	}
	g.started = true
	slog.Info("Intake gate started")
	g.evaluateLocked()
}

// Started reports whether Start has been called
func (g *IntakeGate) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// OnConfig handles an identity event. The first identity initializes the consumer for
// the plane's group; initialization is retried on later events until it succeeds.
func (g *IntakeGate) OnConfig(ctx context.Context, cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = &cfg

	if !g.initialized {
		if err := g.consumer.Initialize(ctx, cfg.DataplaneGroupID); err != nil {
			slog.Error("Failed to initialize queue consumer",
				"dataplane_group_id", cfg.DataplaneGroupID,
				"error", err)
			return
		}
		g.initialized = true
		slog.Info("Queue consumer initialized", "dataplane_group_id", cfg.DataplaneGroupID)
	}

	g.evaluateLocked()
}

func (g *IntakeGate) evaluateLocked() {
	if !g.started || g.current == nil || !g.initialized {
		return
	}

	shouldConsume := g.current.DataplaneEnabled
	if g.applied != nil && *g.applied == shouldConsume {
		return
	}

	if shouldConsume {
		slog.Info("Resuming workload intake", "dataplane_id", g.current.DataplaneID)
		g.consumer.Resume()
	} else {
		slog.Info("Suspending workload intake", "dataplane_id", g.current.DataplaneID)
		g.consumer.Suspend()
	}
	g.applied = &shouldConsume
}
