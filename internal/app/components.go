package app

import (
	"github.com/stacklok/workload-launcher/internal/backlog"
	"github.com/stacklok/workload-launcher/internal/dataplane"
	"github.com/stacklok/workload-launcher/internal/pipeline"
	"github.com/stacklok/workload-launcher/internal/queue"
	"github.com/stacklok/workload-launcher/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Broadcaster carries the dataplane identity to intake and the runaway detector
	Broadcaster *dataplane.Broadcaster

	// Identity performs the startup handshake and optional refreshes
	Identity *dataplane.Poller

	// Pipeline turns workloads into pods
	Pipeline *pipeline.Pipeline

	// Queue polls the control plane queue once intake opens
	Queue *queue.Poller

	// Intake decides when the queue poller runs
	Intake *dataplane.IntakeGate

	// Gate holds intake closed while the startup backlog drains
	Gate *backlog.Gate

	// Sweepers hosts the leader-elected cleanup schedules
	Sweepers SweeperHost

	telemetry *telemetry.Telemetry

	// newResumer builds the resumer once the dataplane id is known
	newResumer func(dataplaneID string) *backlog.Resumer
}
