package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/stacklok/workload-launcher/internal/otel"
)

var _ manager.LeaderElectionRunnable = (*Schedule)(nil)

// Schedule runs a task on a fixed interval while this replica holds the leader lease.
// The first run happens after InitialDelay. Each run completes even if the manager is
// stopping; the loop exits before the next one.
type Schedule struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context) error
	Tracer       trace.Tracer
}

// NeedLeaderElection implements manager.LeaderElectionRunnable
func (*Schedule) NeedLeaderElection() bool {
	return true
}

// Start implements manager.Runnable and blocks until ctx is cancelled
func (s *Schedule) Start(ctx context.Context) error {
	if s.Run == nil {
		return errors.New("schedule has no task")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive, got %s", s.Name, s.Interval)
	}

	slog.Info("Starting scheduled task",
		"task", s.Name,
		"interval", s.Interval,
		"initial_delay", s.InitialDelay)

	if s.InitialDelay > 0 {
		timer := time.NewTimer(s.InitialDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			slog.Info("Scheduled task stopping", "task", s.Name)
			return nil
		}
	}
}

func (s *Schedule) tick(ctx context.Context) {
	tickCtx, span := otel.StartSpan(context.WithoutCancel(ctx), s.Tracer, "sweeper."+s.Name,
		trace.WithAttributes(otel.AttrTaskName.String(s.Name)))
	defer span.End()

	start := time.Now()
	if err := s.Run(tickCtx); err != nil {
		otel.RecordError(span, err)
		slog.Error("Scheduled task failed", "task", s.Name, "error", err)
		return
	}
	slog.Debug("Scheduled task finished", "task", s.Name, "duration", time.Since(start))
}
