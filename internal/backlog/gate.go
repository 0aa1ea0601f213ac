// Package backlog resumes workloads claimed before a restart and holds back new intake
// until enough of that backlog is running again.
package backlog

import (
	"context"
	"log/slog"
	"sync"
)

// Gate counts down resumed claims and releases waiters once the countdown reaches zero.
//
// The countdown starts at targetParallelism × (100 − maxSurgePercent) / 100. When the real backlog
// is smaller than the target parallelism the missing claims are counted as already resumed;
// when it is larger, the excess is held as overflow and drained before the countdown.
type Gate struct {
	target int

	mu        sync.Mutex
	countdown int
	overflow  int
	tracked   bool

	drained     chan struct{}
	drainedOnce sync.Once
}

// NewGate creates a gate for the given parallelism and surge allowance
func NewGate(targetParallelism, maxSurgePercent int) *Gate {
	countdown := targetParallelism * (100 - maxSurgePercent) / 100
	if countdown < 0 {
		countdown = 0
	}

	g := &Gate{
		target:    targetParallelism,
		countdown: countdown,
		drained:   make(chan struct{}),
	}
	if countdown == 0 {
		g.release()
	}
	return g
}

// TrackBacklogSize reports the true number of claims to resume. Only the first call has an effect.
func (g *Gate) TrackBacklogSize(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tracked {
		slog.Warn("Backlog size already tracked, ignoring", "size", n)
		return
	}
	g.tracked = true

	if n <= g.target {
		g.decrementLocked(g.target - n)
	} else {
		g.overflow = n - g.target
	}

	slog.Info("Tracking startup backlog",
		"backlog_size", n,
		"target_parallelism", g.target,
		"countdown", g.countdown,
		"overflow", g.overflow)
}

// RecordResumed records one claim handed back to the launch pipeline
func (g *Gate) RecordResumed() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.overflow > 0 {
		g.overflow--
		return
	}
	g.decrementLocked(1)
}

func (g *Gate) decrementLocked(n int) {
	if n <= 0 || g.countdown == 0 {
		return
	}
	g.countdown -= n
	if g.countdown <= 0 {
		g.countdown = 0
		g.release()
	}
}

func (g *Gate) release() {
	g.drainedOnce.Do(func() { close(g.drained) })
}

// AwaitDrained blocks until the countdown reaches zero or ctx is done.
// Outstanding overflow does not hold it back.
func (g *Gate) AwaitDrained(ctx context.Context) error {
	select {
	case <-g.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drained is closed once the countdown reaches zero
func (g *Gate) Drained() <-chan struct{} {
	return g.drained
}

// Count returns countdown plus overflow
func (g *Gate) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.countdown + g.overflow
}
