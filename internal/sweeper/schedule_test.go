package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := &Schedule{
		Name:     "ttl",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
	assert.True(t, s.NeedLeaderElection())
}

func TestSchedule_TickIgnoresCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var sawCancelled atomic.Bool
	s := &Schedule{
		Name:     "mark",
		Interval: time.Hour,
		Run: func(tickCtx context.Context) error {
			cancel()
			sawCancelled.Store(tickCtx.Err() != nil)
			return nil
		},
	}

	require.NoError(t, s.Start(ctx))
	assert.False(t, sawCancelled.Load())
}

func TestSchedule_InitialDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s := &Schedule{
		Name:         "sweep",
		Interval:     time.Hour,
		InitialDelay: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, s.Start(ctx))
	assert.Zero(t, runs.Load())
}

func TestSchedule_InvalidConfig(t *testing.T) {
	t.Parallel()

	err := (&Schedule{Name: "x", Interval: time.Second}).Start(context.Background())
	require.Error(t, err)

	err = (&Schedule{Name: "x", Run: func(context.Context) error { return nil }}).Start(context.Background())
	require.ErrorContains(t, err, "interval must be positive")
}

func TestSchedule_TracesTicks(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	s := &Schedule{
		Name:     "runaway-mark",
		Interval: time.Hour,
		Tracer:   tp.Tracer("test"),
		Run: func(context.Context) error {
			cancel()
			return errors.New("ledger unavailable")
		},
	}
	require.NoError(t, s.Start(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sweeper.runaway-mark", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
