package dataplane_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/workload-launcher/internal/dataplane"
	"github.com/stacklok/workload-launcher/internal/dataplane/mocks"
	"github.com/stacklok/workload-launcher/internal/featureflag"
	"github.com/stacklok/workload-launcher/internal/workload"
	workloadmocks "github.com/stacklok/workload-launcher/internal/workload/mocks"
)

func TestBroadcaster_ReplaysLatestToLateSubscribers(t *testing.T) {
	t.Parallel()

	b := dataplane.NewBroadcaster()
	_, ok := b.Latest()
	assert.False(t, ok)

	var early []dataplane.Config
	b.Subscribe(func(c dataplane.Config) { early = append(early, c) })
	assert.Empty(t, early)

	b.Publish(dataplane.Config{DataplaneID: "dp-1"})
	b.Publish(dataplane.Config{DataplaneID: "dp-2"})

	var late []dataplane.Config
	b.Subscribe(func(c dataplane.Config) { late = append(late, c) })

	require.Len(t, early, 2)
	assert.Equal(t, "dp-2", early[1].DataplaneID)
	require.Len(t, late, 1)
	assert.Equal(t, "dp-2", late[0].DataplaneID)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, "dp-2", latest.DataplaneID)
}

func TestPoller_Run(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := workloadmocks.NewMockClient(ctrl)
	client.EXPECT().InitializeDataplane(gomock.Any(), "client-1").Return(&workload.DataplaneInitResponse{
		DataplaneID:        "dp-1",
		DataplaneName:      "us-east",
		DataplaneEnabled:   true,
		DataplaneGroupID:   "grp-1",
		DataplaneGroupName: "default",
	}, nil)

	b := dataplane.NewBroadcaster()
	var published []dataplane.Config
	b.Subscribe(func(c dataplane.Config) { published = append(published, c) })

	p := dataplane.NewPoller(client, featureflag.NewStatic(), b, "client-1", "us-east")
	require.NoError(t, p.Run(context.Background()))

	want := dataplane.Config{
		DataplaneID:        "dp-1",
		DataplaneName:      "us-east",
		DataplaneEnabled:   true,
		DataplaneGroupID:   "grp-1",
		DataplaneGroupName: "default",
	}
	assert.Equal(t, []dataplane.Config{want}, published)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, want, latest)
}

func TestPoller_RunFailureIsFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := workloadmocks.NewMockClient(ctrl)
	client.EXPECT().InitializeDataplane(gomock.Any(), "client-1").Return(nil, errors.New("unauthorized"))

	b := dataplane.NewBroadcaster()
	p := dataplane.NewPoller(client, featureflag.NewStatic(), b, "client-1", "us-east")

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize dataplane identity")

	_, ok := b.Latest()
	assert.False(t, ok)
}

func TestPoller_DisabledByFlag(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := workloadmocks.NewMockClient(ctrl)

	flags := featureflag.NewStatic().
		SetFor(featureflag.DisableIdentityHandshake.Name, featureflag.DataplaneName("legacy"), true)

	b := dataplane.NewBroadcaster()
	p := dataplane.NewPoller(client, flags, b, "client-1", "legacy", dataplane.WithRefreshInterval(time.Millisecond))

	assert.False(t, p.Enabled(context.Background()))
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Watch(context.Background()))

	_, ok := b.Latest()
	assert.False(t, ok)
}

func TestPoller_WatchRefreshes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := workloadmocks.NewMockClient(ctrl)
	gomock.InOrder(
		client.EXPECT().InitializeDataplane(gomock.Any(), "client-1").
			Return(nil, errors.New("transient")),
		client.EXPECT().InitializeDataplane(gomock.Any(), "client-1").
			Return(&workload.DataplaneInitResponse{DataplaneID: "dp-1", DataplaneEnabled: false}, nil).
			MinTimes(1),
	)

	b := dataplane.NewBroadcaster()
	p := dataplane.NewPoller(client, featureflag.NewStatic(), b, "client-1", "us-east",
		dataplane.WithRefreshInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := b.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type gateHarness struct {
	gate     *dataplane.IntakeGate
	consumer *mocks.MockQueueConsumer
}

func newGateHarness(t *testing.T) gateHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	consumer := mocks.NewMockQueueConsumer(ctrl)
	return gateHarness{gate: dataplane.NewIntakeGate(consumer), consumer: consumer}
}

func TestIntakeGate_WaitsForStart(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	ctx := context.Background()

	gomock.InOrder(
		h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(nil),
		h.consumer.EXPECT().Resume(),
	)

	h.gate.OnConfig(ctx, dataplane.Config{DataplaneID: "dp-1", DataplaneGroupID: "grp-1", DataplaneEnabled: true})
	assert.False(t, h.gate.Started())
	h.gate.Start()
	assert.True(t, h.gate.Started())

	// repeated start is a no-op
	h.gate.Start()
}

func TestIntakeGate_StartBeforeConfig(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	ctx := context.Background()

	h.gate.Start()

	gomock.InOrder(
		h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(nil),
		h.consumer.EXPECT().Suspend(),
	)
	h.gate.OnConfig(ctx, dataplane.Config{DataplaneGroupID: "grp-1", DataplaneEnabled: false})
}

func TestIntakeGate_TogglesOnlyOnChange(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	ctx := context.Background()
	h.gate.Start()

	gomock.InOrder(
		h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(nil).Times(1),
		h.consumer.EXPECT().Resume().Times(1),
		h.consumer.EXPECT().Suspend().Times(1),
		h.consumer.EXPECT().Resume().Times(1),
	)

	enabled := dataplane.Config{DataplaneGroupID: "grp-1", DataplaneEnabled: true}
	disabled := dataplane.Config{DataplaneGroupID: "grp-1", DataplaneEnabled: false}

	h.gate.OnConfig(ctx, enabled)
	h.gate.OnConfig(ctx, enabled)
	h.gate.OnConfig(ctx, enabled)
	h.gate.OnConfig(ctx, disabled)
	h.gate.OnConfig(ctx, disabled)
	h.gate.OnConfig(ctx, enabled)
}

func TestIntakeGate_RetriesInitialization(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	ctx := context.Background()
	h.gate.Start()

	gomock.InOrder(
		h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(errors.New("not ready")),
		h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(nil),
		h.consumer.EXPECT().Resume(),
	)

	cfg := dataplane.Config{DataplaneGroupID: "grp-1", DataplaneEnabled: true}
	h.gate.OnConfig(ctx, cfg)
	h.gate.OnConfig(ctx, cfg)
}

func TestIntakeGate_ConcurrentStartAndConfig(t *testing.T) {
	t.Parallel()

	h := newGateHarness(t)
	ctx := context.Background()

	h.consumer.EXPECT().Initialize(gomock.Any(), "grp-1").Return(nil).Times(1)
	h.consumer.EXPECT().Resume().Times(1)

	b := dataplane.NewBroadcaster()
	b.Subscribe(func(c dataplane.Config) { h.gate.OnConfig(ctx, c) })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 10 {
			b.Publish(dataplane.Config{DataplaneGroupID: "grp-1", DataplaneEnabled: true})
		}
	}()
	go func() {
		defer wg.Done()
		h.gate.Start()
	}()
	wg.Wait()
}
