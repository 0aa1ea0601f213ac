package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/negotiation"
	"github.com/stacklok/workload-launcher/internal/workload"
	"github.com/stacklok/workload-launcher/internal/workload/mocks"
)

const testNamespace = "jobs"

type negotiatorFunc func(ctx context.Context, in *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error)

func (f negotiatorFunc) Decide(ctx context.Context, in *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error) {
	return f(ctx, in)
}

func legacy() Negotiator {
	return negotiatorFunc(func(context.Context, *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error) {
		return negotiation.LegacyEnvironment(), nil
	})
}

func syncInput(t *testing.T, id string) LaunchInput {
	t.Helper()
	payload, err := json.Marshal(negotiation.Input{
		ConnectionID: "conn-1",
		WorkspaceID:  "ws-1",
		Source:       negotiation.Connector{Image: "airbyte/source-faker:6.0.0"},
		Destination:  negotiation.Connector{Image: "airbyte/destination-dev-null:0.4.0"},
	})
	require.NoError(t, err)
	return LaunchInput{WorkloadID: id, AutoID: "auto-" + id, Type: workload.TypeSync, Payload: payload}
}

func newPipeline(t *testing.T, n Negotiator, ledger workload.Client, cs *fake.Clientset, opts ...Option) *Pipeline {
	t.Helper()
	p := New(n, kubernetes.NewPodFactory(testNamespace, "airbyte/orchestrator:1.0.0"),
		kubernetes.NewPodClient(cs), ledger, opts...)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func signal(done chan<- string) func(context.Context, string) error {
	return func(_ context.Context, id string) error {
		done <- id
		return nil
	}
}

func wait(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the pipeline")
		return ""
	}
}

func TestPipeline_LaunchesSync(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockClient(ctrl)
	launched := make(chan string, 1)
	ledger.EXPECT().Launched(gomock.Any(), "42").DoAndReturn(signal(launched))

	var seen *negotiation.Input
	n := negotiatorFunc(func(_ context.Context, in *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error) {
		seen = in
		return negotiation.LegacyEnvironment(), nil
	})

	cs := fake.NewSimpleClientset()
	p := newPipeline(t, n, ledger, cs)
	require.NoError(t, p.Accept(context.Background(), syncInput(t, "42")))
	assert.Equal(t, "42", wait(t, launched))

	require.NotNil(t, seen)
	assert.Equal(t, "42", seen.WorkloadID)
	assert.Equal(t, "conn-1", seen.ConnectionID)

	pod, err := cs.CoreV1().Pods(testNamespace).Get(context.Background(), "sync-42", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Len(t, pod.Spec.Containers, 3)
	assert.Equal(t, "auto-42", pod.Labels[kubernetes.LabelAutoID])
}

func TestPipeline_LaunchesConnectorWorkload(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockClient(ctrl)
	launched := make(chan string, 1)
	ledger.EXPECT().Launched(gomock.Any(), "7").DoAndReturn(signal(launched))

	cs := fake.NewSimpleClientset()
	p := newPipeline(t, legacy(), ledger, cs)

	payload := json.RawMessage(`{"image":"airbyte/source-github:1.0.0","args":["check"]}`)
	require.NoError(t, p.Accept(context.Background(),
		LaunchInput{WorkloadID: "7", AutoID: "a7", Type: workload.TypeCheck, Payload: payload}))
	wait(t, launched)

	pod, err := cs.CoreV1().Pods(testNamespace).Get(context.Background(), "check-7", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, pod.Spec.Containers, 1)
	assert.Equal(t, []string{"check"}, pod.Spec.Containers[0].Args)
}

func TestPipeline_ReportsUnlaunchableWorkloads(t *testing.T) {
	t.Parallel()

	incompatible := negotiatorFunc(func(context.Context, *negotiation.Input) (*negotiation.ArchitectureEnvironmentVariables, error) {
		return nil, &negotiation.Error{Kind: negotiation.KindSerialization, Source: []string{"PROTOBUF"}, Destination: []string{"JSONL"}}
	})

	tests := []struct {
		name       string
		negotiator Negotiator
		input      func(t *testing.T) LaunchInput
		wantReason string
	}{
		{
			name:       "incompatible data channel",
			negotiator: incompatible,
			input:      func(t *testing.T) LaunchInput { return syncInput(t, "1") },
			wantReason: "no common serialization",
		},
		{
			name:       "malformed sync payload",
			negotiator: legacy(),
			input: func(*testing.T) LaunchInput {
				return LaunchInput{WorkloadID: "1", Type: workload.TypeSync, Payload: json.RawMessage(`{`)}
			},
			wantReason: "invalid sync input",
		},
		{
			name:       "connector payload without image",
			negotiator: legacy(),
			input: func(*testing.T) LaunchInput {
				return LaunchInput{WorkloadID: "1", Type: workload.TypeSpec, Payload: json.RawMessage(`{}`)}
			},
			wantReason: "missing the connector image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			ledger := mocks.NewMockClient(ctrl)
			reasons := make(chan string, 1)
			ledger.EXPECT().Failure(gomock.Any(), "1", gomock.Any()).DoAndReturn(
				func(_ context.Context, _ string, reason string) error {
					reasons <- reason
					return nil
				})

			cs := fake.NewSimpleClientset()
			p := newPipeline(t, tt.negotiator, ledger, cs)
			require.NoError(t, p.Accept(context.Background(), tt.input(t)))

			assert.Contains(t, wait(t, reasons), tt.wantReason)
			pods, err := cs.CoreV1().Pods(testNamespace).List(context.Background(), metav1.ListOptions{})
			require.NoError(t, err)
			assert.Empty(t, pods.Items)
		})
	}
}

func TestPipeline_CreateFailureLeavesWorkloadClaimed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	// neither Launched nor Failure may be called
	ledger := mocks.NewMockClient(ctrl)

	cs := fake.NewSimpleClientset()
	created := make(chan string, 1)
	cs.PrependReactor("create", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		created <- "attempted"
		return true, nil, errors.New("quota exceeded")
	})

	p := newPipeline(t, legacy(), ledger, cs)
	require.NoError(t, p.Accept(context.Background(), syncInput(t, "9")))
	wait(t, created)
	p.Stop()
}

func TestPipeline_AcceptAfterStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := New(legacy(), kubernetes.NewPodFactory(testNamespace, "o"), kubernetes.NewPodClient(fake.NewSimpleClientset()),
		mocks.NewMockClient(ctrl))
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	err := p.Accept(context.Background(), LaunchInput{WorkloadID: "1"})
	require.ErrorIs(t, err, ErrStopped)
}

func TestPipeline_AcceptHonoursContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := New(legacy(), kubernetes.NewPodFactory(testNamespace, "o"), kubernetes.NewPodClient(fake.NewSimpleClientset()),
		mocks.NewMockClient(ctrl), WithBufferSize(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Accept(ctx, LaunchInput{WorkloadID: "1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_Workers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockClient(ctrl)
	launched := make(chan string, 10)
	ledger.EXPECT().Launched(gomock.Any(), gomock.Any()).DoAndReturn(signal(launched)).Times(10)

	cs := fake.NewSimpleClientset()
	p := newPipeline(t, legacy(), ledger, cs, WithWorkers(3), WithBufferSize(2))
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	for _, id := range ids {
		require.NoError(t, p.Accept(context.Background(), syncInput(t, id)))
	}

	got := make([]string, 0, len(ids))
	for range ids {
		got = append(got, wait(t, launched))
	}
	assert.ElementsMatch(t, ids, got)
}
