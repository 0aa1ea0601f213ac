package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/telemetry"
)

const testNamespace = "jobs"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type podOpt func(*corev1.Pod)

func withPhase(p corev1.PodPhase) podOpt {
	return func(pod *corev1.Pod) { pod.Status.Phase = p }
}

func withCondition(at time.Time) podOpt {
	return func(pod *corev1.Pod) {
		pod.Status.Conditions = append(pod.Status.Conditions, corev1.PodCondition{
			Type:               corev1.PodReady,
			Status:             corev1.ConditionTrue,
			LastTransitionTime: metav1.NewTime(at),
		})
	}
}

func withStartTime(at time.Time) podOpt {
	return func(pod *corev1.Pod) {
		t := metav1.NewTime(at)
		pod.Status.StartTime = &t
	}
}

func withLabel(k, v string) podOpt {
	return func(pod *corev1.Pod) { pod.Labels[k] = v }
}

func jobPod(name string, opts ...podOpt) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: testNamespace,
			Labels:    map[string]string{kubernetes.LabelJobPodKey: kubernetes.LabelJobPodValue},
		},
	}
	for _, opt := range opts {
		opt(pod)
	}
	return pod
}

func newCluster(pods ...*corev1.Pod) (*fake.Clientset, kubernetes.PodClient) {
	objs := make([]runtime.Object, 0, len(pods))
	for _, p := range pods {
		objs = append(objs, p)
	}
	cs := fake.NewSimpleClientset(objs...)
	return cs, kubernetes.NewPodClient(cs)
}

func remainingPods(t *testing.T, cs *fake.Clientset) []string {
	t.Helper()
	list, err := cs.CoreV1().Pods(testNamespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	names := make([]string, 0, len(list.Items))
	for _, p := range list.Items {
		names = append(names, p.Name)
	}
	return names
}

func newMetrics(t *testing.T) (*telemetry.LauncherMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := telemetry.NewLauncherMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

// counter returns the value of the named counter for the given attributes, or 0
func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	want := attribute.NewSet(attrs...)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

// tracedTick returns a context carrying a recording span, as Schedule hands to a task, and a
// func that ends the span and returns its attributes
func tracedTick(t *testing.T) (context.Context, func() map[attribute.Key]attribute.Value) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("sweeper-test").Start(context.Background(), "sweeper.tick")
	return ctx, func() map[attribute.Key]attribute.Value {
		span.End()
		ended := recorder.Ended()
		require.Len(t, ended, 1)
		attrs := make(map[attribute.Key]attribute.Value, len(ended[0].Attributes()))
		for _, kv := range ended[0].Attributes() {
			attrs[kv.Key] = kv.Value
		}
		return attrs
	}
}
