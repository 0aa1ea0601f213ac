package kubernetes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/stacklok/workload-launcher/internal/negotiation"
)

func envValue(c corev1.Container, name string) string {
	for _, e := range c.Env {
		if e.Name == name {
			return e.Value
		}
	}
	return ""
}

func containerByName(t *testing.T, pod *corev1.Pod, name string) corev1.Container {
	t.Helper()
	for _, c := range pod.Spec.Containers {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("container %s not found", name)
	return corev1.Container{}
}

func TestPodFactory_SyncPodWithSockets(t *testing.T) {
	t.Parallel()

	f := NewPodFactory("jobs", "airbyte/orchestrator:1.0.0")
	env := &negotiation.ArchitectureEnvironmentVariables{
		SourceEnvVars: []negotiation.EnvVar{
			{Name: negotiation.EnvDataChannelFormat, Value: "PROTOBUF"},
			{Name: negotiation.EnvDataChannelMedium, Value: "SOCKET"},
			{Name: negotiation.EnvDataChannelSocketPaths, Value: negotiation.SocketPaths(2)},
		},
		DestinationEnvVars: []negotiation.EnvVar{
			{Name: negotiation.EnvDataChannelFormat, Value: "PROTOBUF"},
			{Name: negotiation.EnvDataChannelMedium, Value: "SOCKET"},
			{Name: negotiation.EnvDataChannelSocketPaths, Value: negotiation.SocketPaths(2)},
		},
		PlatformEnvVars: []negotiation.EnvVar{{Name: negotiation.EnvPlatformMode, Value: "BOOKKEEPER"}},
	}

	pod, err := f.SyncPod(
		PodMeta{WorkloadID: "42_1_0", AutoID: "auto-42", Type: "sync", MutexKey: "conn 1", Labels: map[string]string{"team": "data"}},
		negotiation.Connector{Image: "airbyte/source-postgres:3.6.0", Resources: negotiation.Resources{CPULimit: "2"}},
		negotiation.Connector{Image: "airbyte/destination-snowflake:4.0.0"},
		env,
	)
	require.NoError(t, err)

	assert.Equal(t, "sync-42-1-0", pod.Name)
	assert.Equal(t, "jobs", pod.Namespace)
	assert.Equal(t, map[string]string{
		"team":            "data",
		LabelJobPodKey:    LabelJobPodValue,
		LabelAutoID:       "auto-42",
		LabelWorkloadID:   "42_1_0",
		LabelWorkloadType: "sync",
		LabelMutexKey:     "conn_1",
	}, pod.Labels)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	require.Len(t, pod.Spec.Containers, 3)

	source := containerByName(t, pod, ContainerSource)
	assert.Equal(t, "SOCKET", envValue(source, negotiation.EnvDataChannelMedium))
	assert.Equal(t, resource.MustParse("2"), source.Resources.Limits[corev1.ResourceCPU])
	require.Len(t, source.VolumeMounts, 1)
	assert.Equal(t, negotiation.SocketDirectory, source.VolumeMounts[0].MountPath)

	destination := containerByName(t, pod, ContainerDestination)
	assert.Empty(t, destination.Resources.Limits)
	require.Len(t, destination.VolumeMounts, 1)

	orchestrator := containerByName(t, pod, ContainerOrchestrator)
	assert.Equal(t, "BOOKKEEPER", envValue(orchestrator, negotiation.EnvPlatformMode))
	assert.Empty(t, orchestrator.VolumeMounts)

	require.Len(t, pod.Spec.Volumes, 1)
	assert.NotNil(t, pod.Spec.Volumes[0].EmptyDir)
}

func TestPodFactory_SyncPodLegacy(t *testing.T) {
	t.Parallel()

	f := NewPodFactory("jobs", "airbyte/orchestrator:1.0.0")
	pod, err := f.SyncPod(
		PodMeta{WorkloadID: "7", AutoID: "a7", Type: "sync"},
		negotiation.Connector{Image: "src"},
		negotiation.Connector{Image: "dst"},
		negotiation.LegacyEnvironment(),
	)
	require.NoError(t, err)
	assert.Empty(t, pod.Spec.Volumes)
	assert.NotContains(t, pod.Labels, LabelMutexKey)
	assert.Equal(t, "STDIO", envValue(containerByName(t, pod, ContainerSource), negotiation.EnvDataChannelMedium))
	assert.Equal(t, "ORCHESTRATOR", envValue(containerByName(t, pod, ContainerOrchestrator), negotiation.EnvPlatformMode))
}

func TestPodFactory_SyncPodRequiresOrchestrator(t *testing.T) {
	t.Parallel()

	_, err := NewPodFactory("jobs", "").SyncPod(PodMeta{WorkloadID: "1", Type: "sync"},
		negotiation.Connector{}, negotiation.Connector{}, negotiation.LegacyEnvironment())
	require.ErrorContains(t, err, "orchestrator image is not configured")
}

func TestPodFactory_ConnectorPod(t *testing.T) {
	t.Parallel()

	f := NewPodFactory("jobs", "")
	pod, err := f.ConnectorPod(PodMeta{WorkloadID: "9", AutoID: "a9", Type: "check"},
		"airbyte/source-github:1.0.0", "500m", []string{"check", "--config", "/config/config.json"})
	require.NoError(t, err)

	assert.Equal(t, "check-9", pod.Name)
	require.Len(t, pod.Spec.Containers, 1)
	main := pod.Spec.Containers[0]
	assert.Equal(t, ContainerMain, main.Name)
	assert.Equal(t, []string{"check", "--config", "/config/config.json"}, main.Args)
	assert.Equal(t, resource.MustParse("500m"), main.Resources.Limits[corev1.ResourceCPU])
	require.NotNil(t, main.SecurityContext)
	assert.False(t, *main.SecurityContext.AllowPrivilegeEscalation)
}
