package kubernetes

import (
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/stacklok/workload-launcher/internal/negotiation"
)

// Container names inside launcher pods
const (
	ContainerSource       = "source"
	ContainerDestination  = "destination"
	ContainerOrchestrator = "orchestrator"
	ContainerMain         = "main"

	socketVolumeName = "sockets"

	terminationGracePeriodSeconds int64 = 60
)

// PodMeta identifies the workload a pod runs
type PodMeta struct {
	WorkloadID string
	AutoID     string
	Type       string
	MutexKey   string
	Labels     map[string]string
}

// PodFactory builds launcher pod specs
type PodFactory struct {
	namespace         string
	orchestratorImage string
}

// NewPodFactory creates a factory placing pods in namespace
func NewPodFactory(namespace, orchestratorImage string) *PodFactory {
	return &PodFactory{namespace: namespace, orchestratorImage: orchestratorImage}
}

// SyncPod builds the three-container pod of a sync. Source and destination share the socket
// volume when the environment uses sockets.
func (f *PodFactory) SyncPod(
	meta PodMeta,
	src, dst negotiation.Connector,
	env *negotiation.ArchitectureEnvironmentVariables,
) (*corev1.Pod, error) {
	if f.orchestratorImage == "" {
		return nil, fmt.Errorf("orchestrator image is not configured")
	}

	pod, err := f.basePod(meta)
	if err != nil {
		return nil, err
	}

	source := connectorContainer(ContainerSource, src.Image, src.Resources.CPULimit, env.SourceEnvVars)
	destination := connectorContainer(ContainerDestination, dst.Image, dst.Resources.CPULimit, env.DestinationEnvVars)
	orchestrator := connectorContainer(ContainerOrchestrator, f.orchestratorImage, "", env.PlatformEnvVars)

	if env.SocketCount() > 0 {
		mount := corev1.VolumeMount{Name: socketVolumeName, MountPath: negotiation.SocketDirectory}
		source.VolumeMounts = append(source.VolumeMounts, mount)
		destination.VolumeMounts = append(destination.VolumeMounts, mount)
		pod.Spec.Volumes = append(pod.Spec.Volumes, corev1.Volume{
			Name:         socketVolumeName,
			VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
		})
	}

	pod.Spec.Containers = []corev1.Container{orchestrator, source, destination}
	return pod, nil
}

// ConnectorPod builds the single-container pod of a check, discover or spec workload
func (f *PodFactory) ConnectorPod(meta PodMeta, image, cpuLimit string, args []string) (*corev1.Pod, error) {
	pod, err := f.basePod(meta)
	if err != nil {
		return nil, err
	}
	main := connectorContainer(ContainerMain, image, cpuLimit, nil)
	main.Args = args
	pod.Spec.Containers = []corev1.Container{main}
	return pod, nil
}

func (f *PodFactory) basePod(meta PodMeta) (*corev1.Pod, error) {
	name, err := GeneratePodName(meta.Type, meta.WorkloadID)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(meta.Labels)+5)
	maps.Copy(labels, meta.Labels)
	labels[LabelJobPodKey] = LabelJobPodValue
	labels[LabelAutoID] = SanitizeLabelValue(meta.AutoID)
	labels[LabelWorkloadID] = SanitizeLabelValue(meta.WorkloadID)
	labels[LabelWorkloadType] = SanitizeLabelValue(meta.Type)
	if meta.MutexKey != "" {
		labels[LabelMutexKey] = SanitizeLabelValue(meta.MutexKey)
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: f.namespace,
			Labels:    labels,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                 corev1.RestartPolicyNever,
			AutomountServiceAccountToken:  ptr.To(false),
			TerminationGracePeriodSeconds: ptr.To(terminationGracePeriodSeconds),
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot: ptr.To(true),
				SeccompProfile: &corev1.SeccompProfile{
					Type: corev1.SeccompProfileTypeRuntimeDefault,
				},
			},
		},
	}, nil
}

func connectorContainer(name, image, cpuLimit string, env []negotiation.EnvVar) corev1.Container {
	c := corev1.Container{
		Name:            name,
		Image:           image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
		},
	}
	for _, e := range env {
		c.Env = append(c.Env, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}
	if q, err := resource.ParseQuantity(cpuLimit); err == nil && q.Sign() > 0 {
		c.Resources.Limits = corev1.ResourceList{corev1.ResourceCPU: q}
	}
	return c
}
