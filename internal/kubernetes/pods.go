package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// PodClient is the slice of the cluster API the launcher and the sweepers use
//
//go:generate mockgen -destination=mocks/mock_pods.go -package=mocks -source=pods.go PodClient
type PodClient interface {
	// CreatePod creates the pod. A pod of the same name that already exists counts as success.
	CreatePod(ctx context.Context, pod *corev1.Pod) error

	// ListPods lists pods in the namespace matching the label selector
	ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error)

	// PatchLabels merges labels into the pod's labels
	PatchLabels(ctx context.Context, namespace, name string, labels map[string]string) error

	// RemoveLabel drops one label from the pod. A missing label or pod is not an error.
	RemoveLabel(ctx context.Context, namespace, name, key string) error

	// DeletePod deletes the pod. Deleting a pod that no longer exists is not an error.
	DeletePod(ctx context.Context, namespace, name string) error
}

// ClientsetPodClient implements PodClient with client-go
type ClientsetPodClient struct {
	client kubernetes.Interface
}

// NewPodClient creates a PodClient backed by kubeClient
func NewPodClient(kubeClient kubernetes.Interface) *ClientsetPodClient {
	return &ClientsetPodClient{client: kubeClient}
}

// NewPodClientForConfig creates a PodClient connected with cfg
func NewPodClientForConfig(cfg *rest.Config) (*ClientsetPodClient, error) {
	kubeClient, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewPodClient(kubeClient), nil
}

// CreatePod implements PodClient.CreatePod
func (c *ClientsetPodClient) CreatePod(ctx context.Context, pod *corev1.Pod) error {
	_, err := c.client.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}
	return nil
}

// ListPods implements PodClient.ListPods
func (c *ClientsetPodClient) ListPods(ctx context.Context, namespace, labelSelector string) ([]corev1.Pod, error) {
	list, err := c.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s matching %q: %w", namespace, labelSelector, err)
	}
	return list.Items, nil
}

// labelPatch is a JSON merge patch of metadata.labels; a nil value removes the label
type labelPatch struct {
	Metadata struct {
		Labels map[string]*string `json:"labels"`
	} `json:"metadata"`
}

func (c *ClientsetPodClient) patchLabels(ctx context.Context, namespace, name string, labels map[string]*string) error {
	var patch labelPatch
	patch.Metadata.Labels = labels
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode label patch: %w", err)
	}

	_, err = c.client.CoreV1().Pods(namespace).Patch(ctx, name, types.MergePatchType, data, metav1.PatchOptions{})
	return err
}

// PatchLabels implements PodClient.PatchLabels
func (c *ClientsetPodClient) PatchLabels(ctx context.Context, namespace, name string, labels map[string]string) error {
	values := make(map[string]*string, len(labels))
	for k, v := range labels {
		values[k] = &v
	}
	if err := c.patchLabels(ctx, namespace, name, values); err != nil {
		return fmt.Errorf("failed to patch labels on pod %s/%s: %w", namespace, name, err)
	}
	return nil
}

// RemoveLabel implements PodClient.RemoveLabel
func (c *ClientsetPodClient) RemoveLabel(ctx context.Context, namespace, name, key string) error {
	err := c.patchLabels(ctx, namespace, name, map[string]*string{key: nil})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove label %s from pod %s/%s: %w", key, namespace, name, err)
	}
	return nil
}

// DeletePod implements PodClient.DeletePod
func (c *ClientsetPodClient) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.client.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	return nil
}
