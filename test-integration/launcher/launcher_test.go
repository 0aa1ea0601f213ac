package integration

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/workload"
	"github.com/stacklok/workload-launcher/test-integration/launcher/helpers"
)

const (
	namespace   = "jobs"
	dataplaneID = "dp-int"
	groupID     = "group-int"
)

func jobPod(name, autoID string, phase corev1.PodPhase, since time.Time) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				kubernetes.LabelJobPodKey: kubernetes.LabelJobPodValue,
				kubernetes.LabelAutoID:    autoID,
			},
		},
		Status: corev1.PodStatus{
			Phase:     phase,
			StartTime: &metav1.Time{Time: since},
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, LastTransitionTime: metav1.Time{Time: since}},
			},
		},
	}
}

func connectorWorkload(id string, kind workload.Type, payload string) workload.Workload {
	return workload.Workload{
		ID:           id,
		AutoID:       "auto-" + id,
		Type:         kind,
		InputPayload: json.RawMessage(payload),
	}
}

var _ = Describe("Workload launcher", Label("launcher"), func() {
	var (
		tempDir      string
		controlPlane *helpers.FakeControlPlane
		cluster      *fake.Clientset
		launcher     *helpers.LauncherTestHelper
	)

	podExists := func(name string) func() bool {
		return func() bool {
			_, err := cluster.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			return err == nil
		}
	}

	podGone := func(name string) func() bool {
		return func() bool {
			_, err := cluster.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			return apierrors.IsNotFound(err)
		}
	}

	readiness := func() int {
		resp, err := launcher.Get("/readiness")
		if err != nil {
			return 0
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	BeforeEach(func() {
		tempDir = createTempDir("launcher-test-")
		controlPlane = helpers.NewFakeControlPlane(workload.DataplaneInitResponse{
			DataplaneID:      dataplaneID,
			DataplaneName:    "dp-integration",
			DataplaneEnabled: true,
			DataplaneGroupID: groupID,
		})
		cluster = fake.NewSimpleClientset()

		flagsFile := helpers.WriteFlagsYAML(tempDir, dataplaneID)
		configFile := helpers.WriteConfigYAML(tempDir, controlPlane.URL(), flagsFile)
		launcher = helpers.NewLauncherTestHelper(ctx, configFile, cluster)
	})

	AfterEach(func() {
		Expect(launcher.Stop()).To(Succeed())
		controlPlane.Close()
		cleanupTempDir(tempDir)
	})

	Context("startup", func() {
		It("resumes claimed workloads before opening intake", func() {
			controlPlane.AddClaimed(connectorWorkload("resume-1", workload.TypeCheck,
				`{"image":"airbyte/source-faker:6.0.0"}`))

			Expect(launcher.Start()).To(Succeed())
			launcher.WaitForServerReady(5 * time.Second)

			Eventually(podExists("check-resume-1"), 5*time.Second, 50*time.Millisecond).Should(BeTrue())
			Eventually(func() workload.Status { return controlPlane.Status("resume-1") },
				5*time.Second, 50*time.Millisecond).Should(Equal(workload.StatusLaunched))
			Eventually(readiness, 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))
		})

		It("serves build metadata", func() {
			Expect(launcher.Start()).To(Succeed())
			launcher.WaitForServerReady(5 * time.Second)

			resp, err := launcher.Get("/version")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body).To(HaveKey("version"))
		})
	})

	Context("intake", func() {
		It("claims and launches queued workloads", func() {
			controlPlane.Enqueue(groupID, connectorWorkload("queued-1", workload.TypeSpec,
				`{"image":"airbyte/destination-postgres:2.0.0","args":["spec"]}`))

			Expect(launcher.Start()).To(Succeed())

			Eventually(podExists("spec-queued-1"), 5*time.Second, 50*time.Millisecond).Should(BeTrue())
			Eventually(func() workload.Status { return controlPlane.Status("queued-1") },
				5*time.Second, 50*time.Millisecond).Should(Equal(workload.StatusLaunched))
		})

		It("fails workloads that cannot be turned into pods", func() {
			controlPlane.Enqueue(groupID, connectorWorkload("broken-1", workload.TypeCheck, `{}`))

			Expect(launcher.Start()).To(Succeed())

			Eventually(func() workload.Status { return controlPlane.Status("broken-1") },
				5*time.Second, 50*time.Millisecond).Should(Equal(workload.StatusFailure))
			Expect(controlPlane.FailureReason("broken-1")).To(ContainSubstring("missing the connector image"))
		})

		It("holds intake while the dataplane is disabled", func() {
			controlPlane.SetEnabled(false)
			controlPlane.Enqueue(groupID, connectorWorkload("held-1", workload.TypeCheck,
				`{"image":"airbyte/source-faker:6.0.0"}`))

			Expect(launcher.Start()).To(Succeed())

			Eventually(func() bool { return launcher.App() != nil && launcher.App().GetComponents().Intake.Started() },
				5*time.Second, 50*time.Millisecond).Should(BeTrue())
			Consistently(func() workload.Status { return controlPlane.Status("held-1") },
				500*time.Millisecond, 50*time.Millisecond).Should(Equal(workload.StatusPending))
		})
	})

	Context("sweepers", func() {
		It("deletes pods past their phase TTL", func() {
			old := jobPod("sync-old", "auto-old", corev1.PodSucceeded, time.Now().Add(-time.Hour))
			fresh := jobPod("sync-fresh", "auto-fresh", corev1.PodSucceeded, time.Now())
			for _, p := range []*corev1.Pod{old, fresh} {
				_, err := cluster.CoreV1().Pods(namespace).Create(ctx, p, metav1.CreateOptions{})
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(launcher.Start()).To(Succeed())

			Eventually(podGone("sync-old"), 5*time.Second, 50*time.Millisecond).Should(BeTrue())
			Consistently(podExists("sync-fresh"), 300*time.Millisecond, 50*time.Millisecond).Should(BeTrue())
		})

		It("marks running pods that have no active workload and unmarks revived ones", func() {
			controlPlane.AddClaimed(connectorWorkload("active-1", workload.TypeCheck,
				`{"image":"airbyte/source-faker:6.0.0"}`))

			orphan := jobPod("sync-orphan", "auto-orphan", corev1.PodRunning, time.Now())
			owned := jobPod("sync-owned", "auto-active-1", corev1.PodRunning, time.Now())
			// marked while its workload was briefly unknown, with an expired deadline
			owned.Labels[kubernetes.LabelDeleteBy] = "1"
			for _, p := range []*corev1.Pod{orphan, owned} {
				_, err := cluster.CoreV1().Pods(namespace).Create(ctx, p, metav1.CreateOptions{})
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(launcher.Start()).To(Succeed())

			Eventually(func() map[string]string {
				p, err := cluster.CoreV1().Pods(namespace).Get(ctx, "sync-orphan", metav1.GetOptions{})
				if err != nil {
					return nil
				}
				return p.Labels
			}, 5*time.Second, 50*time.Millisecond).Should(HaveKey(kubernetes.LabelDeleteBy))

			Eventually(func() map[string]string {
				p, err := cluster.CoreV1().Pods(namespace).Get(ctx, "sync-owned", metav1.GetOptions{})
				if err != nil {
					return nil
				}
				return p.Labels
			}, 5*time.Second, 50*time.Millisecond).ShouldNot(HaveKey(kubernetes.LabelDeleteBy))
			Expect(podExists("sync-owned")()).To(BeTrue())

			// deletion is disabled, so the marked pod stays
			Consistently(podExists("sync-orphan"), 300*time.Millisecond, 50*time.Millisecond).Should(BeTrue())
		})
	})
})
