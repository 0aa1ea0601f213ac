package helpers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	launcher "github.com/stacklok/workload-launcher/internal/app"
	"github.com/stacklok/workload-launcher/internal/config"
	"github.com/stacklok/workload-launcher/internal/kubernetes"
)

// runnableHost starts every runnable in its own goroutine, skipping leader election
type runnableHost struct {
	runnables []manager.Runnable
}

func (h *runnableHost) Start(ctx context.Context) error {
	for _, r := range h.runnables {
		go func(r manager.Runnable) {
			_ = r.Start(ctx)
		}(r)
	}
	<-ctx.Done()
	return nil
}

// LauncherTestHelper manages the launcher lifecycle for testing
type LauncherTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *launcher.LauncherApp
	port       int

	// Cluster is the fake cluster pods are launched into
	Cluster *fake.Clientset
}

// NewLauncherTestHelper prepares a launcher reading configPath and serving on a free port
func NewLauncherTestHelper(ctx context.Context, configPath string, cluster *fake.Clientset) *LauncherTestHelper {
	port := freePort()
	return &LauncherTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		port:       port,
		Cluster:    cluster,
	}
}

// Start builds the launcher and starts it in the background
func (h *LauncherTestHelper) Start() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(h.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := launcher.NewLauncherApp(h.ctx,
		launcher.WithConfig(cfg),
		launcher.WithAddress(fmt.Sprintf("127.0.0.1:%d", h.port)),
		launcher.WithPodClient(kubernetes.NewPodClient(h.Cluster)),
		launcher.WithSweeperHostFactory(
			func(_ *config.Config, _ *rest.Config, runnables ...manager.Runnable) (launcher.SweeperHost, error) {
				return &runnableHost{runnables: runnables}, nil
			}),
	)
	if err != nil {
		return fmt.Errorf("failed to build launcher: %w", err)
	}
	h.app = app

	go func() {
		if err := app.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Launcher start failed: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully stops the launcher
func (h *LauncherTestHelper) Stop() error {
	if h.app != nil {
		return h.app.Stop(5 * time.Second)
	}
	return nil
}

// App returns the running launcher
func (h *LauncherTestHelper) App() *launcher.LauncherApp {
	return h.app
}

// Get performs a GET against the operational server
func (h *LauncherTestHelper) Get(path string) (*http.Response, error) {
	return h.httpClient.Get(h.baseURL + path)
}

// WaitForServerReady waits for /health to answer
func (h *LauncherTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := h.Get("/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health returned %d", resp.StatusCode)
		}
		return nil
	}, timeout, 50*time.Millisecond).Should(gomega.Succeed())
}

// WriteConfigYAML writes a launcher configuration pointing at controlPlaneURL
func WriteConfigYAML(dir, controlPlaneURL, flagsFile string) string {
	content := fmt.Sprintf(`dataplane:
  name: dp-integration
  clientId: integration-client
controlPlane:
  baseUrl: %s
  timeout: 5s
kubernetes:
  namespace: jobs
  orchestratorImage: airbyte/orchestrator:1.0.0
backlog:
  parallelism: 2
queue:
  pollInterval: 50ms
  quantity: 5
ttlSweeper:
  interval: 50ms
  succeededTtl: 10m
runaway:
  markInterval: 50ms
  sweepInterval: 50ms
  sweepOffset: 0s
  gracePeriod: 1h
featureFlags:
  file: %s
`, controlPlaneURL, flagsFile)

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0o600)).To(gomega.Succeed())
	return path
}

// WriteFlagsYAML writes a feature flag file enabling runaway detection for dataplaneID
func WriteFlagsYAML(dir, dataplaneID string) string {
	content := fmt.Sprintf(`flags:
  runaway-pods.detection-enabled:
    default: false
    contexts:
      "dataplane:%s": true
`, dataplaneID)

	path := filepath.Join(dir, "flags.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0o600)).To(gomega.Succeed())
	return path
}

func freePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
