package kubernetes

import (
	"fmt"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/validation"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

const (
	defaultLeaderElectionID = "workload-launcher-leader-election"

	// disabledBindAddress turns off the manager's own metrics and probe listeners
	disabledBindAddress = "0"
)

// serviceAccountNamespaceFile holds the namespace of the pod this process runs in
var serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

type managerOptions struct {
	namespace        string
	leaderElection   bool
	leaderElectionID string
	restConfig       *rest.Config
	runnables        []manager.Runnable
}

// Option configures the controller manager
type Option func(*managerOptions) error

// WithNamespace restricts the manager and leader election to one namespace
func WithNamespace(namespace string) Option {
	return func(o *managerOptions) error {
		if errs := validation.IsDNS1123Label(namespace); len(errs) > 0 {
			return fmt.Errorf("invalid namespace %q: %s", namespace, strings.Join(errs, ", "))
		}
		o.namespace = namespace
		return nil
	}
}

// WithCurrentNamespace uses the namespace of the service account the process runs as
func WithCurrentNamespace() Option {
	return func(o *managerOptions) error {
		data, err := os.ReadFile(serviceAccountNamespaceFile)
		if err != nil {
			return fmt.Errorf("failed to read current namespace: %w", err)
		}
		return WithNamespace(strings.TrimSpace(string(data)))(o)
	}
}

// WithLeaderElection toggles leader election. Runnables that need it only run on the leader.
func WithLeaderElection(enabled bool) Option {
	return func(o *managerOptions) error {
		o.leaderElection = enabled
		return nil
	}
}

// WithLeaderElectionID overrides the lease name
func WithLeaderElectionID(id string) Option {
	return func(o *managerOptions) error {
		if id == "" {
			return fmt.Errorf("leader election id cannot be empty")
		}
		o.leaderElectionID = id
		return nil
	}
}

// WithRestConfig sets the cluster connection, skipping discovery
func WithRestConfig(cfg *rest.Config) Option {
	return func(o *managerOptions) error {
		if cfg == nil {
			return fmt.Errorf("rest config is required")
		}
		o.restConfig = cfg
		return nil
	}
}

// WithRunnables registers runnables started with the manager
func WithRunnables(runnables ...manager.Runnable) Option {
	return func(o *managerOptions) error {
		for _, r := range runnables {
			if r == nil {
				return fmt.Errorf("runnable cannot be nil")
			}
		}
		o.runnables = append(o.runnables, runnables...)
		return nil
	}
}

// NewManager creates a controller manager hosting the periodic sweepers.
// The caller starts it.
func NewManager(opts ...Option) (ctrl.Manager, error) {
	o := &managerOptions{
		leaderElection:   true,
		leaderElectionID: defaultLeaderElectionID,
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.restConfig == nil {
		cfg, err := RestConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
		}
		o.restConfig = cfg
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add Kubernetes core types to scheme: %w", err)
	}

	defaultNamespaces := map[string]cache.Config{}
	if o.namespace != "" {
		defaultNamespaces[o.namespace] = cache.Config{}
	}

	options := ctrl.Options{
		Scheme:                  scheme,
		LeaderElection:          o.leaderElection,
		LeaderElectionID:        o.leaderElectionID,
		LeaderElectionNamespace: o.namespace,
		Metrics:                 metricsserver.Options{BindAddress: disabledBindAddress},
		HealthProbeBindAddress:  disabledBindAddress,
		Cache: cache.Options{
			// if empty, defaults to all namespaces
			DefaultNamespaces: defaultNamespaces,
		},
	}

	mgr, err := ctrl.NewManager(o.restConfig, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}

	for _, r := range o.runnables {
		if err := mgr.Add(r); err != nil {
			return nil, fmt.Errorf("failed to add runnable to manager: %w", err)
		}
	}

	return mgr, nil
}

// RestConfig returns the in-cluster config, falling back to the local kubeconfig
func RestConfig() (*rest.Config, error) {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)
	return kubeConfig.ClientConfig()
}
