package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2/clientcredentials"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/stacklok/workload-launcher/internal/api"
	"github.com/stacklok/workload-launcher/internal/backlog"
	"github.com/stacklok/workload-launcher/internal/config"
	"github.com/stacklok/workload-launcher/internal/dataplane"
	"github.com/stacklok/workload-launcher/internal/featureflag"
	"github.com/stacklok/workload-launcher/internal/httpclient"
	"github.com/stacklok/workload-launcher/internal/kubernetes"
	"github.com/stacklok/workload-launcher/internal/negotiation"
	"github.com/stacklok/workload-launcher/internal/pipeline"
	"github.com/stacklok/workload-launcher/internal/queue"
	"github.com/stacklok/workload-launcher/internal/sweeper"
	"github.com/stacklok/workload-launcher/internal/telemetry"
	"github.com/stacklok/workload-launcher/internal/workload"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// SweeperHost runs the periodic sweepers until ctx is done
type SweeperHost interface {
	Start(ctx context.Context) error
}

// SweeperHostFactory creates the host for the given runnables
type SweeperHostFactory func(cfg *config.Config, restConfig *rest.Config, runnables ...manager.Runnable) (SweeperHost, error)

// LauncherAppOptions is a function that configures the launcher app builder
type LauncherAppOptions func(*launcherAppConfig) error

// launcherAppConfig supports dependency injection for testing while providing defaults for production
type launcherAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	ledger      workload.Client
	catalogs    negotiation.CatalogFetcher
	flags       featureflag.Client
	pods        kubernetes.PodClient
	restConfig  *rest.Config
	telemetry   *telemetry.Telemetry
	hostFactory SweeperHostFactory

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...LauncherAppOptions) (*launcherAppConfig, error) {
	cfg := &launcherAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		hostFactory:    newManagerHost,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewLauncherApp wires every component from the configuration. Nothing runs until Start.
func NewLauncherApp(ctx context.Context, opts ...LauncherAppOptions) (*LauncherApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	ownsTelemetry := b.telemetry == nil
	if ownsTelemetry {
		b.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(b.config.Telemetry),
			telemetry.WithLauncherIdentity(b.config.Dataplane.Name, b.config.Kubernetes.GetNamespace()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// release telemetry exporters if wiring fails part way
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded && ownsTelemetry {
			if err := b.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to shut down telemetry", "error", err)
			}
		}
	}()

	metrics, err := telemetry.NewLauncherMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create launcher metrics: %w", err)
	}

	if err := buildControlPlaneClients(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to build control plane client: %w", err)
	}
	if err := buildFeatureFlags(b); err != nil {
		return nil, fmt.Errorf("failed to build feature flags: %w", err)
	}
	if err := buildPodClient(b); err != nil {
		return nil, fmt.Errorf("failed to build pod client: %w", err)
	}

	components, err := buildLaunchComponents(ctx, b, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build launch components: %w", err)
	}

	components.Sweepers, err = buildSweepers(b, components.Broadcaster, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build sweepers: %w", err)
	}

	httpServer, err := buildHTTPServer(b, components.Intake)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &LauncherApp{
		config:     b.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithWorkloadClient injects the ledger client. A catalog fetcher must be injected alongside
// unless the client can fetch catalogs itself.
func WithWorkloadClient(c workload.Client) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		if c == nil {
			return fmt.Errorf("workload client cannot be nil")
		}
		cfg.ledger = c
		return nil
	}
}

// WithCatalogFetcher injects the source of configured catalogs
func WithCatalogFetcher(f negotiation.CatalogFetcher) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.catalogs = f
		return nil
	}
}

// WithFeatureFlags injects the flag client instead of reading featureFlags.file
func WithFeatureFlags(f featureflag.Client) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.flags = f
		return nil
	}
}

// WithPodClient injects the pod client instead of connecting to the cluster
func WithPodClient(p kubernetes.PodClient) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.pods = p
		return nil
	}
}

// WithRestConfig sets the cluster connection used by the pod client and the sweeper host
func WithRestConfig(rc *rest.Config) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.restConfig = rc
		return nil
	}
}

// WithTelemetry injects already-initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithSweeperHostFactory replaces the controller manager that hosts the sweepers
func WithSweeperHostFactory(f SweeperHostFactory) LauncherAppOptions {
	return func(cfg *launcherAppConfig) error {
		if f == nil {
			return fmt.Errorf("sweeper host factory cannot be nil")
		}
		cfg.hostFactory = f
		return nil
	}
}

// buildControlPlaneClients builds the ledger client, authenticating with OAuth2 client
// credentials when a token URL is configured
func buildControlPlaneClients(ctx context.Context, b *launcherAppConfig) error {
	if b.ledger != nil {
		if b.catalogs == nil {
			fetcher, ok := b.ledger.(negotiation.CatalogFetcher)
			if !ok {
				return fmt.Errorf("catalog fetcher is required when the workload client is injected")
			}
			b.catalogs = fetcher
		}
		return nil
	}

	cp := b.config.ControlPlane
	var httpOpts []httpclient.Option
	if cp.TokenURL != "" {
		secret, err := b.config.Dataplane.GetClientSecret()
		if err != nil {
			return err
		}
		creds := clientcredentials.Config{
			ClientID:     b.config.Dataplane.ClientID,
			ClientSecret: secret,
			TokenURL:     cp.TokenURL,
		}
		httpOpts = append(httpOpts, httpclient.WithHTTPClient(creds.Client(ctx)))
		slog.Info("Control plane authentication enabled", "token_url", cp.TokenURL)
	}

	client := workload.NewHTTPClient(cp.BaseURL, httpclient.NewDefaultClient(cp.GetTimeout(), httpOpts...))
	b.ledger = client
	if b.catalogs == nil {
		b.catalogs = client
	}
	return nil
}

func buildFeatureFlags(b *launcherAppConfig) error {
	if b.flags != nil {
		return nil
	}
	if path := b.config.FeatureFlags.File; path != "" {
		fc, err := featureflag.NewFileClient(path)
		if err != nil {
			return err
		}
		b.flags = fc
		return nil
	}
	slog.Info("No feature flag file configured, using flag defaults")
	b.flags = featureflag.NewStatic()
	return nil
}

func buildPodClient(b *launcherAppConfig) error {
	if b.pods != nil {
		return nil
	}
	if b.restConfig == nil {
		rc, err := kubernetes.RestConfig()
		if err != nil {
			return fmt.Errorf("failed to load kubernetes config: %w", err)
		}
		b.restConfig = rc
	}
	pods, err := kubernetes.NewPodClientForConfig(b.restConfig)
	if err != nil {
		return err
	}
	b.pods = pods
	return nil
}

// buildLaunchComponents wires identity, intake and the launch pipeline
func buildLaunchComponents(
	ctx context.Context,
	b *launcherAppConfig,
	metrics *telemetry.LauncherMetrics,
) (*AppComponents, error) {
	slog.Info("Initializing launch components")
	cfg := b.config
	tracer := b.telemetry.Tracer()

	broadcaster := dataplane.NewBroadcaster()
	identity := dataplane.NewPoller(b.ledger, b.flags, broadcaster,
		cfg.Dataplane.ClientID, cfg.Dataplane.Name,
		dataplane.WithRefreshInterval(cfg.Identity.GetRefreshInterval()),
	)

	namespace := cfg.Kubernetes.GetNamespace()
	launcher := pipeline.New(
		negotiation.New(b.flags, b.catalogs),
		kubernetes.NewPodFactory(namespace, cfg.Kubernetes.OrchestratorImage),
		b.pods,
		b.ledger,
		pipeline.WithWorkers(cfg.Pipeline.GetWorkers()),
		pipeline.WithBufferSize(cfg.Pipeline.GetBufferSize()),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(tracer),
	)

	consumer := queue.NewPoller(b.ledger, launcher, broadcaster,
		queue.WithPollInterval(cfg.Queue.GetPollInterval()),
		queue.WithQuantity(cfg.Queue.GetQuantity()),
		queue.WithPriority(cfg.Queue.Priority),
		queue.WithMetrics(metrics),
	)

	intake := dataplane.NewIntakeGate(consumer)
	broadcaster.Subscribe(func(c dataplane.Config) {
		intake.OnConfig(context.WithoutCancel(ctx), c)
	})

	gate := backlog.NewGate(cfg.Backlog.GetParallelism(), cfg.Backlog.MaxSurgePercent)
	if err := metrics.RegisterBacklogGauge(gate.Count); err != nil {
		return nil, fmt.Errorf("failed to register backlog gauge: %w", err)
	}

	return &AppComponents{
		Broadcaster: broadcaster,
		Identity:    identity,
		Pipeline:    launcher,
		Queue:       consumer,
		Intake:      intake,
		Gate:        gate,
		telemetry:   b.telemetry,
		newResumer: func(dataplaneID string) *backlog.Resumer {
			return backlog.NewResumer(b.ledger, launcher, dataplaneID, cfg.Backlog.GetParallelism(),
				backlog.WithTracker(gate),
				backlog.WithMetrics(metrics),
				backlog.WithTracer(b.telemetry.Tracer()),
			)
		},
	}, nil
}

// buildSweepers schedules the TTL sweeper and the runaway detector on the sweeper host
func buildSweepers(
	b *launcherAppConfig,
	identity sweeper.IdentitySource,
	metrics *telemetry.LauncherMetrics,
) (SweeperHost, error) {
	cfg := b.config
	namespace := cfg.Kubernetes.GetNamespace()
	tracer := b.telemetry.Tracer()
	opts := []sweeper.Option{sweeper.WithMetrics(metrics)}

	ttl := sweeper.NewTTLSweeper(b.pods, namespace, sweeper.TTLs{
		Running:      cfg.TTLSweeper.GetRunningTTL(),
		Succeeded:    cfg.TTLSweeper.GetSucceededTTL(),
		Unsuccessful: cfg.TTLSweeper.GetUnsuccessfulTTL(),
	}, opts...)

	runaway := sweeper.NewRunawayDetector(b.pods, b.ledger, b.flags, identity, namespace,
		cfg.Runaway.GetGracePeriod(), opts...)

	schedules := []manager.Runnable{
		&sweeper.Schedule{
			Name:     "ttl",
			Interval: cfg.TTLSweeper.GetInterval(),
			Run:      ttl.Sweep,
			Tracer:   tracer,
		},
		&sweeper.Schedule{
			Name:     "runaway-mark",
			Interval: cfg.Runaway.GetMarkInterval(),
			Run:      runaway.Mark,
			Tracer:   tracer,
		},
		&sweeper.Schedule{
			Name:         "runaway-sweep",
			Interval:     cfg.Runaway.GetSweepInterval(),
			InitialDelay: cfg.Runaway.GetSweepOffset(),
			Run:          runaway.Sweep,
			Tracer:       tracer,
		},
	}

	return b.hostFactory(cfg, b.restConfig, schedules...)
}

// newManagerHost runs the sweepers as leader-elected runnables of a controller manager
func newManagerHost(cfg *config.Config, restConfig *rest.Config, runnables ...manager.Runnable) (SweeperHost, error) {
	opts := []kubernetes.Option{
		kubernetes.WithNamespace(cfg.Kubernetes.GetNamespace()),
		kubernetes.WithLeaderElection(cfg.Kubernetes.GetLeaderElection()),
		kubernetes.WithRunnables(runnables...),
	}
	if restConfig != nil {
		opts = append(opts, kubernetes.WithRestConfig(restConfig))
	}
	mgr, err := kubernetes.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

// buildHTTPServer builds the operational HTTP server
func buildHTTPServer(b *launcherAppConfig, intake *dataplane.IntakeGate) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// metrics and tracing go first so they also see requests failed by later middleware
	httpMetrics, err := telemetry.NewHTTPMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	router := api.NewServer(intakeReadiness{intake: intake},
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.telemetry.MetricsHandler()),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// errIntakeNotStarted is reported by /readiness while the startup backlog drains
var errIntakeNotStarted = errors.New("intake has not started")

type intakeReadiness struct {
	intake *dataplane.IntakeGate
}

func (r intakeReadiness) CheckReadiness(context.Context) error {
	if !r.intake.Started() {
		return errIntakeNotStarted
	}
	return nil
}
