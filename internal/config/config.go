// Package config loads the launcher's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/stacklok/workload-launcher/internal/telemetry"
)

// ClientSecretEnvVar is read when no client secret file is configured
const ClientSecretEnvVar = "WORKLOAD_LAUNCHER_CLIENT_SECRET"

// Defaults applied by the getters when a value is left out
const (
	DefaultControlPlaneTimeout     = 30 * time.Second
	DefaultNamespace               = "jobs"
	DefaultBacklogParallelism      = 10
	DefaultPipelineWorkers         = 10
	DefaultPipelineBufferSize      = 100
	DefaultQueuePollInterval       = 5 * time.Second
	DefaultQueueQuantity           = 10
	DefaultTTLSweepInterval        = 10 * time.Minute
	DefaultSucceededTTL            = 10 * time.Minute
	DefaultUnsuccessfulTTL         = 2 * time.Hour
	DefaultRunawayMarkInterval     = time.Hour
	DefaultRunawaySweepInterval    = time.Hour
	DefaultRunawaySweepOffset      = 30 * time.Minute
	DefaultRunawayGracePeriod      = 24 * time.Hour
	DefaultIdentityRefreshInterval = 5 * time.Minute
)

// Option configures LoadConfig
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// EvalSymlinks also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config is the root of the launcher configuration
type Config struct {
	Dataplane    DataplaneConfig    `yaml:"dataplane"`
	ControlPlane ControlPlaneConfig `yaml:"controlPlane"`
	Kubernetes   KubernetesConfig   `yaml:"kubernetes"`
	Backlog      BacklogConfig      `yaml:"backlog,omitempty"`
	Pipeline     PipelineConfig     `yaml:"pipeline,omitempty"`
	Queue        QueueConfig        `yaml:"queue,omitempty"`
	TTLSweeper   TTLSweeperConfig   `yaml:"ttlSweeper,omitempty"`
	Runaway      RunawayConfig      `yaml:"runaway,omitempty"`
	FeatureFlags FeatureFlagsConfig `yaml:"featureFlags,omitempty"`
	Identity     IdentityConfig     `yaml:"identity,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DataplaneConfig is the static identity of this dataplane. The id and group id are used
// as-is when the identity handshake is disabled.
type DataplaneConfig struct {
	Name             string `yaml:"name"`
	ID               string `yaml:"id,omitempty"`
	GroupID          string `yaml:"groupId,omitempty"`
	ClientID         string `yaml:"clientId,omitempty"`
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`
}

// ControlPlaneConfig locates the workload ledger
type ControlPlaneConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout string `yaml:"timeout,omitempty"`

	// TokenURL enables OAuth2 client credentials against this endpoint
	TokenURL string `yaml:"tokenUrl,omitempty"`
}

// KubernetesConfig is where and how pods are launched
type KubernetesConfig struct {
	Namespace         string `yaml:"namespace,omitempty"`
	LeaderElection    *bool  `yaml:"leaderElection,omitempty"`
	OrchestratorImage string `yaml:"orchestratorImage"`
}

// BacklogConfig tunes startup resumption
type BacklogConfig struct {
	Parallelism     int `yaml:"parallelism,omitempty"`
	MaxSurgePercent int `yaml:"maxSurgePercent,omitempty"`
}

// PipelineConfig sizes the launch pipeline
type PipelineConfig struct {
	Workers    int `yaml:"workers,omitempty"`
	BufferSize int `yaml:"bufferSize,omitempty"`
}

// QueueConfig tunes queue polling
type QueueConfig struct {
	PollInterval string `yaml:"pollInterval,omitempty"`
	Quantity     int    `yaml:"quantity,omitempty"`
	Priority     string `yaml:"priority,omitempty"`
}

// TTLSweeperConfig sets the per-phase pod TTLs. "0s" disables a phase; leaving it out uses the default.
type TTLSweeperConfig struct {
	Interval        string `yaml:"interval,omitempty"`
	RunningTTL      string `yaml:"runningTtl,omitempty"`
	SucceededTTL    string `yaml:"succeededTtl,omitempty"`
	UnsuccessfulTTL string `yaml:"unsuccessfulTtl,omitempty"`
}

// RunawayConfig schedules runaway pod detection
type RunawayConfig struct {
	MarkInterval  string `yaml:"markInterval,omitempty"`
	SweepInterval string `yaml:"sweepInterval,omitempty"`
	SweepOffset   string `yaml:"sweepOffset,omitempty"`
	GracePeriod   string `yaml:"gracePeriod,omitempty"`
}

// FeatureFlagsConfig points at the flag file. Without one every flag uses its built-in default.
type FeatureFlagsConfig struct {
	File string `yaml:"file,omitempty"`
}

// IdentityConfig tunes the identity poller
type IdentityConfig struct {
	RefreshInterval string `yaml:"refreshInterval,omitempty"`
}

// LoadConfig reads, parses and validates the configuration file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate reports every problem in the configuration at once
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Dataplane.Name == "" {
		errs = append(errs, errors.New("dataplane.name is required"))
	}

	if c.ControlPlane.BaseURL == "" {
		errs = append(errs, errors.New("controlPlane.baseUrl is required"))
	} else if err := validateURL(c.ControlPlane.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("controlPlane.baseUrl: %w", err))
	}
	if c.ControlPlane.TokenURL != "" {
		if err := validateURL(c.ControlPlane.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("controlPlane.tokenUrl: %w", err))
		}
		if c.Dataplane.ClientID == "" {
			errs = append(errs, errors.New("dataplane.clientId is required when controlPlane.tokenUrl is set"))
		}
	}

	if ns := c.Kubernetes.Namespace; ns != "" {
		if msgs := validation.IsDNS1123Label(ns); len(msgs) > 0 {
			errs = append(errs, fmt.Errorf("kubernetes.namespace %q: %s", ns, strings.Join(msgs, "; ")))
		}
	}
	if c.Kubernetes.OrchestratorImage == "" {
		errs = append(errs, errors.New("kubernetes.orchestratorImage is required"))
	}

	if c.Backlog.Parallelism < 0 {
		errs = append(errs, errors.New("backlog.parallelism cannot be negative"))
	}
	if p := c.Backlog.MaxSurgePercent; p < 0 || p > 100 {
		errs = append(errs, fmt.Errorf("backlog.maxSurgePercent must be between 0 and 100, got %d", p))
	}
	if c.Pipeline.Workers < 0 || c.Pipeline.BufferSize < 0 {
		errs = append(errs, errors.New("pipeline sizes cannot be negative"))
	}
	if c.Queue.Quantity < 0 {
		errs = append(errs, errors.New("queue.quantity cannot be negative"))
	}

	durations := []struct {
		field    string
		value    string
		positive bool
	}{
		{"controlPlane.timeout", c.ControlPlane.Timeout, true},
		{"queue.pollInterval", c.Queue.PollInterval, true},
		{"ttlSweeper.interval", c.TTLSweeper.Interval, true},
		{"ttlSweeper.runningTtl", c.TTLSweeper.RunningTTL, false},
		{"ttlSweeper.succeededTtl", c.TTLSweeper.SucceededTTL, false},
		{"ttlSweeper.unsuccessfulTtl", c.TTLSweeper.UnsuccessfulTTL, false},
		{"runaway.markInterval", c.Runaway.MarkInterval, true},
		{"runaway.sweepInterval", c.Runaway.SweepInterval, true},
		{"runaway.sweepOffset", c.Runaway.SweepOffset, false},
		{"runaway.gracePeriod", c.Runaway.GracePeriod, true},
		{"identity.refreshInterval", c.Identity.RefreshInterval, false},
	}
	for _, d := range durations {
		if err := validateDuration(d.value, d.positive); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.field, err))
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func validateDuration(value string, positive bool) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if positive && d <= 0 {
		return fmt.Errorf("must be positive, got %s", value)
	}
	if d < 0 && !positive {
		return fmt.Errorf("cannot be negative, got %s", value)
	}
	return nil
}

// durationOr parses value, returning def when it is empty. Values are checked by Validate.
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func intOr(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}

// GetClientSecret reads the client secret from ClientSecretFile, falling back to the
// WORKLOAD_LAUNCHER_CLIENT_SECRET environment variable. Surrounding whitespace is trimmed.
func (d *DataplaneConfig) GetClientSecret() (string, error) {
	if d.ClientSecretFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.ClientSecretFile))
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", d.ClientSecretFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if secret := os.Getenv(ClientSecretEnvVar); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("no client secret configured: set dataplane.clientSecretFile or %s", ClientSecretEnvVar)
}

// GetTimeout returns the per-request timeout of control plane calls
func (c *ControlPlaneConfig) GetTimeout() time.Duration {
	return durationOr(c.Timeout, DefaultControlPlaneTimeout)
}

// GetNamespace returns the pod namespace
func (k *KubernetesConfig) GetNamespace() string {
	if k.Namespace == "" {
		return DefaultNamespace
	}
	return k.Namespace
}

// GetLeaderElection reports whether sweepers wait for the leader lease. Defaults to true.
func (k *KubernetesConfig) GetLeaderElection() bool {
	return k.LeaderElection == nil || *k.LeaderElection
}

// GetParallelism returns the number of concurrent resumptions
func (b *BacklogConfig) GetParallelism() int {
	return intOr(b.Parallelism, DefaultBacklogParallelism)
}

// GetWorkers returns the number of launch workers
func (p *PipelineConfig) GetWorkers() int {
	return intOr(p.Workers, DefaultPipelineWorkers)
}

// GetBufferSize returns how many inputs may wait for a worker
func (p *PipelineConfig) GetBufferSize() int {
	return intOr(p.BufferSize, DefaultPipelineBufferSize)
}

// GetPollInterval returns the time between queue polls
func (q *QueueConfig) GetPollInterval() time.Duration {
	return durationOr(q.PollInterval, DefaultQueuePollInterval)
}

// GetQuantity returns the batch size of one poll
func (q *QueueConfig) GetQuantity() int {
	return intOr(q.Quantity, DefaultQueueQuantity)
}

// GetInterval returns the TTL sweep interval
func (t *TTLSweeperConfig) GetInterval() time.Duration {
	return durationOr(t.Interval, DefaultTTLSweepInterval)
}

// GetRunningTTL returns the running TTL; disabled unless configured
func (t *TTLSweeperConfig) GetRunningTTL() time.Duration {
	return durationOr(t.RunningTTL, 0)
}

// GetSucceededTTL returns the succeeded TTL
func (t *TTLSweeperConfig) GetSucceededTTL() time.Duration {
	return durationOr(t.SucceededTTL, DefaultSucceededTTL)
}

// GetUnsuccessfulTTL returns the TTL of every other phase
func (t *TTLSweeperConfig) GetUnsuccessfulTTL() time.Duration {
	return durationOr(t.UnsuccessfulTTL, DefaultUnsuccessfulTTL)
}

// GetMarkInterval returns the runaway mark interval
func (r *RunawayConfig) GetMarkInterval() time.Duration {
	return durationOr(r.MarkInterval, DefaultRunawayMarkInterval)
}

// GetSweepInterval returns the runaway sweep interval
func (r *RunawayConfig) GetSweepInterval() time.Duration {
	return durationOr(r.SweepInterval, DefaultRunawaySweepInterval)
}

// GetSweepOffset returns the delay of the first sweep after start
func (r *RunawayConfig) GetSweepOffset() time.Duration {
	return durationOr(r.SweepOffset, DefaultRunawaySweepOffset)
}

// GetGracePeriod returns how long a marked pod survives
func (r *RunawayConfig) GetGracePeriod() time.Duration {
	return durationOr(r.GracePeriod, DefaultRunawayGracePeriod)
}

// GetRefreshInterval returns the identity re-poll interval. "0s" turns re-polling off.
func (i *IdentityConfig) GetRefreshInterval() time.Duration {
	return durationOr(i.RefreshInterval, DefaultIdentityRefreshInterval)
}
