// Package telemetry sets up OpenTelemetry tracing and metrics for the launcher and defines
// the launcher's own instruments.
package telemetry

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultServiceName is reported when the config does not name the service
	DefaultServiceName = "workload-launcher"

	// DefaultEndpoint is the OTLP HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the trace sampling ratio used when none is configured
	DefaultSampling = 0.05

	// DefaultMetricsInterval is the OTLP push interval
	DefaultMetricsInterval = 60 * time.Second
)

// Metric exporters
const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

var knownExporters = []string{ExporterOTLP, ExporterPrometheus}

// Config is the telemetry section of the launcher config
type Config struct {
	// Enabled turns on every configured provider. When false all providers are no-ops.
	Enabled bool `yaml:"enabled"`

	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP collector "host:port"; /v1/traces and /v1/metrics are appended
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of traces kept, 0.0 to 1.0. Zero means DefaultSampling.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig configures metric export
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporters lists where metrics go: "otlp", "prometheus" or both. Empty means otlp.
	Exporters []string `yaml:"exporters,omitempty"`

	// Interval is the OTLP push interval as a Go duration. Empty means DefaultMetricsInterval.
	Interval string `yaml:"interval,omitempty"`
}

// GetServiceName returns the service name or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns the service version or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns the collector endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetSampling returns the sampling ratio. An unset (zero) ratio means DefaultSampling.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0.0 {
		return DefaultSampling
	}
	return c.Sampling
}

// HasExporter reports whether metrics should be sent to the named exporter
func (c *MetricsConfig) HasExporter(name string) bool {
	if c == nil || !c.Enabled {
		return false
	}
	if len(c.Exporters) == 0 {
		return name == ExporterOTLP
	}
	return slices.Contains(c.Exporters, name)
}

// GetInterval returns the OTLP push interval. Call Validate first; an unparseable value
// falls back to DefaultMetricsInterval.
func (c *MetricsConfig) GetInterval() time.Duration {
	if c.Interval == "" {
		return DefaultMetricsInterval
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return DefaultMetricsInterval
	}
	return d
}

// Validate checks the enabled sections. A nil or disabled config is valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate checks exporter names and the push interval
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	for _, e := range c.Exporters {
		if !slices.Contains(knownExporters, e) {
			errs = append(errs, fmt.Errorf("unknown exporter %q, expected one of %v", e, knownExporters))
		}
	}
	if c.Interval != "" {
		d, err := time.ParseDuration(c.Interval)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid interval %q: %w", c.Interval, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
		}
	}
	return errors.Join(errs...)
}
