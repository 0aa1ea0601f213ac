package dataplane

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/workload-launcher/internal/featureflag"
	"github.com/stacklok/workload-launcher/internal/workload"
)

// Poller obtains this plane's identity from the control plane and publishes it.
// Consumers read the confirmed identity from the Broadcaster.
type Poller struct {
	client        workload.Client
	flags         featureflag.Client
	broadcaster   *Broadcaster
	clientID      string
	dataplaneName string

	refreshInterval time.Duration
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithRefreshInterval re-polls the identity on the given interval after startup
func WithRefreshInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.refreshInterval = d
	}
}

// NewPoller creates an identity poller
func NewPoller(
	client workload.Client,
	flags featureflag.Client,
	broadcaster *Broadcaster,
	clientID string,
	dataplaneName string,
	opts ...PollerOption,
) *Poller {
	p := &Poller{
		client:        client,
		flags:         flags,
		broadcaster:   broadcaster,
		clientID:      clientID,
		dataplaneName: dataplaneName,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled reports whether the identity handshake runs for this plane
func (p *Poller) Enabled(ctx context.Context) bool {
	return !p.flags.BoolVariation(ctx, featureflag.DisableIdentityHandshake, featureflag.DataplaneName(p.dataplaneName))
}

// Run performs the startup handshake. An error means the plane has no confirmed identity
// and must not start.
func (p *Poller) Run(ctx context.Context) error {
	if !p.Enabled(ctx) {
		slog.Info("Identity handshake disabled, keeping static dataplane identity",
			"dataplane_name", p.dataplaneName)
		return nil
	}

	cfg, err := p.poll(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dataplane identity: %w", err)
	}

	slog.Info("Dataplane identity confirmed",
		"dataplane_id", cfg.DataplaneID,
		"dataplane_name", cfg.DataplaneName,
		"dataplane_group_id", cfg.DataplaneGroupID,
		"enabled", cfg.DataplaneEnabled)
	return nil
}

// Watch re-polls the identity until ctx is done. It returns immediately when no refresh
// interval is configured or the handshake is disabled. Refresh failures keep the previous identity.
func (p *Poller) Watch(ctx context.Context) error {
	if p.refreshInterval <= 0 || !p.Enabled(ctx) {
		return nil
	}

	ticker := time.NewTicker(p.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				slog.Warn("Failed to refresh dataplane identity", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Poller) poll(ctx context.Context) (Config, error) {
	resp, err := p.client.InitializeDataplane(ctx, p.clientID)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataplaneID:        resp.DataplaneID,
		DataplaneName:      resp.DataplaneName,
		DataplaneEnabled:   resp.DataplaneEnabled,
		DataplaneGroupID:   resp.DataplaneGroupID,
		DataplaneGroupName: resp.DataplaneGroupName,
	}

	p.broadcaster.Publish(cfg)
	return cfg, nil
}
