package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	launcher "github.com/stacklok/workload-launcher/internal/app"
	"github.com/stacklok/workload-launcher/internal/config"
)

// defaultGracefulTimeout is the Kubernetes-friendly shutdown time
const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workload launcher",
		Long: `Start the workload launcher.

The launcher requires a configuration file (--config) that specifies:
- the dataplane name and control plane endpoint
- the job namespace and orchestrator image
- backlog, queue and sweeper tuning

See examples/ directory for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v.GetString("config"), v.GetString("address"))
		},
	}

	cmd.Flags().String("address", ":8080", "Address of the health and metrics server")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	for _, name := range []string{"address", "config"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}

	return cmd
}

func runServe(ctx context.Context, configPath, address string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if configPath == "" {
		return fmt.Errorf("a configuration file is required: pass --config or set %s_CONFIG", EnvPrefix)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"dataplane", cfg.Dataplane.Name,
		"namespace", cfg.Kubernetes.GetNamespace())

	app, err := launcher.NewLauncherApp(ctx,
		launcher.WithConfig(cfg),
		launcher.WithAddress(address),
	)
	if err != nil {
		return fmt.Errorf("failed to build launcher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("Launcher stopped", "error", err)
			if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
				slog.Error("Failed to stop launcher cleanly", "error", stopErr)
			}
			return err
		}
	}

	return app.Stop(defaultGracefulTimeout)
}
