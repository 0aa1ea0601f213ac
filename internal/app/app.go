// Package app wires the launcher's components together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/workload-launcher/internal/config"
	"github.com/stacklok/workload-launcher/internal/dataplane"
)

// LauncherApp encapsulates all components needed to run the launcher.
// It provides lifecycle management and graceful shutdown capabilities.
type LauncherApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the launcher. It blocks until the HTTP server stops, or returns early when
// startup fails: a failed identity handshake or an unreadable backlog stops the process.
func (app *LauncherApp) Start() error {
	errCh := make(chan error, 2)

	go func() {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	go func() {
		if err := app.components.Sweepers.Start(app.ctx); err != nil {
			slog.Error("Sweepers stopped", "error", err)
		}
	}()

	go func() {
		if err := app.startLaunching(app.ctx); err != nil && app.ctx.Err() == nil {
			errCh <- err
		}
	}()

	return <-errCh
}

// startLaunching confirms the identity, resumes the backlog and finally opens intake
func (app *LauncherApp) startLaunching(ctx context.Context) error {
	c := app.components

	identity, err := app.establishIdentity(ctx)
	if err != nil {
		return err
	}

	go func() {
		if err := c.Identity.Watch(ctx); err != nil {
			slog.Error("Identity refresh stopped", "error", err)
		}
	}()

	c.Pipeline.Start(ctx)

	if err := c.newResumer(identity.DataplaneID).ResumeAll(ctx); err != nil {
		return fmt.Errorf("failed to resume claimed workloads: %w", err)
	}

	slog.Info("Waiting for the startup backlog to drain", "remaining", c.Gate.Count())
	if err := c.Gate.AwaitDrained(ctx); err != nil {
		return err
	}

	c.Intake.Start()
	return nil
}

// establishIdentity runs the handshake, or publishes the configured identity when the
// handshake is disabled for this plane
func (app *LauncherApp) establishIdentity(ctx context.Context) (dataplane.Config, error) {
	c := app.components
	if err := c.Identity.Run(ctx); err != nil {
		return dataplane.Config{}, err
	}

	if !c.Identity.Enabled(ctx) {
		static := app.config.Dataplane
		if static.ID == "" || static.GroupID == "" {
			return dataplane.Config{}, fmt.Errorf(
				"identity handshake is disabled but dataplane.id and dataplane.groupId are not configured")
		}
		c.Broadcaster.Publish(dataplane.Config{
			DataplaneID:      static.ID,
			DataplaneName:    static.Name,
			DataplaneEnabled: true,
			DataplaneGroupID: static.GroupID,
		})
	}

	identity, ok := c.Broadcaster.Latest()
	if !ok {
		return dataplane.Config{}, fmt.Errorf("no dataplane identity was published")
	}
	return identity, nil
}

// Stop gracefully stops the application with the given timeout.
// Intake stops first so nothing new is claimed while the pipeline drains.
func (app *LauncherApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down launcher...")

	app.components.Queue.Stop()
	app.components.Pipeline.Stop()

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.telemetry.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush telemetry: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Info("Launcher shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *LauncherApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *LauncherApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the wired components
func (app *LauncherApp) GetComponents() *AppComponents {
	return app.components
}
