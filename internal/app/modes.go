package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"onionctl/internal/mcptools"
	"onionctl/internal/server"
	"onionctl/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// runServeMode runs the enabled network surfaces until ctx is cancelled or a signal arrives.
// When autoConnect is set the tunnel is started once the surfaces are up.
func runServeMode(ctx context.Context, config *Config, services *Services, version string, autoConnect bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	oc := config.OnionctlConfig
	g, gctx := errgroup.WithContext(ctx)

	if oc.API.Enabled {
		apiServer := server.New(services.Facade, oc.API)
		g.Go(func() error { return apiServer.Run(gctx) })
	}
	if oc.MCP.Enabled {
		mcpServer := mcptools.NewServer(services.Facade, gctx, version)
		g.Go(func() error { return mcptools.ServeSSE(gctx, mcpServer, oc.MCP) })
	}
	if !oc.API.Enabled && !oc.MCP.Enabled {
		logging.Warn("Serve", "Neither the HTTP API nor the MCP server is enabled, nothing to serve")
	}

	if autoConnect {
		g.Go(func() error {
			if _, err := services.Facade.Connect(gctx); err != nil {
				// A failed start leaves the machine in Error; clients can retry.
				logging.Error("Serve", err, "Automatic connect failed")
			}
			return nil
		})
	}

	logging.Info("Serve", "onionctl running. Press Ctrl+C to stop.")
	<-gctx.Done()
	err := g.Wait()

	logging.Info("Serve", "--- Shutting down ---")
	if cerr := services.Close(context.Background()); cerr != nil {
		logging.Warn("Serve", "Disconnect during shutdown failed: %v", cerr)
	}
	return err
}

// runStdioMode serves MCP on stdin/stdout. Logging must not use stdout in this mode.
func runStdioMode(ctx context.Context, services *Services, version string) error {
	defer func() {
		if err := services.Close(context.Background()); err != nil {
			logging.Warn("MCP", "Disconnect during shutdown failed: %v", err)
		}
	}()
	return mcptools.ServeStdio(mcptools.NewServer(services.Facade, ctx, version))
}
