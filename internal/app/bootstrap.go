package app

import (
	"context"
	"fmt"
	"os"

	"onionctl/internal/config"
	"onionctl/internal/control"
	"onionctl/internal/tunnel"
	"onionctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs onionctl
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance
func NewApplication(cfg *Config) (*Application, error) {
	return newApplication(cfg, nil)
}

func newApplication(cfg *Config, tun tunnel.Control) (*Application, error) {
	// Logs go to stderr so stdout stays free for command output and MCP stdio
	logging.InitForCLI(cfg.logLevel(), os.Stderr)

	// Load onionctl configuration
	var onionCfg config.OnionctlConfig
	var err error

	if cfg.ConfigPath != "" {
		onionCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load onionctl configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load onionctl configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Info("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		onionCfg, err = config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load onionctl configuration")
			return nil, fmt.Errorf("failed to load onionctl configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	cfg.OnionctlConfig = &onionCfg

	// Re-initialize with the configured level and destination
	if onionCfg.Logging.File != "" {
		if err := logging.InitForFile(cfg.logLevel(), onionCfg.Logging.File); err != nil {
			return nil, fmt.Errorf("failed to open controller log: %w", err)
		}
		logging.Info("Bootstrap", "Controller log: %s", onionCfg.Logging.File)
	} else {
		logging.InitForCLI(cfg.logLevel(), os.Stderr)
	}

	services, err := InitializeServices(cfg, tun)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	for _, w := range services.Facade.Warnings() {
		logging.Warn("Bootstrap", "%s", w)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Facade returns the control facade for one-shot commands.
func (a *Application) Facade() *control.Facade {
	return a.services.Facade
}

// Config returns the loaded configuration.
func (a *Application) Config() config.OnionctlConfig {
	return *a.config.OnionctlConfig
}

// Serve runs the HTTP API and MCP surfaces until ctx is done or a signal arrives.
func (a *Application) Serve(ctx context.Context, version string, autoConnect bool) error {
	return runServeMode(ctx, a.config, a.services, version, autoConnect)
}

// ServeMCPStdio serves the MCP tools on stdin/stdout.
func (a *Application) ServeMCPStdio(ctx context.Context, version string) error {
	return runStdioMode(ctx, a.services, version)
}

// Close releases everything NewApplication set up. The tunnel is not stopped: one-shot
// commands leave a started tunnel running.
func (a *Application) Close() error {
	if cerr := a.services.closeTunnel(); cerr != nil {
		logging.Warn("Bootstrap", "Closing control connection: %v", cerr)
	}
	a.services.Bus.Close()
	return logging.Close()
}
