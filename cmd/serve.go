package cmd

import (
	"context"
	"fmt"

	"onionctl/internal/app"

	"github.com/spf13/cobra"
)

// serveConnect starts the tunnel as soon as the server is up.
var serveConnect bool

// serveCmd runs the controller. Every other command except mcp talks to it.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the onionctl controller with its HTTP API and MCP server",
	Long: `Runs the controller until interrupted.

The controller owns the connection state machine, the circuit orchestrator
and the log tail. It exposes them over:

  - an HTTP API with server-sent event streams (api.enabled, default port 8095)
  - an MCP server over SSE (mcp.enabled, default port 8096)

The one-shot commands ('onionctl status', 'onionctl connect', ...) use the MCP
server, so keep it enabled unless you only drive onionctl over HTTP.

Configuration:
  onionctl loads configuration from ~/.config/onionctl/config.yaml, then
  .onionctl/config.yaml in the current directory, or the file given by --config.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(configPath, debug)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Serve(ctx, rootCmd.Version, serveConnect)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveConnect, "connect", false, "Connect the tunnel once the server is up")
}
