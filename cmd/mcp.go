package cmd

import (
	"context"
	"fmt"

	"onionctl/internal/app"

	"github.com/spf13/cobra"
)

// mcpCmd serves the MCP tools on stdin/stdout for assistants that spawn their tools.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the onionctl MCP tools over stdio",
	Long: `Runs a controller that speaks MCP on stdin/stdout.

Use this when an assistant launches onionctl itself. The controller lives as
long as the MCP session; the tunnel is disconnected when the session ends.
Logs go to stderr, or to logging.file when configured.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(configPath, debug))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.ServeMCPStdio(ctx, rootCmd.Version)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
