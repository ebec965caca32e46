package cmd

import (
	"context"

	"onionctl/internal/cli"

	"github.com/spf13/cobra"
)

var circuitsCmd = &cobra.Command{
	Use:   "circuits",
	Short: "Inspect and refresh the tunnel's circuits",
	Long: `Inspect and refresh circuits of the connected tunnel.

Available commands:
  list     - List open circuits with their relay path
  refresh  - Close every open circuit so new ones are built`,
}

var circuitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open circuits",
	Args:  cobra.NoArgs,
	RunE:  runTool("onion_circuits_list", nil),
}

var circuitsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Close every open circuit",
	Long: `Close every open circuit so the tunnel builds new ones. Only one refresh runs
at a time; a second request while one is running is rejected. Disconnecting
aborts a running refresh.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExecutor(cmd, 0, func(ctx context.Context, e *cli.ToolExecutor) error {
			e.Printf("Refreshing circuits...\n")
			return e.Execute(ctx, "onion_circuits_refresh", nil)
		})
	},
}

func init() {
	rootCmd.AddCommand(circuitsCmd)
	addClientFlags(circuitsCmd)

	circuitsCmd.AddCommand(circuitsListCmd)
	circuitsCmd.AddCommand(circuitsRefreshCmd)
}
