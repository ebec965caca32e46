package cmd

import (
	"context"

	"onionctl/internal/cli"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tunnel state and the saved bridge selection",
	Long: `Show the connection state of the running server (Stopped, Starting(N%),
Connected, Stopping or Error(reason)), the saved transport, whether there are
unsaved bridge edits and which log source is tailed.

Note: the server must be running (use 'onionctl serve') before using this command.`,
	Args: cobra.NoArgs,
	RunE: runTool("onion_status", nil),
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the tunnel with the saved bridge configuration",
	Long: `Start the tunnel and wait until it has bootstrapped.

Connecting while already starting or connected does nothing. The bridge
configuration is read from disk at this point, so a save made earlier takes
effect now.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExecutor(cmd, connectTimeout(), func(ctx context.Context, e *cli.ToolExecutor) error {
			e.Printf("Connecting via %s...\n", e.Endpoint())
			return e.Execute(ctx, "onion_connect", nil)
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the tunnel",
	Long: `Stop the tunnel. A circuit refresh in progress is aborted first. Disconnecting
a stopped tunnel does nothing.`,
	Args: cobra.NoArgs,
	RunE: runTool("onion_disconnect", nil),
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, connectCmd, disconnectCmd} {
		addClientFlags(c)
		rootCmd.AddCommand(c)
	}
}
