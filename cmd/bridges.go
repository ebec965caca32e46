package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	bridgeLines []string
	bridgesFile string
)

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "Show and change the bridge configuration",
	Long: `Show and change the bridge configuration of the running server.

Available commands:
  show        - Show the saved transport and custom bridge lines
  transports  - List the selectable transports
  set         - Select a transport and save

Saving never reconnects. When the tunnel is running, reconnect to apply.`,
}

var bridgesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved bridge configuration",
	Args:  cobra.NoArgs,
	RunE:  runTool("onion_bridges_get", nil),
}

var bridgesTransportsCmd = &cobra.Command{
	Use:   "transports",
	Short: "List the selectable transports",
	Args:  cobra.NoArgs,
	RunE:  runTool("onion_transports", nil),
}

var bridgesSetCmd = &cobra.Command{
	Use:   "set <transport>",
	Short: "Select a transport and save the bridge configuration",
	Long: `Select a transport (none, obfs4, snowflake or custom) and save.

Custom bridge lines are given with --bridge (repeatable) or --file, one line
per bridge. Lines starting with # are kept but disabled. The custom transport
needs at least one line that is not disabled. When neither flag is given the
saved custom lines are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runTool("onion_bridges_set", bridgesSetArgs),
}

func bridgesSetArgs(cmd *cobra.Command, args []string) (map[string]interface{}, error) {
	arguments := map[string]interface{}{"transport": args[0]}

	lines := append([]string(nil), bridgeLines...)
	if bridgesFile != "" {
		data, err := os.ReadFile(bridgesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read bridges file: %w", err)
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	if len(lines) > 0 {
		arguments["custom_bridges"] = strings.Join(lines, "\n")
	}
	return arguments, nil
}

func init() {
	rootCmd.AddCommand(bridgesCmd)
	addClientFlags(bridgesCmd)

	bridgesCmd.AddCommand(bridgesShowCmd)
	bridgesCmd.AddCommand(bridgesTransportsCmd)
	bridgesCmd.AddCommand(bridgesSetCmd)

	bridgesSetCmd.Flags().StringArrayVar(&bridgeLines, "bridge", nil, "Custom bridge line (repeatable)")
	bridgesSetCmd.Flags().StringVar(&bridgesFile, "file", "", "Read custom bridge lines from a file")
}
