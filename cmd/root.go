package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath points at an explicit config file instead of the layered lookup
	configPath string

	// debug enables verbose logging across the application
	debug bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "onionctl",
	Short: "Control a Tor-style tunnel, its bridges, circuits and logs",
	Long: `onionctl manages a tunnel daemon through its control port.

It keeps the bridge configuration (pluggable transport selection and custom
bridge lines), connects and disconnects the tunnel, refreshes circuits and
tails diagnostic logs. 'onionctl serve' runs the controller with an HTTP API
and an MCP server; the other commands talk to that running server.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed connections)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "onionctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is layered ~/.config/onionctl/config.yaml and .onionctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
}
