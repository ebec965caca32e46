package cmd

import (
	"context"
	"time"

	"onionctl/internal/cli"
	"onionctl/internal/config"

	"github.com/spf13/cobra"
)

var (
	outputFormat string
	quiet        bool
	endpoint     string
)

// addClientFlags registers the flags shared by commands that talk to a running server.
func addClientFlags(c *cobra.Command) {
	c.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")
	c.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	c.PersistentFlags().StringVar(&endpoint, "endpoint", "", "MCP endpoint of the running server (default from config)")
}

// withExecutor connects to the running server, runs fn and closes the session.
func withExecutor(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, e *cli.ToolExecutor) error) error {
	executor, err := cli.NewToolExecutor(cli.ExecutorOptions{
		Format:     cli.OutputFormat(outputFormat),
		Quiet:      quiet,
		ConfigPath: configPath,
		Endpoint:   endpoint,
		Timeout:    timeout,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer executor.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := executor.Connect(ctx); err != nil {
		return err
	}
	return fn(ctx, executor)
}

// runTool is the RunE body of commands that map one-to-one onto a tool.
func runTool(tool string, args func(cmd *cobra.Command, posArgs []string) (map[string]interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, posArgs []string) error {
		var arguments map[string]interface{}
		if args != nil {
			var err error
			if arguments, err = args(cmd, posArgs); err != nil {
				return err
			}
		}
		return withExecutor(cmd, 0, func(ctx context.Context, e *cli.ToolExecutor) error {
			return e.Execute(ctx, tool, arguments)
		})
	}
}

// connectTimeout covers a full bootstrap on the server side.
func connectTimeout() time.Duration {
	return config.DefaultBootstrapTimeout + 30*time.Second
}
