package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"onionctl/internal/cli"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

var (
	logsCopy     bool
	logsFollow   bool
	logsInterval time.Duration
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read the diagnostic log sources",
	Long: `Read the diagnostic log sources of the running server.

Available commands:
  list          - List the log sources and the one being tailed
  show <name>   - Make <name> the tailed source and print its content`,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the log sources",
	Args:  cobra.NoArgs,
	RunE:  runTool("onion_logs_list", nil),
}

var logsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Switch the tail to a log source and print it",
	Long: `Switch the server's single log tail to <name> and print the source's content.

With --follow the content is printed again whenever it changes; only the new
part is printed when the source grew. With --copy the content is also put on
the clipboard.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogsShow,
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	name := args[0]
	return withExecutor(cmd, 0, func(ctx context.Context, e *cli.ToolExecutor) error {
		read := func() (string, error) {
			return e.ExecuteSimple(ctx, "onion_log_read", map[string]interface{}{"name": name})
		}

		content, err := read()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, withNewline(content))

		if logsCopy {
			if err := clipboard.WriteAll(content); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			e.Printf("Copied %s to the clipboard.\n", name)
		}
		if !logsFollow {
			return nil
		}

		ticker := time.NewTicker(logsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			next, err := read()
			if err != nil {
				return err
			}
			if next == content {
				continue
			}
			fmt.Fprint(out, withNewline(logDelta(content, next)))
			content = next
		}
	})
}

// logDelta returns what was appended to prev, or all of next when the source was rewritten.
func logDelta(prev, next string) string {
	if strings.HasPrefix(next, prev) {
		return next[len(prev):]
	}
	return next
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func init() {
	rootCmd.AddCommand(logsCmd)
	addClientFlags(logsCmd)

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsShowCmd)

	logsShowCmd.Flags().BoolVar(&logsCopy, "copy", false, "Also copy the content to the clipboard")
	logsShowCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing changes")
	logsShowCmd.Flags().DurationVar(&logsInterval, "interval", 2*time.Second, "Polling interval for --follow")
}
