package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// ExecutorOptions contains options for tool execution
type ExecutorOptions struct {
	Format OutputFormat
	Quiet  bool

	// ConfigPath locates the server's listener; Endpoint overrides it.
	ConfigPath string
	Endpoint   string

	// Timeout bounds each tool call; zero keeps the client default.
	Timeout time.Duration

	// Out defaults to os.Stdout.
	Out io.Writer
}

// ToolExecutor runs tools on the server and prints their results
type ToolExecutor struct {
	client  *CLIClient
	options ExecutorOptions
}

// NewToolExecutor creates a new tool executor
func NewToolExecutor(options ExecutorOptions) (*ToolExecutor, error) {
	switch options.Format {
	case "":
		options.Format = OutputFormatText
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", options.Format)
	}
	if options.Out == nil {
		options.Out = os.Stdout
	}

	client := NewCLIClientWithEndpoint(options.Endpoint)
	if options.Endpoint == "" {
		client = NewCLIClient(options.ConfigPath)
	}
	if options.Timeout > 0 {
		client.timeout = options.Timeout
	}
	return &ToolExecutor{client: client, options: options}, nil
}

// Endpoint is the server the executor talks to
func (e *ToolExecutor) Endpoint() string {
	return e.client.Endpoint()
}

// Connect establishes connection to the server
func (e *ToolExecutor) Connect(ctx context.Context) error {
	return e.client.Connect(ctx)
}

// Close closes the connection
func (e *ToolExecutor) Close() error {
	return e.client.Close()
}

// Execute executes a tool and prints its output
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, arguments map[string]interface{}) error {
	text, err := e.client.CallToolSimple(ctx, toolName, arguments)
	if err != nil {
		return err
	}
	return e.formatOutput(text)
}

// ExecuteSimple executes a tool and returns the result as a string
func (e *ToolExecutor) ExecuteSimple(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	return e.client.CallToolSimple(ctx, toolName, args)
}

// Printf writes a progress or status line unless Quiet is set.
func (e *ToolExecutor) Printf(format string, args ...interface{}) {
	if e.options.Quiet {
		return
	}
	fmt.Fprintf(e.options.Out, format, args...)
}

// formatOutput prints text in the requested format. Tools answer either with JSON or with
// preformatted text. Preformatted text is printed as-is except in json format, where it is
// wrapped; JSON is rendered as YAML unless json was asked for.
func (e *ToolExecutor) formatOutput(text string) error {
	var data interface{}
	isJSON := json.Unmarshal([]byte(text), &data) == nil

	if e.options.Format == OutputFormatJSON {
		if !isJSON {
			data = map[string]string{"result": text}
		}
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		_, err = fmt.Fprintln(e.options.Out, string(out))
		return err
	}

	if !isJSON {
		return e.printText(text)
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	_, err = fmt.Fprint(e.options.Out, string(out))
	return err
}

func (e *ToolExecutor) printText(text string) error {
	if text == "" {
		if !e.options.Quiet {
			fmt.Fprintln(e.options.Out, "No results")
		}
		return nil
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := fmt.Fprint(e.options.Out, text)
	return err
}
