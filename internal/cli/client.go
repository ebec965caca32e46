// Package cli lets one-shot commands drive a running onionctl server through its MCP tools.
// The server owns the tunnel state, so status, connect and friends must go there.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"onionctl/internal/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrToolFailed wraps the text of a tool result flagged as an error.
var ErrToolFailed = errors.New("tool error")

// DetectEndpoint builds the SSE endpoint of the local server from configuration.
func DetectEndpoint(configPath string) string {
	var (
		cfg config.OnionctlConfig
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfigFromPath(configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		// Use default if config cannot be loaded
		cfg = config.GetDefaultConfig()
	}
	return EndpointFor(cfg.MCP)
}

// EndpointFor returns the SSE endpoint served for listener.
func EndpointFor(listener config.ListenerConfig) string {
	host := listener.Host
	if host == "" {
		host = "localhost"
	}
	port := listener.Port
	if port <= 0 {
		port = config.DefaultMCPPort
	}
	return fmt.Sprintf("http://%s:%d/sse", host, port)
}

// CLIClient provides a simplified MCP client for CLI commands
type CLIClient struct {
	endpoint string
	client   *client.Client
	timeout  time.Duration
}

// NewCLIClient creates a new CLI client with the endpoint taken from configuration
func NewCLIClient(configPath string) *CLIClient {
	return NewCLIClientWithEndpoint(DetectEndpoint(configPath))
}

// NewCLIClientWithEndpoint creates a new CLI client with a specific endpoint
func NewCLIClientWithEndpoint(endpoint string) *CLIClient {
	return &CLIClient{
		endpoint: endpoint,
		timeout:  30 * time.Second,
	}
}

// Endpoint is the server address the client talks to.
func (c *CLIClient) Endpoint() string {
	return c.endpoint
}

// Connect opens the SSE session and performs the MCP handshake.
func (c *CLIClient) Connect(ctx context.Context) error {
	sseClient, err := client.NewSSEMCPClient(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to create SSE client: %w", err)
	}
	if err := sseClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to reach onionctl at %s (is `onionctl serve` running?): %w", c.endpoint, err)
	}
	if err := c.initialize(ctx, sseClient); err != nil {
		_ = sseClient.Close()
		return fmt.Errorf("initialization failed: %w", err)
	}
	c.client = sseClient
	return nil
}

// CallTool executes a tool and returns the raw result
func (c *CLIClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call %s failed: %w", name, err)
	}
	return result, nil
}

// CallToolSimple executes a tool and returns its text. A result flagged as an error is
// returned as an error wrapping ErrToolFailed.
func (c *CLIClient) CallToolSimple(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	text := resultText(result)
	if result.IsError {
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

// Close closes the connection
func (c *CLIClient) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// initialize performs the MCP protocol handshake
func (c *CLIClient) initialize(ctx context.Context, mc *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "onionctl-cli",
		Version: "1.0.0",
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := mc.Initialize(timeoutCtx, req)
	return err
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
