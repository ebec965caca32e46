package mcptools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"onionctl/internal/config"
	"onionctl/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

// ServeSSE serves s over SSE on the listener address until ctx is done.
func ServeSSE(ctx context.Context, s *server.MCPServer, cfg config.ListenerConfig) error {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Port)
	sseServer := server.NewSSEServer(
		s,
		server.WithBaseURL("http://"+addr),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	errCh := make(chan error, 1)
	go func() {
		logging.Info("MCP", "Starting MCP server on %s", addr)
		errCh <- sseServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("MCP", "Shutdown: %v", err)
	}
	return nil
}

// ServeStdio serves s on stdin/stdout until the client hangs up.
func ServeStdio(s *server.MCPServer) error {
	logging.Info("MCP", "Serving MCP over stdio")
	return server.ServeStdio(s)
}
