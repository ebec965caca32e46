// Package mcptools exposes the control facade as MCP tools so assistants can drive the
// tunnel the same way the HTTP API and the CLI do.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"onionctl/internal/bridges"
	"onionctl/internal/circuits"
	"onionctl/internal/control"
	"onionctl/internal/logtail"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	defaultLogReadTimeout = 5 * time.Second
	latestPollInterval    = 20 * time.Millisecond
)

// Tools provides MCP tools backed by a control facade
type Tools struct {
	facade *control.Facade

	// baseCtx bounds work that outlives a tool call: tunnel starts, refreshes and tails.
	baseCtx        context.Context
	logReadTimeout time.Duration
}

// New creates the tool set. baseCtx may be nil.
func New(facade *control.Facade, baseCtx context.Context) *Tools {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Tools{facade: facade, baseCtx: baseCtx, logReadTimeout: defaultLogReadTimeout}
}

// ServerTools returns every tool paired with its handler
func (t *Tools) ServerTools() []server.ServerTool {
	kinds := t.facade.AvailableTransports()
	transportNames := make([]string, 0, len(kinds))
	for _, k := range kinds {
		transportNames = append(transportNames, string(k))
	}

	return []server.ServerTool{
		// Connection
		{
			Tool:    mcp.NewTool("onion_status", mcp.WithDescription("Show the tunnel connection state and the saved bridge selection")),
			Handler: t.HandleStatus,
		},
		{
			Tool:    mcp.NewTool("onion_connect", mcp.WithDescription("Start the tunnel with the saved bridge configuration")),
			Handler: t.HandleConnect,
		},
		{
			Tool:    mcp.NewTool("onion_disconnect", mcp.WithDescription("Stop the tunnel")),
			Handler: t.HandleDisconnect,
		},

		// Bridges
		{
			Tool:    mcp.NewTool("onion_transports", mcp.WithDescription("List the selectable pluggable transports")),
			Handler: t.HandleTransports,
		},
		{
			Tool:    mcp.NewTool("onion_bridges_get", mcp.WithDescription("Show the saved bridge configuration")),
			Handler: t.HandleBridgesGet,
		},
		{
			Tool: mcp.NewTool("onion_bridges_set",
				mcp.WithDescription("Select a transport and save the bridge configuration. Does not reconnect."),
				mcp.WithString("transport",
					mcp.Required(),
					mcp.Description("Transport to use"),
					mcp.Enum(transportNames...),
				),
				mcp.WithString("custom_bridges",
					mcp.Description("Newline-separated bridge lines, used with the custom transport. Lines starting with # are disabled."),
				),
			),
			Handler: t.HandleBridgesSet,
		},

		// Circuits
		{
			Tool:    mcp.NewTool("onion_circuits_list", mcp.WithDescription("List the open circuits of the connected tunnel")),
			Handler: t.HandleCircuitsList,
		},
		{
			Tool:    mcp.NewTool("onion_circuits_refresh", mcp.WithDescription("Close every open circuit so the tunnel builds new ones")),
			Handler: t.HandleCircuitsRefresh,
		},

		// Logs
		{
			Tool:    mcp.NewTool("onion_logs_list", mcp.WithDescription("List the tailable log sources")),
			Handler: t.HandleLogsList,
		},
		{
			Tool: mcp.NewTool("onion_log_read",
				mcp.WithDescription("Switch the log tail to a source and return its current content"),
				mcp.WithString("name",
					mcp.Required(),
					mcp.Description("Log source name"),
				),
			),
			Handler: t.HandleLogRead,
		},
	}
}

// NewServer builds an MCP server carrying every tool
func NewServer(facade *control.Facade, baseCtx context.Context, version string) *server.MCPServer {
	s := server.NewMCPServer("onionctl", version, server.WithToolCapabilities(true))
	s.AddTools(New(facade, baseCtx).ServerTools()...)
	return s
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// HandleStatus handles the onion_status tool call
func (t *Tools) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := t.facade.State()
	cfg := t.facade.BridgeConfig()
	return jsonResult(map[string]interface{}{
		"state":          st.String(),
		"phase":          st.Phase,
		"transport":      cfg.ActiveTransport,
		"transportName":  t.facade.DisplayName(cfg.ActiveTransport),
		"unsavedChanges": t.facade.HasUnsavedChanges(),
		"activeLog":      t.facade.ActiveLog(),
		"warnings":       t.facade.Warnings(),
	}), nil
}

// HandleConnect handles the onion_connect tool call
func (t *Tools) HandleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.facade.Connect(t.baseCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tunnel state: %s", st)), nil
}

// HandleDisconnect handles the onion_disconnect tool call
func (t *Tools) HandleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.facade.Disconnect(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to disconnect: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tunnel state: %s", st)), nil
}

// HandleTransports handles the onion_transports tool call
func (t *Tools) HandleTransports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kinds := t.facade.AvailableTransports()
	out := make([]map[string]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, map[string]string{"kind": string(k), "name": t.facade.DisplayName(k)})
	}
	return jsonResult(out), nil
}

// HandleBridgesGet handles the onion_bridges_get tool call
func (t *Tools) HandleBridgesGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := t.facade.BridgeConfig()
	return jsonResult(map[string]interface{}{
		"transport":     cfg.ActiveTransport,
		"customBridges": cfg.CustomLines,
	}), nil
}

// HandleBridgesSet handles the onion_bridges_set tool call
func (t *Tools) HandleBridgesSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transport, err := req.RequireString("transport")
	if err != nil {
		return mcp.NewToolResultError("transport is required"), nil
	}
	kind, err := bridges.ParseTransportKind(transport)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.facade.DiscardChanges()
	if err := t.facade.SelectTransport(kind); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if raw := req.GetString("custom_bridges", ""); raw != "" {
		t.facade.SetCustomBridges(strings.Split(raw, "\n"))
	}

	res, err := t.facade.SaveBridges()
	if err != nil {
		t.facade.DiscardChanges()
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save bridges: %v", err)), nil
	}
	msg := fmt.Sprintf("Saved %s", t.facade.DisplayName(res.Config.ActiveTransport))
	if res.ReconnectRequired {
		msg += ". Reconnect to apply the new bridges."
	}
	return mcp.NewToolResultText(msg), nil
}

// HandleCircuitsList handles the onion_circuits_list tool call
func (t *Tools) HandleCircuitsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.facade.Circuits(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list circuits: %v", err)), nil
	}
	return mcp.NewToolResultText(circuits.Format(list, time.Now())), nil
}

// HandleCircuitsRefresh handles the onion_circuits_refresh tool call. It waits for the
// refresh to finish.
func (t *Tools) HandleCircuitsRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ch, err := t.facade.RefreshCircuits(t.baseCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refresh circuits: %v", err)), nil
	}
	var last circuits.Progress
	for p := range ch {
		last = p
	}
	if last.Step != circuits.StepDone {
		return mcp.NewToolResultError(fmt.Sprintf("Circuit refresh %s", last)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed %d circuits", last.Count)), nil
}

// HandleLogsList handles the onion_logs_list tool call
func (t *Tools) HandleLogsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"sources": t.facade.LogSources(),
		"active":  t.facade.ActiveLog(),
	}), nil
}

// HandleLogRead handles the onion_log_read tool call. The source stays active afterwards.
func (t *Tools) HandleLogRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	timer := time.NewTimer(t.logReadTimeout)
	defer timer.Stop()

	// An active source is read from its last snapshot so the tail keeps running untouched.
	if t.facade.ActiveLog() == name {
		ticker := time.NewTicker(latestPollInterval)
		defer ticker.Stop()
		for t.facade.ActiveLog() == name {
			if snap, ok := t.facade.LatestLog(name); ok {
				return logResult(name, snap), nil
			}
			select {
			case <-ticker.C:
			case <-timer.C:
				return mcp.NewToolResultError(fmt.Sprintf("Timed out waiting for %s", name)), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	ch, err := t.facade.SetActiveLog(t.baseCtx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	select {
	case snap, ok := <-ch:
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Log source %s stopped before producing content", name)), nil
		}
		return logResult(name, snap), nil
	case <-timer.C:
		return mcp.NewToolResultError(fmt.Sprintf("Timed out waiting for %s", name)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func logResult(name string, snap logtail.Snapshot) *mcp.CallToolResult {
	if snap.Content == "" {
		return mcp.NewToolResultText(fmt.Sprintf("(%s is empty)", name))
	}
	return mcp.NewToolResultText(snap.Content)
}
