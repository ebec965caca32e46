package config

import (
	"time"
)

// OnionctlConfig is the top-level configuration structure for onionctl.
type OnionctlConfig struct {
	Control         ControlConfig         `yaml:"control"`
	Storage         StorageConfig         `yaml:"storage"`
	Transports      []TransportDefinition `yaml:"transports,omitempty"`
	Logs            []LogSourceDefinition `yaml:"logs,omitempty"`
	ExtendedLogging bool                  `yaml:"extendedLogging,omitempty"` // Include debug-only log sources
	Tail            TailConfig            `yaml:"tail"`
	Logging         LoggingConfig         `yaml:"logging"`
	API             ListenerConfig        `yaml:"api"`
	MCP             ListenerConfig        `yaml:"mcp"`
}

// ControlConfig describes how to reach the tunnel daemon's control port.
type ControlConfig struct {
	Address          string        `yaml:"address,omitempty"`          // host:port of the control port, e.g. "127.0.0.1:9051"
	CookiePath       string        `yaml:"cookiePath,omitempty"`       // Optional: control auth cookie file
	Password         string        `yaml:"password,omitempty"`         // Optional: HashedControlPassword secret
	Timeout          time.Duration `yaml:"timeout,omitempty"`          // Per-command timeout
	BootstrapTimeout time.Duration `yaml:"bootstrapTimeout,omitempty"` // How long start waits for 100% bootstrap
}

// StorageConfig locates persisted state.
type StorageConfig struct {
	BridgeConfigPath string `yaml:"bridgeConfigPath,omitempty"` // Defaults to <user config dir>/bridges.yaml
}

// TransportDefinition describes a selectable pluggable transport.
type TransportDefinition struct {
	Kind           string   `yaml:"kind"`                     // "none", "obfs4", "snowflake", "custom"
	DisplayName    string   `yaml:"displayName,omitempty"`    // Label shown by the UI
	SortKey        int      `yaml:"sortKey"`                  // Display ordering, ascending
	PluginLine     string   `yaml:"pluginLine,omitempty"`     // ClientTransportPlugin value, e.g. "obfs4 exec /usr/bin/obfs4proxy"
	BuiltinBridges []string `yaml:"builtinBridges,omitempty"` // Bridge lines used when this transport is selected
}

// LogSourceKind selects how a log source is tailed.
type LogSourceKind string

const (
	LogSourceFile     LogSourceKind = "file"
	LogSourceCircuits LogSourceKind = "circuits"
)

// LogSourceDefinition describes one tailable diagnostic source.
type LogSourceDefinition struct {
	Name     string        `yaml:"name"`
	Kind     LogSourceKind `yaml:"kind"`
	Path     string        `yaml:"path,omitempty"`     // For Kind = "file"
	MaxBytes int64         `yaml:"maxBytes,omitempty"` // Only the last MaxBytes of the file are shown (0 = all)
	Debug    bool          `yaml:"debug,omitempty"`    // Only listed when extendedLogging is on
}

// TailConfig tunes the log tail multiplexer.
type TailConfig struct {
	PollInterval time.Duration `yaml:"pollInterval,omitempty"` // Used when change notification is unavailable
}

// LoggingConfig controls onionctl's own log.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
	File  string `yaml:"file,omitempty"`  // Optional: write the controller log here instead of stderr
}

// ListenerConfig configures an optional network surface (HTTP API or MCP).
type ListenerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// VisibleLogSources returns the configured sources, dropping debug-only ones unless extended
// logging is on.
func (c OnionctlConfig) VisibleLogSources() []LogSourceDefinition {
	var out []LogSourceDefinition
	for _, src := range c.Logs {
		if src.Debug && !c.ExtendedLogging {
			continue
		}
		out = append(out, src)
	}
	return out
}
