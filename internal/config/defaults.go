package config

import (
	"time"
)

const (
	DefaultControlAddress   = "127.0.0.1:9051"
	DefaultControlTimeout   = 10 * time.Second
	DefaultBootstrapTimeout = 3 * time.Minute
	DefaultPollInterval     = 2 * time.Second
	DefaultAPIPort          = 8095
	DefaultMCPPort          = 8096
)

// GetDefaultConfig returns the built-in configuration. Paths left empty are resolved
// against the user's directories by the application bootstrap.
func GetDefaultConfig() OnionctlConfig {
	return OnionctlConfig{
		Control: ControlConfig{
			Address:          DefaultControlAddress,
			Timeout:          DefaultControlTimeout,
			BootstrapTimeout: DefaultBootstrapTimeout,
		},
		Transports: DefaultTransports(),
		Logs:       DefaultLogSources(),
		Tail: TailConfig{
			PollInterval: DefaultPollInterval,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		API: ListenerConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    DefaultAPIPort,
		},
		MCP: ListenerConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    DefaultMCPPort,
		},
	}
}

// DefaultTransports lists the transports every build ships with.
func DefaultTransports() []TransportDefinition {
	return []TransportDefinition{
		{
			Kind:        "none",
			DisplayName: "No Bridges",
			SortKey:     0,
		},
		{
			Kind:        "obfs4",
			DisplayName: "Built-in obfs4",
			SortKey:     1,
			PluginLine:  "obfs4 exec /usr/bin/obfs4proxy",
			BuiltinBridges: []string{
				"obfs4 192.95.36.142:443 CDF2E852BF539B82BD10E27E9115A31734E378C2 cert=qUVQ0srL1JI/vO6V6m/24anYXiJD3QP2HgzUKQtQ7GRqqUvs7P+tG43RtAqdhLOALP7DJQ iat-mode=1",
				"obfs4 37.218.245.14:38224 D9A82D2F9C2F65A18407B1D2B764F130847F8B5D cert=bjRaMrr1BRiAW8IE9U5z27fQaYgOhX1UCmOpg2pFpoMvo6ZgQMzLsaTzzQNTlm7hNcb+Sg iat-mode=0",
			},
		},
		{
			Kind:        "snowflake",
			DisplayName: "Built-in snowflake",
			SortKey:     2,
			PluginLine:  "snowflake exec /usr/bin/snowflake-client",
			BuiltinBridges: []string{
				"snowflake 192.0.2.3:80 2B280B23E1107BB62ABFC40DDCC8824814F80A72 fingerprint=2B280B23E1107BB62ABFC40DDCC8824814F80A72 url=https://snowflake-broker.torproject.net/ ice=stun:stun.l.google.com:19302",
			},
		},
		{
			Kind:        "custom",
			DisplayName: "Custom Bridges",
			SortKey:     3,
			PluginLine:  "obfs4 exec /usr/bin/obfs4proxy",
		},
	}
}

// DefaultLogSources lists the log sources every build ships with. The debug ones mirror the
// daemon's auxiliary logs and only show up with extendedLogging.
func DefaultLogSources() []LogSourceDefinition {
	return []LogSourceDefinition{
		{Name: "tor", Kind: LogSourceFile, Path: "/var/log/tor/notices.log", MaxBytes: 256 * 1024},
		{Name: "circuits", Kind: LogSourceCircuits},
		{Name: "vpn", Kind: LogSourceFile, Path: "/var/log/onionctl/vpn.log", Debug: true},
		{Name: "lowlevel", Kind: LogSourceFile, Path: "/var/log/onionctl/leaf.log", Debug: true},
		{Name: "leaf-config", Kind: LogSourceFile, Path: "/etc/onionctl/leaf.conf", Debug: true},
		{Name: "webserver", Kind: LogSourceFile, Path: "/var/log/onionctl/webserver.log", Debug: true},
	}
}
