package app

import (
	"onionctl/internal/config"
	"onionctl/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// ConfigPath is an explicit config file; empty means the layered user/project lookup.
	ConfigPath string

	// Debug settings
	Debug bool

	// Onionctl configuration, filled by NewApplication
	OnionctlConfig *config.OnionctlConfig
}

// NewConfig creates a new application configuration
func NewConfig(configPath string, debug bool) *Config {
	return &Config{
		ConfigPath: configPath,
		Debug:      debug,
	}
}

// logLevel picks the controller log level: --debug wins over the configured level.
func (c *Config) logLevel() logging.LogLevel {
	if c.Debug {
		return logging.LevelDebug
	}
	if c.OnionctlConfig != nil && c.OnionctlConfig.Logging.Level != "" {
		return logging.ParseLevel(c.OnionctlConfig.Logging.Level)
	}
	return logging.LevelInfo
}
