package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/onionctl"
	projectConfigDir = ".onionctl"
	configFileName   = "config.yaml"
	bridgesFileName  = "bridges.yaml"
)

// LoadConfig loads the onionctl configuration by layering default, user, and project settings.
func LoadConfig() (OnionctlConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return OnionctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return OnionctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, nil
}

// LoadConfigFromPath layers a single explicit file over the defaults.
func LoadConfigFromPath(path string) (OnionctlConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return OnionctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	return mergeConfigs(GetDefaultConfig(), fileConfig), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads an OnionctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (OnionctlConfig, error) {
	var config OnionctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return OnionctlConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return OnionctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay OnionctlConfig) OnionctlConfig {
	merged := base

	// Control (overlay overrides base field by field)
	if overlay.Control.Address != "" {
		merged.Control.Address = overlay.Control.Address
	}
	if overlay.Control.CookiePath != "" {
		merged.Control.CookiePath = overlay.Control.CookiePath
	}
	if overlay.Control.Password != "" {
		merged.Control.Password = overlay.Control.Password
	}
	if overlay.Control.Timeout != 0 {
		merged.Control.Timeout = overlay.Control.Timeout
	}
	if overlay.Control.BootstrapTimeout != 0 {
		merged.Control.BootstrapTimeout = overlay.Control.BootstrapTimeout
	}

	if overlay.Storage.BridgeConfigPath != "" {
		merged.Storage.BridgeConfigPath = overlay.Storage.BridgeConfigPath
	}

	// Transports and log sources merge by key, overlay wins, base order preserved
	merged.Transports = mergeByKey(base.Transports, overlay.Transports, func(d TransportDefinition) string { return d.Kind })
	merged.Logs = mergeByKey(base.Logs, overlay.Logs, func(d LogSourceDefinition) string { return d.Name })

	if overlay.ExtendedLogging {
		merged.ExtendedLogging = true
	}
	if overlay.Tail.PollInterval != 0 {
		merged.Tail.PollInterval = overlay.Tail.PollInterval
	}
	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.File != "" {
		merged.Logging.File = overlay.Logging.File
	}

	merged.API = mergeListener(base.API, overlay.API)
	merged.MCP = mergeListener(base.MCP, overlay.MCP)

	return merged
}

func mergeListener(base, overlay ListenerConfig) ListenerConfig {
	merged := base
	if overlay.Host != "" {
		merged.Host = overlay.Host
	}
	if overlay.Port != 0 {
		merged.Port = overlay.Port
	}
	// Enabled can only be switched on by an overlay; a listener that is on by default is
	// switched off with port -1.
	if overlay.Enabled {
		merged.Enabled = true
	}
	if overlay.Port < 0 {
		merged.Enabled = false
		merged.Port = base.Port
	}
	return merged
}

func mergeByKey[T any](base, overlay []T, key func(T) string) []T {
	if len(overlay) == 0 {
		return base
	}
	index := make(map[string]int, len(base))
	out := make([]T, 0, len(base)+len(overlay))
	for _, item := range base {
		index[key(item)] = len(out)
		out = append(out, item)
	}
	for _, item := range overlay {
		if i, ok := index[key(item)]; ok {
			out[i] = item // Replace if key exists, otherwise adds
			continue
		}
		index[key(item)] = len(out)
		out = append(out, item)
	}
	return out
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// ResolveBridgeConfigPath returns the configured bridge blob location, defaulting to the
// user config directory.
func ResolveBridgeConfigPath(cfg OnionctlConfig) (string, error) {
	if cfg.Storage.BridgeConfigPath != "" {
		return cfg.Storage.BridgeConfigPath, nil
	}
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, bridgesFileName), nil
}
