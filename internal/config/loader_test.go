package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mockConfigPaths(t *testing.T, user, project string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	})
	getUserConfigPath = func() (string, error) { return user, nil }
	getProjectConfigPath = func() (string, error) { return project, nil }
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t,
		filepath.Join(tempDir, "non-existent-user-config.yaml"),
		filepath.Join(tempDir, "non-existent-project-config.yaml"))

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestLoadConfig_UserThenProjectOverride(t *testing.T) {
	tempDir := t.TempDir()
	userPath := filepath.Join(tempDir, "user", "config.yaml")
	projectPath := filepath.Join(tempDir, "project", "config.yaml")

	writeConfigFile(t, userPath, `
control:
  address: "127.0.0.1:9151"
  timeout: 3s
logs:
  - name: tor
    kind: file
    path: /tmp/user-tor.log
`)
	writeConfigFile(t, projectPath, `
control:
  cookiePath: /run/tor/control.authcookie
extendedLogging: true
logs:
  - name: controller
    kind: file
    path: /tmp/onionctl.log
transports:
  - kind: obfs4
    displayName: "obfs4 (project)"
    sortKey: 7
    builtinBridges:
      - "obfs4 192.0.2.10:443 FP cert=x iat-mode=0"
`)
	mockConfigPaths(t, userPath, projectPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9151", cfg.Control.Address)
	assert.Equal(t, 3*time.Second, cfg.Control.Timeout)
	assert.Equal(t, "/run/tor/control.authcookie", cfg.Control.CookiePath)
	assert.Equal(t, DefaultBootstrapTimeout, cfg.Control.BootstrapTimeout)
	assert.True(t, cfg.ExtendedLogging)

	require.NotEmpty(t, cfg.Logs)
	assert.Equal(t, "tor", cfg.Logs[0].Name)
	assert.Equal(t, "/tmp/user-tor.log", cfg.Logs[0].Path)
	assert.Equal(t, "controller", cfg.Logs[len(cfg.Logs)-1].Name)

	var obfs4 TransportDefinition
	for _, d := range cfg.Transports {
		if d.Kind == "obfs4" {
			obfs4 = d
		}
	}
	assert.Equal(t, "obfs4 (project)", obfs4.DisplayName)
	assert.Equal(t, 7, obfs4.SortKey)
	assert.Len(t, cfg.Transports, len(DefaultTransports()))
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	userPath := filepath.Join(tempDir, "config.yaml")
	writeConfigFile(t, userPath, "control: [oops")
	mockConfigPaths(t, userPath, filepath.Join(tempDir, "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onionctl.yaml")
	writeConfigFile(t, path, `
api:
  port: -1
mcp:
  enabled: true
  port: 9999
tail:
  pollInterval: 500ms
`)

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, 9999, cfg.MCP.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Tail.PollInterval)

	_, err = LoadConfigFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVisibleLogSources(t *testing.T) {
	cfg := GetDefaultConfig()
	var names []string
	for _, s := range cfg.VisibleLogSources() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"tor", "circuits"}, names)

	cfg.ExtendedLogging = true
	assert.Len(t, cfg.VisibleLogSources(), len(cfg.Logs))
}

func TestResolveBridgeConfigPath(t *testing.T) {
	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()
	osUserHomeDir = func() (string, error) { return "/home/alice", nil }

	path, err := ResolveBridgeConfigPath(GetDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/.config/onionctl/bridges.yaml", path)

	cfg := GetDefaultConfig()
	cfg.Storage.BridgeConfigPath = "/srv/bridges.yaml"
	path, err = ResolveBridgeConfigPath(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/srv/bridges.yaml", path)
}
