package transport

import (
	"testing"

	"onionctl/internal/bridges"
	"onionctl/internal/config"
	"onionctl/internal/ctlerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Order(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, []bridges.TransportKind{
		bridges.TransportNone,
		bridges.TransportObfs4,
		bridges.TransportSnowflake,
		bridges.TransportCustom,
	}, c.Available())
	assert.Equal(t, "Custom Bridges", c.DisplayName(bridges.TransportCustom))
}

func TestCatalog_SortKeyNotDeclarationOrder(t *testing.T) {
	c := NewCatalog([]config.TransportDefinition{
		{Kind: "custom", SortKey: 0},
		{Kind: "snowflake", SortKey: 5},
		{Kind: "obfs4", SortKey: 5},
		{Kind: "none", SortKey: 9},
		{Kind: "meek", SortKey: 1}, // unknown, skipped
	})
	assert.Equal(t, []bridges.TransportKind{
		bridges.TransportCustom,
		bridges.TransportObfs4, // tie broken by kind name
		bridges.TransportSnowflake,
		bridges.TransportNone,
	}, c.Available())
	assert.False(t, c.Has("meek"))
}

func TestCatalog_DisplayNameFallback(t *testing.T) {
	c := NewCatalog([]config.TransportDefinition{{Kind: "obfs4"}})
	assert.Equal(t, "obfs4", c.DisplayName(bridges.TransportObfs4))
	assert.Equal(t, "snowflake", c.DisplayName(bridges.TransportSnowflake))
}

func TestCatalog_AvailableIsACopy(t *testing.T) {
	c := DefaultCatalog()
	got := c.Available()
	got[0] = "mutated"
	assert.Equal(t, bridges.TransportNone, c.Available()[0])
}

func TestCatalog_BridgeLines(t *testing.T) {
	c := NewCatalog([]config.TransportDefinition{
		{Kind: "none"},
		{Kind: "obfs4", BuiltinBridges: []string{"obfs4 192.0.2.10:443 FP cert=a iat-mode=0"}, PluginLine: "obfs4 exec /bin/obfs4proxy"},
		{Kind: "custom"},
	})

	assert.Nil(t, c.BridgeLines(bridges.BridgeConfig{ActiveTransport: bridges.TransportNone, CustomLines: []string{"x"}}))
	assert.Equal(t, []string{"obfs4 192.0.2.10:443 FP cert=a iat-mode=0"}, c.BridgeLines(bridges.BridgeConfig{ActiveTransport: bridges.TransportObfs4}))
	assert.Equal(t, []string{"b 1"}, c.BridgeLines(bridges.BridgeConfig{
		ActiveTransport: bridges.TransportCustom,
		CustomLines:     []string{"# a", "b 1"},
	}))
	assert.Nil(t, c.BridgeLines(bridges.BridgeConfig{ActiveTransport: bridges.TransportSnowflake}))

	def, ok := c.Definition(bridges.TransportObfs4)
	require.True(t, ok)
	assert.Equal(t, "obfs4 exec /bin/obfs4proxy", def.PluginLine)
	assert.Equal(t, "obfs4 exec /bin/obfs4proxy", c.PluginLine(bridges.TransportObfs4))
}

func TestCatalog_CustomLinesDropBridgeKeyword(t *testing.T) {
	c := DefaultCatalog()
	got := c.BridgeLines(bridges.BridgeConfig{
		ActiveTransport: bridges.TransportCustom,
		CustomLines: []string{
			"bridge obfs4 1.2.3.4:443 FP cert=x iat-mode=0",
			"  Bridge   192.0.2.9:9001  ",
			"bridgeless 192.0.2.8:1",
			"BRIDGE",
		},
	})
	assert.Equal(t, []string{
		"obfs4 1.2.3.4:443 FP cert=x iat-mode=0",
		"192.0.2.9:9001",
		"bridgeless 192.0.2.8:1",
	}, got)
}

func TestCatalog_Check(t *testing.T) {
	defaults := DefaultCatalog()
	for _, kind := range defaults.Available() {
		if kind == bridges.TransportCustom {
			continue
		}
		assert.NoError(t, defaults.Check(bridges.BridgeConfig{ActiveTransport: kind}), kind)
	}
	assert.NotEmpty(t, defaults.BridgeLines(bridges.BridgeConfig{ActiveTransport: bridges.TransportObfs4}))
	assert.NoError(t, defaults.Check(bridges.BridgeConfig{
		ActiveTransport: bridges.TransportCustom,
		CustomLines:     []string{"bridge obfs4 1.2.3.4:443 FP cert=x"},
	}))

	tests := []struct {
		name    string
		catalog *Catalog
		cfg     bridges.BridgeConfig
	}{
		{"built-in without lines", NewCatalog([]config.TransportDefinition{{Kind: "obfs4"}}), bridges.BridgeConfig{ActiveTransport: bridges.TransportObfs4}},
		{"not offered", NewCatalog([]config.TransportDefinition{{Kind: "none"}}), bridges.BridgeConfig{ActiveTransport: bridges.TransportSnowflake}},
		{"keyword only", defaults, bridges.BridgeConfig{ActiveTransport: bridges.TransportCustom, CustomLines: []string{"bridge"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.Check(tt.cfg)
			require.Error(t, err)
			assert.True(t, ctlerr.IsValidation(err))
		})
	}
}
