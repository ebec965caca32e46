package bridges

import (
	"testing"

	"onionctl/internal/ctlerr"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BridgeConfig
		wantErr bool
	}{
		{"custom with only a comment", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"# only a comment"}}, true},
		{"custom with nothing", BridgeConfig{ActiveTransport: TransportCustom}, true},
		{"custom with blank lines", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"  ", ""}}, true},
		{"custom with a bridge", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"bridge obfs4 1.2.3.4:443 ..."}}, false},
		{"none ignores lines", BridgeConfig{ActiveTransport: TransportNone, CustomLines: []string{"# only a comment"}}, false},
		{"obfs4 without lines", BridgeConfig{ActiveTransport: TransportObfs4}, false},
		{"unknown transport", BridgeConfig{ActiveTransport: "meek"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, ctlerr.IsValidation(err), "expected ValidationError, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnabledLines(t *testing.T) {
	cfg := BridgeConfig{CustomLines: []string{"  # off", "on 1", "", " on 2 "}}
	assert.Equal(t, []string{"on 1", "on 2"}, cfg.EnabledLines())
}

func TestNormalize(t *testing.T) {
	cfg := BridgeConfig{CustomLines: []string{"", " a ", "\t"}}.Normalize()
	assert.Equal(t, TransportNone, cfg.ActiveTransport)
	assert.Equal(t, []string{"a"}, cfg.CustomLines)

	assert.Nil(t, BridgeConfig{CustomLines: []string{}}.Normalize().CustomLines)
}

func TestParseTransportKind(t *testing.T) {
	k, err := ParseTransportKind("Snowflake")
	assert.NoError(t, err)
	assert.Equal(t, TransportSnowflake, k)

	k, err = ParseTransportKind("")
	assert.NoError(t, err)
	assert.Equal(t, TransportNone, k)

	_, err = ParseTransportKind("meek")
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	orig := BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"a"}}
	c := orig.Clone()
	c.CustomLines[0] = "b"
	assert.Equal(t, "a", orig.CustomLines[0])
}
