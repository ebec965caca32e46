package bridges

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"onionctl/internal/ctlerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "bridges.yaml"))
}

func TestStore_LoadMissingReturnsDefault(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestStore_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  BridgeConfig
	}{
		{"none", BridgeConfig{ActiveTransport: TransportNone}},
		{"obfs4 with advisory lines", BridgeConfig{ActiveTransport: TransportObfs4, CustomLines: []string{"# old", "obfs4 10.0.0.1:443 FP cert=abc iat-mode=0"}}},
		{"snowflake", BridgeConfig{ActiveTransport: TransportSnowflake}},
		{"custom", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{
			"obfs4 192.0.2.1:443 0123456789ABCDEF cert=xyz iat-mode=0",
			"# disabled 192.0.2.2:443",
			"webtunnel [2001:db8::1]:443 FP url=https://example.com/path ver=0.0.1",
		}}},
		{"unicode", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"bridge ünïcödé 1.2.3.4:443"}}},
		{"padded lines", BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{
			"obfs4 1.2.3.4:443 FP cert=x ",
			"   # note",
			"",
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.Save(tt.cfg))

			loaded, err := s.Load()
			require.NoError(t, err)
			assert.True(t, tt.cfg.Equal(loaded), "expected %+v, got %+v", tt.cfg, loaded)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(BridgeConfig{ActiveTransport: TransportSnowflake}))
	require.NoError(t, s.Save(BridgeConfig{ActiveTransport: TransportObfs4}))

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, TransportObfs4, cfg.ActiveTransport)
}

func TestStore_LoadCorrupt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("transport: [unterminated"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, ctlerr.IsStorage(err))
}

func TestStore_LoadUnknownTransport(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("transport: meek\n"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, ctlerr.IsStorage(err))
}

func TestStore_CrashMidSaveKeepsPreviousValue(t *testing.T) {
	s := newTestStore(t)
	previous := BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"obfs4 192.0.2.1:443 FP cert=a iat-mode=0"}}
	require.NoError(t, s.Save(previous))

	original := writeTemp
	defer func() { writeTemp = original }()
	writeTemp = func(f *os.File, data []byte) error {
		// Half the blob reaches disk, then the process "dies".
		if _, err := f.Write(data[:len(data)/2]); err != nil {
			return err
		}
		return errors.New("simulated crash")
	}

	err := s.Save(BridgeConfig{ActiveTransport: TransportSnowflake, CustomLines: []string{"a", "b", "c"}})
	require.Error(t, err)
	assert.True(t, ctlerr.IsStorage(err))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.True(t, previous.Equal(loaded))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestStore_SaveToUnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewStore(filepath.Join(blocker, "bridges.yaml"))
	err := s.Save(DefaultConfig())
	require.Error(t, err)
	assert.True(t, ctlerr.IsStorage(err))
}

func TestStore_ConcurrentReadersNeverSeeTornWrites(t *testing.T) {
	s := newTestStore(t)
	a := BridgeConfig{ActiveTransport: TransportObfs4}
	b := BridgeConfig{ActiveTransport: TransportCustom, CustomLines: []string{"obfs4 192.0.2.1:443 FP cert=a iat-mode=0"}}
	require.NoError(t, s.Save(a))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if (i+j)%2 == 0 {
					assert.NoError(t, s.Save(a))
				} else {
					assert.NoError(t, s.Save(b))
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cfg, err := s.Load()
				if assert.NoError(t, err) {
					assert.True(t, cfg.Equal(a) || cfg.Equal(b))
				}
			}
		}()
	}
	wg.Wait()
}
