package bridges

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"onionctl/internal/ctlerr"
	"onionctl/pkg/logging"

	"gopkg.in/yaml.v3"
)

// persistedConfig is the on-disk shape of a BridgeConfig.
type persistedConfig struct {
	Transport     string   `yaml:"transport"`
	CustomBridges []string `yaml:"customBridges,omitempty"`
}

// writeTemp writes the blob into the temporary file.
var writeTemp = func(f *os.File, data []byte) error {
	_, err := f.Write(data)
	return err
}

// Store persists the BridgeConfig as a single YAML blob.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a store whose blob lives at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the persisted blob.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted config. A missing file yields DefaultConfig with no error.
func (s *Store) Load() (BridgeConfig, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return BridgeConfig{}, &ctlerr.StorageError{Op: "load", Path: s.path, Err: err}
	}

	var p persistedConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return BridgeConfig{}, &ctlerr.StorageError{Op: "load", Path: s.path, Err: err}
	}
	kind, err := ParseTransportKind(p.Transport)
	if err != nil {
		return BridgeConfig{}, &ctlerr.StorageError{Op: "load", Path: s.path, Err: err}
	}

	return BridgeConfig{ActiveTransport: kind, CustomLines: p.CustomBridges}, nil
}

// Save atomically replaces the persisted config: the blob is written to a temporary file in
// the same directory, synced, and renamed over the target. A failure at any step leaves the
// previous blob untouched. Lines are stored exactly as given.
func (s *Store) Save(cfg BridgeConfig) error {
	data, err := yaml.Marshal(&persistedConfig{
		Transport:     string(cfg.ActiveTransport),
		CustomBridges: cfg.CustomLines,
	})
	if err != nil {
		return &ctlerr.StorageError{Op: "save", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(data); err != nil {
		return &ctlerr.StorageError{Op: "save", Path: s.path, Err: err}
	}
	logging.Debug("Bridges", "Saved bridge config (transport=%s, %d custom lines) to %s", cfg.ActiveTransport, len(cfg.CustomLines), s.path)
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeTemp(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	committed = true
	return nil
}
