package app

import (
	"context"
	"fmt"

	"onionctl/internal/bridges"
	"onionctl/internal/config"
	"onionctl/internal/control"
	"onionctl/internal/reporting"
	"onionctl/internal/transport"
	"onionctl/internal/tunnel"
	"onionctl/internal/tunnel/torcontrol"
)

// Services holds all the initialized components
type Services struct {
	Store   *bridges.Store
	Catalog *transport.Catalog
	Tunnel  tunnel.Control
	Bus     reporting.EventBus
	Facade  *control.Facade

	// closeTunnel releases the control connection, if the tunnel holds one.
	closeTunnel func() error
}

// InitializeServices wires the bridge store, transport catalog, tunnel control client and
// facade from the loaded configuration. tun overrides the control-port client when non-nil.
func InitializeServices(cfg *Config, tun tunnel.Control) (*Services, error) {
	oc := cfg.OnionctlConfig

	storePath, err := config.ResolveBridgeConfigPath(*oc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bridge config path: %w", err)
	}
	store := bridges.NewStore(storePath)
	catalog := transport.NewCatalog(oc.Transports)

	svc := &Services{
		Store:       store,
		Catalog:     catalog,
		Bus:         reporting.NewEventBus(),
		closeTunnel: func() error { return nil },
	}
	if tun == nil {
		client := torcontrol.New(torcontrol.OptionsFromConfig(oc.Control), catalog)
		svc.closeTunnel = client.Close
		tun = client
	}
	svc.Tunnel = tun

	svc.Facade = control.New(control.Deps{
		Store:        store,
		Catalog:      catalog,
		Tunnel:       tun,
		Bus:          svc.Bus,
		LogSources:   oc.VisibleLogSources(),
		PollInterval: oc.Tail.PollInterval,
	})
	if err := svc.Facade.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize control facade: %w", err)
	}
	return svc, nil
}

// Close stops the facade, then releases the bus and the control connection.
func (s *Services) Close(ctx context.Context) error {
	err := s.Facade.Close(ctx)
	s.Bus.Close()
	if cerr := s.closeTunnel(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
