// Package control composes the bridge store, transport catalog, connection machine,
// circuit orchestrator and log multiplexer into the operations a UI calls.
//
// The facade holds an editable draft of the bridge configuration next to the persisted
// one. Edits only touch the draft; SaveBridges validates and persists it. Observers learn
// about changes through bus subscriptions, never through references back into the UI.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"onionctl/internal/bridges"
	"onionctl/internal/circuits"
	"onionctl/internal/config"
	"onionctl/internal/connection"
	"onionctl/internal/ctlerr"
	"onionctl/internal/logtail"
	"onionctl/internal/reporting"
	"onionctl/internal/transport"
	"onionctl/internal/tunnel"
	"onionctl/pkg/logging"
)

// BridgeStore persists the bridge configuration.
type BridgeStore interface {
	Load() (bridges.BridgeConfig, error)
	Save(bridges.BridgeConfig) error
}

// Deps are the collaborators of a Facade.
type Deps struct {
	Store   BridgeStore
	Catalog *transport.Catalog
	Tunnel  tunnel.Control

	// Bus is created (and closed by Close) when nil.
	Bus reporting.EventBus

	// LogSources are tailable sources; sources of kind "circuits" are served by the tunnel.
	LogSources   []config.LogSourceDefinition
	PollInterval time.Duration

	// Now is used for circuit ages; defaults to time.Now.
	Now func() time.Time
}

// SaveResult reports the outcome of a successful save.
type SaveResult struct {
	Config            bridges.BridgeConfig `json:"config"`
	ReconnectRequired bool                 `json:"reconnectRequired"`
}

// Facade is the single entry point for UI collaborators.
type Facade struct {
	store   BridgeStore
	catalog *transport.Catalog
	tunnel  tunnel.Control
	bus     reporting.EventBus
	ownsBus bool
	now     func() time.Time

	machine *connection.Machine
	orch    *circuits.Orchestrator
	mux     *logtail.Multiplexer

	circuitSources []string

	mu        sync.Mutex
	persisted bridges.BridgeConfig
	draft     bridges.BridgeConfig
	warnings  []string
}

// New wires a Facade. Call Init before use.
func New(deps Deps) *Facade {
	f := &Facade{
		store:     deps.Store,
		catalog:   deps.Catalog,
		tunnel:    deps.Tunnel,
		bus:       deps.Bus,
		now:       deps.Now,
		persisted: bridges.DefaultConfig(),
		draft:     bridges.DefaultConfig(),
	}
	if f.catalog == nil {
		f.catalog = transport.DefaultCatalog()
	}
	if f.bus == nil {
		f.bus = reporting.NewEventBus()
		f.ownsBus = true
	}
	if f.now == nil {
		f.now = time.Now
	}

	f.machine = connection.NewMachine(f.tunnel, f.store, f.bus)
	f.orch = circuits.NewOrchestrator(f.tunnel, f.bus)

	for _, def := range deps.LogSources {
		if def.Kind == config.LogSourceCircuits {
			f.circuitSources = append(f.circuitSources, def.Name)
		}
	}
	f.mux = logtail.NewMultiplexer(logtail.BuildSources(deps.LogSources, deps.PollInterval, f.circuitText)...)
	return f
}

// Init loads the persisted bridge configuration. A StorageError is not fatal: the default
// configuration is used and the problem is kept in Warnings. Nothing is written back.
func (f *Facade) Init() error {
	cfg, err := f.store.Load()
	if err != nil {
		if !ctlerr.IsStorage(err) {
			return err
		}
		logging.Warn("Control", "Using default bridge configuration: %v", err)
		cfg = bridges.DefaultConfig()
		f.mu.Lock()
		f.warnings = append(f.warnings, err.Error())
		f.mu.Unlock()
	}

	f.mu.Lock()
	f.persisted = cfg
	f.draft = cfg.Clone()
	f.mu.Unlock()

	f.bus.Publish(reporting.NewSystemEvent(reporting.EventTypeSystemStartup, "Control",
		fmt.Sprintf("bridges=%s", cfg.ActiveTransport)))
	return nil
}

// Warnings returns non-fatal problems found during Init.
func (f *Facade) Warnings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.warnings...)
}

// AvailableTransports lists selectable transports in display order.
func (f *Facade) AvailableTransports() []bridges.TransportKind {
	return f.catalog.Available()
}

// DisplayName returns the label of a transport.
func (f *Facade) DisplayName(kind bridges.TransportKind) string {
	return f.catalog.DisplayName(kind)
}

// Catalog exposes the transport catalog.
func (f *Facade) Catalog() *transport.Catalog {
	return f.catalog
}

// BridgeConfig returns the persisted configuration.
func (f *Facade) BridgeConfig() bridges.BridgeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persisted.Clone()
}

// DraftConfig returns the configuration being edited.
func (f *Facade) DraftConfig() bridges.BridgeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

// HasUnsavedChanges reports whether the draft differs from the persisted configuration.
func (f *Facade) HasUnsavedChanges() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.draft.Normalize().Equal(f.persisted)
}

// SelectTransport changes the draft's active transport.
func (f *Facade) SelectTransport(kind bridges.TransportKind) error {
	if !f.catalog.Has(kind) {
		return &ctlerr.ValidationError{Field: "transport", Reason: fmt.Sprintf("unknown transport %q", kind)}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.ActiveTransport = kind
	return nil
}

// SetCustomBridges replaces the draft's custom bridge lines.
func (f *Facade) SetCustomBridges(lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.CustomLines = bridges.BridgeConfig{CustomLines: lines}.Normalize().CustomLines
}

// DiscardChanges resets the draft to the persisted configuration.
func (f *Facade) DiscardChanges() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = f.persisted.Clone()
}

// SaveBridges validates and persists the draft. Validation failures are reported before
// anything is written. A save never reconnects: ReconnectRequired tells the caller that the
// running tunnel still uses the previous configuration.
func (f *Facade) SaveBridges() (SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg := f.draft.Normalize()
	if err := cfg.Validate(); err != nil {
		return SaveResult{}, err
	}
	if err := f.catalog.Check(cfg); err != nil {
		return SaveResult{}, err
	}
	if err := f.store.Save(cfg); err != nil {
		return SaveResult{}, err
	}

	f.persisted = cfg
	f.draft = cfg.Clone()

	phase := f.machine.State().Phase
	res := SaveResult{
		Config:            cfg.Clone(),
		ReconnectRequired: phase == connection.PhaseConnected || phase == connection.PhaseStarting,
	}
	logging.Info("Control", "Saved bridge configuration (%s, %d custom lines)", cfg.ActiveTransport, len(cfg.CustomLines))

	f.bus.Publish(&BridgesSavedEvent{
		BaseEvent:         reporting.NewBaseEvent(reporting.EventTypeBridgesSaved, "Control", reporting.SeverityInfo),
		Config:            cfg.Clone(),
		ReconnectRequired: res.ReconnectRequired,
	})
	return res, nil
}

// State returns the connection state.
func (f *Facade) State() connection.State {
	return f.machine.State()
}

// Connect starts the tunnel with the persisted bridge configuration.
func (f *Facade) Connect(ctx context.Context) (connection.State, error) {
	return f.machine.Connect(ctx)
}

// Disconnect aborts a running circuit refresh, then stops the tunnel.
func (f *Facade) Disconnect(ctx context.Context) (connection.State, error) {
	f.orch.Abort()
	return f.machine.Disconnect(ctx)
}

// Circuits lists the tunnel's circuits without touching them.
func (f *Facade) Circuits(ctx context.Context) ([]tunnel.CircuitDescriptor, error) {
	if err := f.requireConnected("list"); err != nil {
		return nil, err
	}
	list, err := f.tunnel.ListCircuits(ctx)
	if err != nil {
		return nil, ctlerr.NewTunnelError("list", err)
	}
	return list, nil
}

// RefreshCircuits closes every open circuit so the tunnel builds fresh ones. It needs a
// connected tunnel. When it completes, an active circuits log source is re-delivered.
func (f *Facade) RefreshCircuits(ctx context.Context) (<-chan circuits.Progress, error) {
	if err := f.requireConnected("refresh"); err != nil {
		return nil, err
	}
	in, err := f.orch.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan circuits.Progress, cap(in))
	go func() {
		defer close(out)
		for p := range in {
			if p.Step == circuits.StepDone {
				for _, name := range f.circuitSources {
					f.mux.Refresh(name)
				}
			}
			out <- p
		}
	}()
	return out, nil
}

// LogSources lists the tailable sources.
func (f *Facade) LogSources() []string {
	return f.mux.Names()
}

// ActiveLog returns the tailed source name, or "".
func (f *Facade) ActiveLog() string {
	return f.mux.Active()
}

// LatestLog returns the last snapshot of name while it is the active source. It never
// re-reads or re-queries the source.
func (f *Facade) LatestLog(name string) (logtail.Snapshot, bool) {
	return f.mux.Latest(name)
}

// SetActiveLog switches the tail to name; "" stops tailing.
func (f *Facade) SetActiveLog(ctx context.Context, name string) (<-chan logtail.Snapshot, error) {
	prev := f.mux.Active()
	ch, err := f.mux.SetActive(ctx, name)
	if err != nil {
		return nil, err
	}
	f.bus.Publish(&LogSwitchedEvent{
		BaseEvent: reporting.NewBaseEvent(reporting.EventTypeLogSwitched, "Control", reporting.SeverityDebug),
		Previous:  prev,
		Target:    name,
	})
	return ch, nil
}

// Subscribe registers an observer for events matching filter (nil matches all).
func (f *Facade) Subscribe(filter reporting.EventFilter, handler reporting.EventHandler) *reporting.EventSubscription {
	return f.bus.Subscribe(filter, handler)
}

// SubscribeChannel registers a channel observer.
func (f *Facade) SubscribeChannel(filter reporting.EventFilter, bufferSize int) *reporting.EventSubscription {
	return f.bus.SubscribeChannel(filter, bufferSize)
}

// Unsubscribe removes an observer.
func (f *Facade) Unsubscribe(sub *reporting.EventSubscription) {
	f.bus.Unsubscribe(sub)
}

// Close stops tailing, aborts a refresh and disconnects.
func (f *Facade) Close(ctx context.Context) error {
	f.mux.Close()
	f.orch.Abort()
	err := f.machine.Close(ctx)
	f.bus.Publish(reporting.NewSystemEvent(reporting.EventTypeSystemShutdown, "Control", ""))
	if f.ownsBus {
		f.bus.Close()
	}
	return err
}

func (f *Facade) requireConnected(op string) error {
	if st := f.machine.State(); st.Phase != connection.PhaseConnected {
		return &ctlerr.TunnelError{Op: op, Reason: fmt.Sprintf("not connected (%s)", st)}
	}
	return nil
}

func (f *Facade) circuitText(ctx context.Context) (string, error) {
	list, err := f.Circuits(ctx)
	if err != nil {
		return "", err
	}
	return circuits.Format(list, f.now()), nil
}
