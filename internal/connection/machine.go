// Package connection tracks the tunnel lifecycle.
//
// A Machine owns the single ConnectionState of the process. Transitions are serialised:
// connect and disconnect are idempotent where the current phase already satisfies them, and
// conflicting requests are rejected with a BusyError rather than queued. Bridge
// configuration is read from the ConfigSource on every Connect, so a saved change only
// takes effect after the next disconnect/connect cycle ("bridge changes require a
// reconnect").
package connection

import (
	"context"
	"errors"
	"sync"

	"onionctl/internal/bridges"
	"onionctl/internal/ctlerr"
	"onionctl/internal/reporting"
	"onionctl/internal/tunnel"
	"onionctl/pkg/logging"
)

// ErrStartCancelled is the reason reported to a Connect caller whose start was cancelled by
// a concurrent Disconnect.
var ErrStartCancelled = errors.New("start cancelled by disconnect")

// ConfigSource yields the persisted bridge configuration.
type ConfigSource interface {
	Load() (bridges.BridgeConfig, error)
}

// Machine is the connection state machine.
type Machine struct {
	ctl    tunnel.Control
	cfgSrc ConfigSource
	bus    reporting.EventBus

	mu          sync.Mutex
	state       State
	gen         uint64
	cancelStart context.CancelFunc
	startDone   chan struct{}
}

// NewMachine creates a machine in the Stopped phase. bus and cfgSrc may be nil.
func NewMachine(ctl tunnel.Control, cfgSrc ConfigSource, bus reporting.EventBus) *Machine {
	return &Machine{
		ctl:    ctl,
		cfgSrc: cfgSrc,
		bus:    bus,
		state:  State{Phase: PhaseStopped},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the tunnel with the currently persisted bridge configuration and blocks
// until it is Connected or has failed.
func (m *Machine) Connect(ctx context.Context) (State, error) {
	m.mu.Lock()
	switch m.state.Phase {
	case PhaseStarting, PhaseConnected:
		st := m.state
		m.mu.Unlock()
		return st, nil
	case PhaseStopping:
		m.mu.Unlock()
		return m.State(), &ctlerr.BusyError{Op: "disconnect"}
	}

	m.gen++
	gen := m.gen
	startCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancelStart = cancel
	m.startDone = done
	m.setLocked(State{Phase: PhaseStarting})
	m.mu.Unlock()

	defer close(done)
	defer cancel()

	cfg := m.loadConfig()
	logging.Info("Connection", "Starting tunnel with transport %s", cfg.ActiveTransport)
	err := m.ctl.Start(startCtx, cfg, func(p int) { m.progress(gen, p) })

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Disconnect took over; drop the late result.
		logging.Debug("Connection", "Discarding result of cancelled start (err=%v)", err)
		return m.state, ctlerr.NewTunnelError("start", ErrStartCancelled)
	}
	m.cancelStart = nil
	m.startDone = nil

	if err != nil {
		terr := ctlerr.NewTunnelError("start", err)
		logging.Error("Connection", err, "Tunnel failed to start")
		m.setLocked(State{Phase: PhaseError, Reason: terr.Reason})
		return m.state, terr
	}
	m.setLocked(State{Phase: PhaseConnected})
	logging.Info("Connection", "Tunnel connected")
	return m.state, nil
}

// Disconnect stops the tunnel. A start still in flight is cancelled first and its result
// discarded. The machine always ends in Stopped; a failed stop is returned as a non-fatal
// TunnelError.
func (m *Machine) Disconnect(ctx context.Context) (State, error) {
	m.mu.Lock()
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	switch m.state.Phase {
	case PhaseStopped, PhaseStopping, PhaseError:
		st := m.state
		m.mu.Unlock()
		return st, nil
	case PhaseStarting:
		m.gen++
		cancel, done = m.cancelStart, m.startDone
		m.cancelStart, m.startDone = nil, nil
	}
	m.setLocked(State{Phase: PhaseStopping})
	m.mu.Unlock()

	if cancel != nil {
		logging.Debug("Connection", "Cancelling in-flight start")
		cancel()
		<-done
	}

	stopErr := m.ctl.Stop(ctx)

	m.mu.Lock()
	m.setLocked(State{Phase: PhaseStopped})
	st := m.state
	m.mu.Unlock()

	if stopErr != nil {
		logging.Warn("Connection", "Tunnel did not stop cleanly: %v", stopErr)
		return st, ctlerr.NewTunnelError("stop", stopErr)
	}
	logging.Info("Connection", "Tunnel stopped")
	return st, nil
}

// Close is process teardown: it disconnects when the tunnel is up or starting.
func (m *Machine) Close(ctx context.Context) error {
	_, err := m.Disconnect(ctx)
	return err
}

func (m *Machine) progress(gen uint64, p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state.Phase != PhaseStarting || p <= m.state.Progress {
		return
	}
	m.setLocked(State{Phase: PhaseStarting, Progress: p})
}

func (m *Machine) loadConfig() bridges.BridgeConfig {
	if m.cfgSrc == nil {
		return bridges.DefaultConfig()
	}
	cfg, err := m.cfgSrc.Load()
	if err != nil {
		logging.Warn("Connection", "Using default bridge configuration: %v", err)
		return bridges.DefaultConfig()
	}
	return cfg
}

// setLocked records the new state and publishes it. Publishing never blocks, so holding the
// lock keeps events in transition order.
func (m *Machine) setLocked(next State) {
	old := m.state
	m.state = next
	logging.Debug("Connection", "%s -> %s", old, next)
	if m.bus != nil {
		m.bus.Publish(newStateChangedEvent(old, next))
	}
}
