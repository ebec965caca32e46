// Package tunneltest provides an in-memory tunnel.Control for tests.
package tunneltest

import (
	"context"
	"sync"

	"onionctl/internal/bridges"
	"onionctl/internal/tunnel"
)

// Fake records every call and lets tests script results.
//
// The *Hook fields, when set, run before the call returns and may block; they receive the
// call context so a test can observe cancellation.
type Fake struct {
	mu sync.Mutex

	StartErr error
	StopErr  error
	ListErr  error
	CloseErr error

	// Progress is reported through the progress callback during Start.
	Progress []int
	Circuits []tunnel.CircuitDescriptor

	StartHook func(ctx context.Context) error
	StopHook  func(ctx context.Context) error
	ListHook  func(ctx context.Context) error
	CloseHook func(ctx context.Context) error

	starts     []bridges.BridgeConfig
	stops      int
	lists      int
	closedSets [][]string
}

// New returns a fake with no circuits and no failures.
func New() *Fake {
	return &Fake{}
}

// Start implements tunnel.Control.
func (f *Fake) Start(ctx context.Context, cfg bridges.BridgeConfig, progress func(int)) error {
	f.mu.Lock()
	f.starts = append(f.starts, cfg.Clone())
	steps := append([]int(nil), f.Progress...)
	hook, err := f.StartHook, f.StartErr
	f.mu.Unlock()

	for _, p := range steps {
		if progress != nil {
			progress(p)
		}
	}
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return herr
		}
	}
	return err
}

// Stop implements tunnel.Control.
func (f *Fake) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stops++
	hook, err := f.StopHook, f.StopErr
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return herr
		}
	}
	return err
}

// ListCircuits implements tunnel.Control.
func (f *Fake) ListCircuits(ctx context.Context) ([]tunnel.CircuitDescriptor, error) {
	f.mu.Lock()
	f.lists++
	hook, err := f.ListHook, f.ListErr
	out := append([]tunnel.CircuitDescriptor(nil), f.Circuits...)
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloseCircuits implements tunnel.Control.
func (f *Fake) CloseCircuits(ctx context.Context, ids []string) error {
	f.mu.Lock()
	f.closedSets = append(f.closedSets, append([]string(nil), ids...))
	hook, err := f.CloseHook, f.CloseErr
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return herr
		}
	}
	return err
}

// Set runs fn with the fake locked, for changing scripted values mid-test.
func (f *Fake) Set(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// StartRequests returns the configs Start was called with, in order.
func (f *Fake) StartRequests() []bridges.BridgeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridges.BridgeConfig(nil), f.starts...)
}

// StopCalls returns how many times Stop was called.
func (f *Fake) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// ListCalls returns how many times ListCircuits was called.
func (f *Fake) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// ClosedBatches returns the id batches passed to CloseCircuits.
func (f *Fake) ClosedBatches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.closedSets...)
}

// Circuit builds a descriptor with the given id and relay nicknames.
func Circuit(id string, nicknames ...string) tunnel.CircuitDescriptor {
	c := tunnel.CircuitDescriptor{ID: id, Status: "BUILT", Purpose: "GENERAL"}
	for _, n := range nicknames {
		c.Path = append(c.Path, tunnel.Relay{Fingerprint: "$" + n, Nickname: n})
	}
	return c
}

var _ tunnel.Control = (*Fake)(nil)
