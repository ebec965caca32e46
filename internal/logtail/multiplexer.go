// Package logtail keeps exactly one live tail across several named log sources.
package logtail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"onionctl/internal/ctlerr"
	"onionctl/pkg/logging"
)

// Snapshot is the whole current content of a source.
type Snapshot struct {
	Source  string    `json:"source"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Multiplexer switches the single active tail between registered sources.
type Multiplexer struct {
	sources map[string]Source
	names   []string

	mu     sync.Mutex
	active string
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}

	// latest snapshot of generation snapGen
	snapMu  sync.Mutex
	snap    Snapshot
	snapGen uint64
	hasSnap bool
}

// NewMultiplexer registers sources. Duplicate names keep the first registration.
func NewMultiplexer(sources ...Source) *Multiplexer {
	m := &Multiplexer{sources: make(map[string]Source)}
	for _, s := range sources {
		if _, dup := m.sources[s.Name()]; dup {
			logging.Warn("LogTail", "Duplicate log source %q ignored", s.Name())
			continue
		}
		m.sources[s.Name()] = s
		m.names = append(m.names, s.Name())
	}
	return m
}

// Names returns the registered source names in registration order.
func (m *Multiplexer) Names() []string {
	return append([]string(nil), m.names...)
}

// Active returns the name of the tailed source, or "" when nothing is tailed.
func (m *Multiplexer) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Latest returns the most recent snapshot of name without touching the tail. It reports
// false when name is not the active source or has not produced content yet.
func (m *Multiplexer) Latest(name string) (Snapshot, bool) {
	m.mu.Lock()
	active, gen := m.active, m.gen
	m.mu.Unlock()
	if name == "" || active != name {
		return Snapshot{}, false
	}

	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	if !m.hasSnap || m.snapGen != gen {
		return Snapshot{}, false
	}
	return m.snap, true
}

// SetActive stops the current tail, waits until it has released its resources, then starts
// tailing name. The returned channel carries full-content snapshots, holds only the latest
// one not yet received, and is closed when this tail stops. An empty name only stops
// tailing and returns a nil channel. The tail lives until the next SetActive, Close or
// until ctx is done; a tail that ends on its own leaves nothing active.
func (m *Multiplexer) SetActive(ctx context.Context, name string) (<-chan Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var src Source
	if name != "" {
		var ok bool
		if src, ok = m.sources[name]; !ok {
			return nil, &ctlerr.ValidationError{Field: "log source", Reason: fmt.Sprintf("unknown log source %q", name)}
		}
	}

	m.stopLocked()
	if src == nil {
		return nil, nil
	}

	tctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 1)
	done := make(chan struct{})
	m.gen++
	gen := m.gen
	m.active, m.cancel, m.done = name, cancel, done

	go func() {
		defer m.expire(gen)
		defer close(done)
		defer close(out)
		err := src.Tail(tctx, func(content string) {
			snap := Snapshot{Source: name, Content: content, At: time.Now()}
			m.snapMu.Lock()
			if tctx.Err() == nil {
				m.snap, m.snapGen, m.hasSnap = snap, gen, true
			}
			m.snapMu.Unlock()
			offer(tctx, out, snap)
		})
		if err != nil && tctx.Err() == nil {
			logging.Warn("LogTail", "Tail of %s ended: %v", name, err)
		}
	}()

	logging.Debug("LogTail", "Tailing %s", name)
	return out, nil
}

// Refresh re-runs name if it is the active source and updates only on request. It reports
// whether a refresh was requested.
func (m *Multiplexer) Refresh(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" || m.active != name {
		return false
	}
	r, ok := m.sources[name].(Refresher)
	if !ok {
		return false
	}
	r.Refresh()
	return true
}

// Close stops tailing.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Multiplexer) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	logging.Debug("LogTail", "Released %s", m.active)
	m.active, m.cancel, m.done = "", nil, nil
}

// expire clears the active source after tail gen ended without being stopped, e.g. because
// the caller's context was cancelled. It runs after the tail closed its done channel.
func (m *Multiplexer) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.cancel == nil {
		return
	}
	m.cancel()
	logging.Debug("LogTail", "Tail of %s ended", m.active)
	m.active, m.cancel, m.done = "", nil, nil
}

// offer replaces any unread snapshot with s. Only the tail goroutine sends on out.
func offer(ctx context.Context, out chan Snapshot, s Snapshot) {
	if ctx.Err() != nil {
		return
	}
	select {
	case out <- s:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- s:
	default:
	}
}
