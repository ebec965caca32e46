package logtail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"onionctl/internal/ctlerr"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records resource lifecycle across sources.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// scriptedSource emits its lines and holds a pretend resource until cancelled. Release is
// deliberately slow so an optimistic switch would be caught.
type scriptedSource struct {
	name  string
	lines []string
	j     *journal
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Tail(ctx context.Context, emit func(string)) error {
	s.j.add(s.name + " opened")
	for _, l := range s.lines {
		emit(l)
	}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	s.j.add(s.name + " released")
	return nil
}

func next(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot")
		return Snapshot{}
	}
}

// waitFor reads snapshots until one satisfies match.
func waitFor(t *testing.T, ch <-chan Snapshot, match func(string) bool) Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			require.True(t, ok, "channel closed")
			if match(s.Content) {
				return s
			}
		case <-deadline:
			t.Fatal("expected snapshot never arrived")
			return Snapshot{}
		}
	}
}

func assertClosed(t *testing.T, ch <-chan Snapshot) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func TestMultiplexer_SwitchReleasesBeforeNextUpdate(t *testing.T) {
	j := &journal{}
	m := NewMultiplexer(
		&scriptedSource{name: "tor", lines: []string{"tor-1"}, j: j},
		&scriptedSource{name: "vpn", lines: []string{"vpn-1"}, j: j},
	)
	defer m.Close()

	torCh, err := m.SetActive(context.Background(), "tor")
	require.NoError(t, err)
	assert.Equal(t, "tor-1", next(t, torCh).Content)

	vpnCh, err := m.SetActive(context.Background(), "vpn")
	require.NoError(t, err)

	first := next(t, vpnCh)
	assert.Equal(t, "vpn", first.Source)
	assert.Equal(t, "vpn-1", first.Content)
	assert.Equal(t, []string{"tor opened", "tor released", "vpn opened"}, j.list())

	assertClosed(t, torCh)
	assert.Equal(t, "vpn", m.Active())
}

func TestMultiplexer_EmptyNameStopsTailing(t *testing.T) {
	j := &journal{}
	m := NewMultiplexer(&scriptedSource{name: "tor", lines: []string{"x"}, j: j})

	ch, err := m.SetActive(context.Background(), "tor")
	require.NoError(t, err)
	next(t, ch)

	none, err := m.SetActive(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, "", m.Active())
	assert.Equal(t, []string{"tor opened", "tor released"}, j.list())
	assertClosed(t, ch)

	// stopping again is harmless
	_, err = m.SetActive(context.Background(), "")
	require.NoError(t, err)
	m.Close()
}

func TestMultiplexer_UnknownSource(t *testing.T) {
	j := &journal{}
	m := NewMultiplexer(&scriptedSource{name: "tor", j: j})
	defer m.Close()

	_, err := m.SetActive(context.Background(), "tor")
	require.NoError(t, err)

	_, err = m.SetActive(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, ctlerr.IsValidation(err))
	assert.Equal(t, "tor", m.Active(), "a rejected switch keeps the current tail")
	assert.Equal(t, []string{"tor"}, m.Names())
}

// funcSource adapts a function to Source.
type funcSource struct {
	name string
	tail func(ctx context.Context, emit func(string)) error
}

func (s funcSource) Name() string { return s.name }

func (s funcSource) Tail(ctx context.Context, emit func(string)) error { return s.tail(ctx, emit) }

func TestMultiplexer_KeepsLatestSnapshot(t *testing.T) {
	emitted := make(chan struct{})
	m := NewMultiplexer(funcSource{name: "tor", tail: func(ctx context.Context, emit func(string)) error {
		emit("a")
		emit("b")
		emit("c")
		close(emitted)
		<-ctx.Done()
		return nil
	}})
	defer m.Close()

	ch, err := m.SetActive(context.Background(), "tor")
	require.NoError(t, err)
	<-emitted

	assert.Equal(t, "c", next(t, ch).Content)
	select {
	case s := <-ch:
		t.Fatalf("stale snapshot %q delivered", s.Content)
	default:
	}
}

func TestMultiplexer_TailErrorClosesChannel(t *testing.T) {
	m := NewMultiplexer(funcSource{name: "broken", tail: func(context.Context, func(string)) error {
		return errors.New("permission denied")
	}})
	defer m.Close()

	ch, err := m.SetActive(context.Background(), "broken")
	require.NoError(t, err)
	assertClosed(t, ch)
}

func TestMultiplexer_QuerySourceRefresh(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	circuits := NewQuerySource("circuits", func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 2 {
			return "", errors.New("not connected")
		}
		return strings.Repeat("c", calls), nil
	})
	j := &journal{}
	m := NewMultiplexer(&scriptedSource{name: "tor", j: j}, circuits)
	defer m.Close()

	assert.False(t, m.Refresh("circuits"), "not active")

	ch, err := m.SetActive(context.Background(), "circuits")
	require.NoError(t, err)
	assert.Equal(t, "c", next(t, ch).Content)

	// no automatic re-polling
	select {
	case s := <-ch:
		t.Fatalf("unexpected snapshot %q", s.Content)
	case <-time.After(50 * time.Millisecond):
	}

	assert.False(t, m.Refresh("tor"))
	assert.True(t, m.Refresh("circuits"))
	assert.Equal(t, "error: not connected\n", next(t, ch).Content)

	assert.True(t, m.Refresh("circuits"))
	assert.Equal(t, "ccc", next(t, ch).Content)
}

func TestMultiplexer_LatestDoesNotRequery(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	circuits := NewQuerySource("circuits", func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return "16 BUILT\n", nil
	})
	m := NewMultiplexer(circuits, &scriptedSource{name: "tor", j: &journal{}})
	defer m.Close()

	_, ok := m.Latest("circuits")
	assert.False(t, ok, "nothing active yet")

	ch, err := m.SetActive(context.Background(), "circuits")
	require.NoError(t, err)
	assert.Equal(t, "16 BUILT\n", next(t, ch).Content)

	for i := 0; i < 5; i++ {
		snap, ok := m.Latest("circuits")
		require.True(t, ok)
		assert.Equal(t, "16 BUILT\n", snap.Content)
	}
	_, ok = m.Latest("tor")
	assert.False(t, ok)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestMultiplexer_TailEndingWithCallerClearsActive(t *testing.T) {
	j := &journal{}
	m := NewMultiplexer(&scriptedSource{name: "tor", lines: []string{"a"}, j: j})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.SetActive(ctx, "tor")
	require.NoError(t, err)
	assert.Equal(t, "a", next(t, ch).Content)
	assert.Equal(t, "tor", m.Active())

	cancel()
	for range ch {
	}
	assert.Eventually(t, func() bool { return m.Active() == "" }, time.Second, 5*time.Millisecond)
	assert.False(t, m.Refresh("tor"))
	_, ok := m.Latest("tor")
	assert.False(t, ok)

	// a new tail is unaffected by the expired one
	ch, err = m.SetActive(context.Background(), "tor")
	require.NoError(t, err)
	assert.Equal(t, "a", next(t, ch).Content)
	assert.Equal(t, "tor", m.Active())
}

func TestFileSource_TailsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notices.log")
	require.NoError(t, os.WriteFile(path, []byte("line 1\n"), 0o600))

	m := NewMultiplexer(NewFileSource("tor", path, 0, 20*time.Millisecond))
	defer m.Close()

	ch, err := m.SetActive(context.Background(), "tor")
	require.NoError(t, err)
	assert.Equal(t, "line 1\n", next(t, ch).Content)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("line 2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := waitFor(t, ch, func(c string) bool { return strings.Contains(c, "line 2") })
	assert.Equal(t, "line 1\nline 2\n", s.Content, "snapshots carry the full content")
}

func TestFileSource_PollingFallback(t *testing.T) {
	orig := newWatcher
	newWatcher = func() (*fsnotify.Watcher, error) { return nil, errors.New("inotify exhausted") }
	defer func() { newWatcher = orig }()

	path := filepath.Join(t.TempDir(), "vpn.log")
	src := NewFileSource("vpn", path, 0, 10*time.Millisecond)
	m := NewMultiplexer(src)
	defer m.Close()

	ch, err := m.SetActive(context.Background(), "vpn")
	require.NoError(t, err)
	assert.Equal(t, "", next(t, ch).Content, "missing file reads as empty")

	require.NoError(t, os.WriteFile(path, []byte("up\n"), 0o600))
	waitFor(t, ch, func(c string) bool { return c == "up\n" })
}

func TestFileSource_MaxBytesKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	require.NoError(t, os.WriteFile(path, []byte("first line\nsecond line\nthird\n"), 0o600))

	src := NewFileSource("big", path, 14, 0)
	content, err := src.read()
	require.NoError(t, err)
	assert.Equal(t, "third\n", content)
	assert.Equal(t, "big", src.Name())
	assert.Equal(t, path, src.Path())
}

func TestFileSource_ReleasesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tor.log")
	src := NewFileSource("tor", path, 0, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Tail(ctx, func(string) {}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
}
