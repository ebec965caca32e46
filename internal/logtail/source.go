package logtail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"onionctl/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Source is a named producer of text snapshots.
type Source interface {
	Name() string

	// Tail emits the full current content, then re-emits whenever it changes, until ctx is
	// done. Every resource it opened must be released before it returns.
	Tail(ctx context.Context, emit func(content string)) error
}

// Refresher is implemented by sources that only update on request.
type Refresher interface {
	Refresh()
}

// newWatcher opens the change watcher; FileSource polls when it fails.
var newWatcher = fsnotify.NewWatcher

const defaultPollInterval = 2 * time.Second

// FileSource tails a file on disk.
type FileSource struct {
	name         string
	path         string
	maxBytes     int64
	pollInterval time.Duration
}

// NewFileSource creates a file source. maxBytes > 0 keeps only the end of the file.
// pollInterval is used when change notification is unavailable.
func NewFileSource(name, path string, maxBytes int64, pollInterval time.Duration) *FileSource {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &FileSource{name: name, path: filepath.Clean(path), maxBytes: maxBytes, pollInterval: pollInterval}
}

func (s *FileSource) Name() string { return s.name }

// Path returns the tailed file.
func (s *FileSource) Path() string { return s.path }

// Tail reads the file now and again on every change notification for it. If a watcher
// cannot be set up the file is polled instead. A missing file reads as empty.
func (s *FileSource) Tail(ctx context.Context, emit func(string)) error {
	last, first := "", true
	reread := func() {
		content, err := s.read()
		if err != nil {
			logging.Debug("LogTail", "Reading %s: %v", s.path, err)
			content = fmt.Sprintf("error reading %s: %v\n", s.path, err)
		}
		if first || content != last {
			first = false
			last = content
			emit(content)
		}
	}

	// watch before the first read so no change between the two is missed
	watcher, err := s.watch()
	reread()
	if err != nil {
		logging.Debug("LogTail", "No change notification for %s (%v), polling every %s", s.path, err, s.pollInterval)
		return s.poll(ctx, reread)
	}
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return s.poll(ctx, reread)
			}
			if filepath.Clean(ev.Name) == s.path {
				reread()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return s.poll(ctx, reread)
			}
			logging.Warn("LogTail", "Watcher error for %s: %v", s.path, werr)
		}
	}
}

// watch observes the parent directory so that creation and rotation of the file are seen.
func (s *FileSource) watch() (*fsnotify.Watcher, error) {
	w, err := newWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (s *FileSource) poll(ctx context.Context, reread func()) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reread()
		}
	}
}

func (s *FileSource) read() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	trimmed := false
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		if _, err := f.Seek(info.Size()-s.maxBytes, io.SeekStart); err != nil {
			return "", err
		}
		trimmed = true
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	if trimmed {
		// drop the partial first line
		for i, b := range data {
			if b == '\n' {
				data = data[i+1:]
				break
			}
		}
	}
	return string(data), nil
}

// QuerySource produces its content from a query. It runs once when tailing starts and
// again only when Refresh is called.
type QuerySource struct {
	name    string
	query   func(ctx context.Context) (string, error)
	trigger chan struct{}
}

// NewQuerySource creates a query-backed source.
func NewQuerySource(name string, query func(ctx context.Context) (string, error)) *QuerySource {
	return &QuerySource{name: name, query: query, trigger: make(chan struct{}, 1)}
}

func (s *QuerySource) Name() string { return s.name }

// Refresh asks an active Tail to run the query again. It never blocks.
func (s *QuerySource) Refresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Tail runs the query now and on every Refresh until ctx is done.
func (s *QuerySource) Tail(ctx context.Context, emit func(string)) error {
	// a refresh requested while nobody was tailing is covered by the initial run
	select {
	case <-s.trigger:
	default:
	}

	run := func() {
		content, err := s.query(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			content = fmt.Sprintf("error: %v\n", err)
		}
		emit(content)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			run()
		}
	}
}
