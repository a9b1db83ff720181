package kbseed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"duskmire/pkg/memory"
)

// Watcher re-applies seed files when they change on disk, so lore edits
// land without a server restart. It polls with an mtime check first and a
// content hash second, the same scheme the config watcher uses.
type Watcher struct {
	kb       memory.WorldKnowledgeBase
	paths    []string
	interval time.Duration
	onApply  func(path string, entries int)

	mu   sync.Mutex
	seen map[string]fileState
}

// fileState is the last known on-disk state of one seed file.
type fileState struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnApply registers a callback invoked after a file is (re)applied,
// with the number of entries upserted.
func WithOnApply(fn func(path string, entries int)) WatcherOption {
	return func(w *Watcher) {
		w.onApply = fn
	}
}

// NewWatcher applies every seed file once and returns a watcher primed with
// their current state. A file that cannot be parsed or applied fails
// construction; after that, errors only warn and the previous content
// stands until the file is fixed.
func NewWatcher(ctx context.Context, kb memory.WorldKnowledgeBase, paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		kb:       kb,
		paths:    slices.Clone(paths),
		interval: 5 * time.Second,
		seen:     make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range w.paths {
		data, st, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("kbseed: watcher initial load: %w", err)
		}
		n, err := w.applyData(ctx, path, data)
		if err != nil {
			return nil, fmt.Errorf("kbseed: watcher initial load: %w", err)
		}
		w.seen[path] = st
		if w.onApply != nil {
			w.onApply(path, n)
		}
	}
	return w, nil
}

// Start launches the polling goroutine. It returns immediately; the
// goroutine exits when ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.check(ctx)
			}
		}
	}()
}

// check revisits every watched file and re-applies the ones whose content
// changed. A file that fails to parse or upsert keeps its previous state,
// so it is retried (and warned about) every poll until fixed.
func (w *Watcher) check(ctx context.Context) {
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("kb seed watcher: cannot stat file", "path", path, "err", err)
			continue
		}

		w.mu.Lock()
		prev, known := w.seen[path]
		w.mu.Unlock()
		if known && info.ModTime().Equal(prev.mtime) {
			continue
		}

		data, st, err := loadFile(path)
		if err != nil {
			slog.Warn("kb seed watcher: cannot read file", "path", path, "err", err)
			continue
		}
		if known && st.hash == prev.hash {
			// Touched but identical.
			w.mu.Lock()
			w.seen[path] = st
			w.mu.Unlock()
			continue
		}

		n, err := w.applyData(ctx, path, data)
		if err != nil {
			slog.Warn("kb seed watcher: reapply failed", "path", path, "err", err)
			continue
		}
		w.mu.Lock()
		w.seen[path] = st
		w.mu.Unlock()
		slog.Info("kb seed file reapplied", "path", path, "entries", n)
		if w.onApply != nil {
			w.onApply(path, n)
		}
	}
}

// applyData parses and upserts one file's content.
func (w *Watcher) applyData(ctx context.Context, path string, data []byte) (int, error) {
	entries, err := Parse(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w (in %s)", err, path)
	}
	return Apply(ctx, w.kb, entries)
}

// loadFile reads one file and captures its change-tracking state.
func loadFile(path string) ([]byte, fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	return data, fileState{mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
