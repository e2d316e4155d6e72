package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"itemcore/pkg/schema"
)

const defaultDebounce = 500 * time.Millisecond

// ReloadEvent carries the outcome of one reload attempt. Err is set when the
// changed documents failed to parse or validate; Root is nil in that case and
// callers keep the previous root.
type ReloadEvent struct {
	Path string
	Root *schema.Root
	Err  error
}

// Watcher re-reads a schema path whenever its documents change, debouncing
// rapid bursts of filesystem events into a single reload.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   bool

	events chan ReloadEvent
}

// NewWatcher creates a watcher for the given schema file or directory.
// A non-positive debounce falls back to 500ms.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  fsw,
		logger:   logger,
		events:   make(chan ReloadEvent, 16),
	}, nil
}

// Events returns the channel of reload events.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching. The watch target is the directory containing the
// schema path so renames and editor save patterns are observed.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	watchDir := w.path
	if !info.IsDir() {
		watchDir = filepath.Dir(w.path)
	}
	if err := w.watcher.Add(watchDir); err != nil {
		return err
	}
	go w.processEvents(ctx)
	w.logger.Info("schema watcher started", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.pendingMu.Lock()
			w.pending = true
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("schema watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return documentExtensions[ext]
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	dirty := w.pending
	w.pending = false
	w.pendingMu.Unlock()
	if !dirty {
		return
	}
	root, err := Load(w.path)
	ev := ReloadEvent{Path: w.path, Root: root, Err: err}
	if err == nil {
		w.logger.Debug("schema reloaded", "path", w.path)
	} else {
		w.logger.Warn("schema reload failed", "path", w.path, "error", err)
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
