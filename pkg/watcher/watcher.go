// Package watcher detects corpus changes on disk and triggers cache
// invalidation. Rapid event bursts for the same path are debounced into one
// notification.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/docfoundry/docfoundry/pkg/docs"
)

// DefaultDebounce coalesces event bursts per path.
const DefaultDebounce = 1000 * time.Millisecond

// skippedDirs are never watched.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"build":        true,
	"dist":         true,
}

// Config tunes a watcher.
type Config struct {
	Root     string
	Debounce time.Duration

	// Invalidate drops caches for the root; called once per debounced
	// change, before the reindex notification.
	Invalidate func(root string)

	// OnReindex, when set, is called after invalidation so callers can
	// rebuild eagerly.
	OnReindex func(ctx context.Context, root string)
}

// Watcher translates fsnotify events into corpus lifecycle events.
type Watcher struct {
	cfg     Config
	watcher *fsnotify.Watcher
	events  chan docs.Event

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]docs.EventKind

	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	stopOnce sync.Once
}

// New creates a watcher for cfg.Root.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		cfg:     cfg,
		watcher: fsw,
		events:  make(chan docs.Event, 100),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]docs.EventKind),
	}, nil
}

// Start begins watching and returns the event stream. Corpus change events
// are always delivered before their reindex_triggered companion.
func (w *Watcher) Start(ctx context.Context) (<-chan docs.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return w.events, nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	if err := w.addRecursive(w.cfg.Root); err != nil {
		return nil, err
	}
	w.running = true

	go w.loop()

	slog.Info("Started corpus watcher", "root", w.cfg.Root, "debounce", w.cfg.Debounce)
	return w.events, nil
}

// Stop cancels pending debounce timers and closes the event stream.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.running = false
		w.cancel()
		for path, timer := range w.timers {
			timer.Stop()
			delete(w.timers, path)
		}
		// Closing under the lock keeps a concurrent timer fire from
		// sending on a closed channel.
		close(w.events)
		w.mu.Unlock()

		err = w.watcher.Close()
		slog.Info("Stopped corpus watcher", "root", w.cfg.Root)
	})
	return err
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if path != root && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			slog.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Corpus watcher error", "root", w.cfg.Root, "error", err)
			w.mu.Lock()
			if w.running {
				w.emit(docs.Event{Kind: docs.EventError, Err: err})
			}
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return
	}

	// New directories join the watch set; they carry no event of their own.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			name := filepath.Base(event.Name)
			if !skippedDirs[name] && !strings.HasPrefix(name, ".") {
				if err := w.watcher.Add(event.Name); err != nil {
					slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if excluded(w.cfg.Root, event.Name) {
		return
	}

	var kind docs.EventKind
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		// Newly added files surface as indexed once the debounce settles;
		// doc_created is reserved for agent-authored files.
		kind = docs.EventDocIndexed
	case event.Op&fsnotify.Write == fsnotify.Write:
		kind = docs.EventDocUpdated
	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		kind = docs.EventDocRemoved
	default:
		return
	}

	w.debounce(event.Name, kind)
}

// debounce coalesces rapid events per path into a single notification; a
// remove observed during the window wins over create or update.
func (w *Watcher) debounce(path string, kind docs.EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	if prev, ok := w.pending[path]; !ok || kind == docs.EventDocRemoved || prev != docs.EventDocRemoved {
		w.pending[path] = kind
	}

	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.fire(path)
	})
}

// fire emits and invalidates under the mutex; emit never blocks, and Stop
// closes the channel under the same mutex, so a racing fire either completes
// first or observes running == false. OnReindex runs after the lock is
// released so a slow or reentrant callback never stalls event handling.
func (w *Watcher) fire(path string) {
	w.mu.Lock()

	kind, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	if !ok || !w.running {
		w.mu.Unlock()
		return
	}

	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	slog.Debug("Corpus change detected", "path", rel, "kind", kind)
	w.emit(docs.Event{Kind: kind, Path: rel})

	if w.cfg.Invalidate != nil {
		w.cfg.Invalidate(w.cfg.Root)
	}
	w.emit(docs.Event{Kind: docs.EventReindexTriggered, Path: w.cfg.Root})

	ctx := w.ctx
	w.mu.Unlock()

	if w.cfg.OnReindex != nil {
		w.cfg.OnReindex(ctx, w.cfg.Root)
	}
}

// emit drops events when the consumer lags; the buffer absorbs bursts.
func (w *Watcher) emit(event docs.Event) {
	select {
	case w.events <- event:
	default:
		slog.Warn("Watcher event channel full, dropping event",
			"kind", event.Kind, "path", event.Path)
	}
}

func excluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skippedDirs[part] || (part != "." && strings.HasPrefix(part, ".")) {
			return true
		}
	}
	return false
}
