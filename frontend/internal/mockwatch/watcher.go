// Package mockwatch invalidates cached queries when fixture files change, so
// edits under the mock root show up without restarting the frontend.
package mockwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/itchan-dev/starter/shared/logger"
)

const defaultDebounce = 200 * time.Millisecond

// Invalidator marks every cache entry of a resource stale.
// *query.Client implements it.
type Invalidator interface {
	Invalidate(resource string) int
}

// Watcher watches {root}/{resource}/*.json.
type Watcher struct {
	root     string
	cache    Invalidator
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time // resource -> last change
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*Watcher)

// WithDebounce sets how long a resource must stay quiet before it is
// invalidated.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

func New(root string, cache Invalidator, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mockwatch: create watcher: %w", err)
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		cache:    cache,
		watcher:  fw,
		debounce: defaultDebounce,
		log:      logger.Component("mockwatch"),
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the root and its resource directories until ctx is done or
// Stop is called. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("mockwatch: watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("mockwatch: read %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(filepath.Join(w.root, e.Name()))
		}
	}
	w.log.Info("watching fixtures", "root", w.root)

	w.running = true
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.log.Error("closing watcher", "error", err)
	}
}

func (w *Watcher) addDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("cannot watch resource directory", "dir", dir, "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 2
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			w.log.Error("watch error", "error", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New resource directories are not covered by the root watch.
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addDir(event.Name)
			return
		}
	}

	resource, ok := w.Resource(event.Name)
	if !ok {
		return
	}
	w.log.Debug("fixture changed", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	w.pending[resource] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	var ready []string
	w.mu.Lock()
	for resource, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, resource)
			delete(w.pending, resource)
		}
	}
	w.mu.Unlock()

	for _, resource := range ready {
		n := w.cache.Invalidate(resource)
		w.log.Info("fixtures reloaded", "resource", resource, "entries", n)
	}
}

// Resource maps a fixture path {root}/{resource}/{operation}.json to its
// resource name.
func (w *Watcher) Resource(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == "" || !strings.HasSuffix(parts[1], ".json") {
		return "", false
	}
	return parts[0], true
}
