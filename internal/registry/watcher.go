package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"toolforge/internal/logging"
)

// DefaultDebounce collapses repeated events for the same path. Editors and
// some platforms emit several write events per save; anything inside the
// window after a reload is treated as the same save.
const DefaultDebounce = time.Second

// reloadEvent is what the forwarder enqueues for the single consumer.
type reloadEvent struct {
	path string
	at   time.Time
}

// debouncer applies a leading-edge per-path window: the first event for a
// path passes, later events inside the window are dropped.
type debouncer struct {
	window time.Duration
	last   map[string]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, last: make(map[string]time.Time)}
}

func (d *debouncer) allow(path string, at time.Time) bool {
	if prev, ok := d.last[path]; ok && at.Sub(prev) < d.window {
		return false
	}
	d.last[path] = at
	return true
}

// Watcher observes one tool directory and feeds single-file reloads into the
// registry. Filesystem events go through a channel drained by exactly one
// consumer goroutine, so the registry only ever sees one writer from here.
type Watcher struct {
	registry *Registry
	dir      string
	debounce time.Duration
	logger   *zap.Logger

	// reload is a seam for tests; defaults to registry.LoadFile.
	reload func(path string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	fsw     *fsnotify.Watcher
	events  chan reloadEvent
}

// NewWatcher creates a watcher for dir. Start must be called separately,
// after the directory exists.
func NewWatcher(reg *Registry, dir string, logger *zap.Logger) *Watcher {
	w := &Watcher{
		registry: reg,
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   logging.OrNop(logger),
	}
	w.reload = reg.LoadFile
	return w
}

// Start begins watching. It is a no-op when already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	w.fsw = fsw
	w.cancel = cancel
	w.group = group
	w.events = make(chan reloadEvent, 64)
	w.running = true

	group.Go(func() error { return w.forward(ctx) })
	group.Go(func() error { return w.consume(ctx) })

	w.logger.Info("watching tool directory", zap.String("dir", w.dir))
	return nil
}

// Stop shuts both goroutines down and waits for them.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, group, fsw := w.cancel, w.group, w.fsw
	w.mu.Unlock()

	cancel()
	fsw.Close()
	_ = group.Wait()
	w.logger.Info("watcher stopped", zap.String("dir", w.dir))
}

// forward turns fsnotify events into reload events. Only writes and creates
// matter; deletes are handled by the next full reload.
func (w *Watcher) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case w.events <- reloadEvent{path: event.Name, at: time.Now()}:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// consume drains the event channel, applies the debounce, and reloads.
// This is the only goroutine that triggers reloads from the watcher side.
func (w *Watcher) consume(ctx context.Context) error {
	deb := newDebouncer(w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.events:
			if !ok {
				return nil
			}
			if !deb.allow(ev.path, ev.at) {
				continue
			}
			w.reload(ev.path)
		}
	}
}
