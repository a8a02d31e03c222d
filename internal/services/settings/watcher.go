package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/models"
)

// Watcher publishes immutable settings snapshots whenever a source file changes
type Watcher struct {
	store    *Store
	interval time.Duration
	logger   *logrus.Logger

	current atomic.Pointer[models.Settings]
	version atomic.Uint64

	mu        sync.RWMutex
	stamps    map[string]time.Time
	listeners []func(models.Settings)
}

// NewWatcher loads the initial snapshot synchronously
func NewWatcher(store *Store, interval time.Duration, logger *logrus.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	w := &Watcher{
		store:    store,
		interval: interval,
		logger:   logger,
		stamps:   make(map[string]time.Time),
	}
	w.stamps = w.scan()
	w.publish(store.Load())
	return w
}

// Current returns the latest published snapshot
func (w *Watcher) Current() models.Settings {
	return *w.current.Load()
}

// OnChange registers a callback for new snapshots
func (w *Watcher) OnChange(listener func(models.Settings)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, listener)
}

// Run reloads on filesystem events in the settings directory until ctx is done.
// If the directory cannot be watched it falls back to polling modification times.
func (w *Watcher) Run(ctx context.Context) {
	fsw, err := w.watchDirs()
	if err != nil {
		w.logger.WithError(err).Warn("Settings file watch unavailable, polling instead")
		w.poll(ctx)
		return
	}
	w.watch(ctx, fsw)
}

// watchDirs registers every directory holding a source file
func (w *Watcher) watchDirs() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, path := range w.store.Paths() {
		dir := filepath.Dir(path)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return fsw, nil
}

func (w *Watcher) watch(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	sources := make(map[string]bool)
	for _, path := range w.store.Paths() {
		sources[filepath.Clean(path)] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !sources[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.WithField("file", event.Name).Debug("Settings source changed, reloading")
			w.Reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Settings file watch error")
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Reload publishes a new snapshot unconditionally
func (w *Watcher) Reload() {
	stamps := w.scan()
	w.mu.Lock()
	w.stamps = stamps
	w.mu.Unlock()

	w.publish(w.store.Load())
}

// Check reloads once if any source modification time changed since the last check
func (w *Watcher) Check() bool {
	stamps := w.scan()

	w.mu.Lock()
	changed := len(stamps) != len(w.stamps)
	for path, mod := range stamps {
		if prev, ok := w.stamps[path]; !ok || !prev.Equal(mod) {
			changed = true
		}
	}
	w.stamps = stamps
	w.mu.Unlock()

	if !changed {
		return false
	}

	w.logger.Debug("Settings sources changed, reloading")
	w.publish(w.store.Load())
	return true
}

// scan stats every source; missing files are simply absent from the map
func (w *Watcher) scan() map[string]time.Time {
	stamps := make(map[string]time.Time)
	for _, path := range w.store.Paths() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stamps[path] = info.ModTime()
	}
	return stamps
}

func (w *Watcher) publish(s models.Settings) {
	s.Version = w.version.Add(1)
	s.Keywords = append([]string(nil), s.Keywords...)
	w.current.Store(&s)

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, listener := range w.listeners {
		go listener(s)
	}
}
