package plugins

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tilepad/tilepad-server/internal/logger"
)

// reloadDebounce batches bursts of file events (an editor save, a plugin
// build) into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the plugin registry when manifest directories change.
// Only used in developer mode.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the registry's manifest directories and their
// immediate plugin subdirectories. Missing directories are skipped.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range registry.dirs {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("cannot watch plugin directory", "dir", dir, "error", err)
			}
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				_ = fsw.Add(filepath.Join(dir, entry.Name()))
			}
		}
	}

	return &Watcher{registry: registry, watcher: fsw}, nil
}

// Run watches until ctx is cancelled, debouncing events into reloads.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// A new plugin directory needs its own watch for the
			// manifest that lands inside it next.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("plugin watcher error", "error", err)
		case <-pending:
			pending = nil
			w.registry.Reload()
		}
	}
}
