package daemon

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// PluginWatcher monitors the plugin directory for archive changes and
// fires a callback once the directory has settled. Copying an archive
// in produces a burst of write events; the debounce window folds the
// whole burst into a single rescan.
type PluginWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	onSettle func()
	logger   zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewPluginWatcher creates a watcher for dir. onSettle runs on the
// watcher's own goroutine after events stop for the debounce window.
func NewPluginWatcher(dir string, debounce time.Duration, onSettle func(), logger zerolog.Logger) (*PluginWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &PluginWatcher{
		watcher:  watcher,
		dir:      dir,
		debounce: debounce,
		onSettle: onSettle,
		logger:   logger.With().Str("component", "plugin-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start starts watching the plugin directory
func (w *PluginWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.dir).Msg("Plugin watcher started")
	return nil
}

// Stop stops the watcher
func (w *PluginWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// eventLoop processes file system events
func (w *PluginWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// handleEvent resets the settle timer for relevant archive events.
func (w *PluginWatcher) handleEvent(event fsnotify.Event) {
	if !isArchiveName(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.onSettle()
		}
	})
}

// isArchiveName reports whether path names a plugin archive, enabled
// or disabled.
func isArchiveName(path string) bool {
	return strings.HasSuffix(path, ".plugin") || strings.HasSuffix(path, ".plugin.disabled")
}
