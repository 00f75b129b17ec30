package mcpserver

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dyluth/peb-bridge/internal/project"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigWatcher calls back when a project's .pebbles/config.toml changes.
// The directory is watched rather than the file because peb and editors
// replace the file instead of writing it in place.
type ConfigWatcher struct {
	file     string
	debounce time.Duration
	onChange func()
	logger   zerolog.Logger

	fsWatcher *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// WatchConfig starts watching the config file of the project rooted at root.
func WatchConfig(root string, debounce time.Duration, onChange func(), logger zerolog.Logger) (*ConfigWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Join(root, project.DirName)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &ConfigWatcher{
		file:      project.ConfigPath(root),
		debounce:  debounce,
		onChange:  onChange,
		logger:    logger,
		fsWatcher: fsWatcher,
		stopCh:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	logger.Debug().Str("file", w.file).Msg("Watching project config")
	return w, nil
}

func (w *ConfigWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("Project config changed")
			w.schedule()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Close stops the watcher and any pending callback.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
