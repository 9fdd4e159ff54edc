package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when a file in the config directory
// changes and hands the result to the registered callbacks.
type Watcher struct {
	loader *Loader
	logger *zap.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	once    sync.Once
}

// NewWatcher starts watching loader's directory.
func NewWatcher(loader *Loader, initial *Config, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(loader.basePath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", loader.basePath, err)
	}
	if loader.dotenvPath != "" {
		// The .env file may not exist yet.
		_ = fsw.Add(filepath.Dir(loader.dotenvPath))
	}

	w := &Watcher{
		loader:  loader,
		logger:  logger.Named("config"),
		config:  initial,
		watcher: fsw,
		stopCh:  make(chan struct{}),
	}
	go w.watchLoop()

	w.logger.Info("configuration hot reloading enabled", zap.String("dir", loader.basePath))
	return w, nil
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.Reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return w.loader.dotenvPath != "" && filepath.Base(name) == filepath.Base(w.loader.dotenvPath)
}

// Reload loads the configuration again. An invalid result is logged and
// discarded.
func (w *Watcher) Reload() {
	next, err := w.loader.Load(context.Background())
	if err != nil {
		w.logger.Error("invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	if prev != nil && prev.Logging.Level != next.Logging.Level {
		w.logger.Info("log level changed",
			zap.String("from", prev.Logging.Level),
			zap.String("to", next.Logging.Level))
	}
	for _, cb := range callbacks {
		cb(next)
	}
}

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Config returns the latest configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop ends watching.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}
