package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration when the file named by CONFIG_FILE
// changes. Hot reloading is a development convenience; production deployments
// restart on config changes instead.
type Watcher struct {
	path   string
	logger *zap.Logger
	fs     *fsnotify.Watcher

	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)
	stop      chan struct{}
}

// NewWatcher starts watching path for changes. The initial config is served
// until the first successful reload.
func NewWatcher(path string, initial Config, logger *zap.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(path); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		fs:      fs,
		current: initial,
		stop:    make(chan struct{}),
	}
	go w.loop()

	logger.Info("config hot reload enabled", zap.String("path", path))
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(callback func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Stop ends the watch loop and releases the file watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fs.Close()
}

func (w *Watcher) loop() {
	// Editors fire several events per save; reload once after things settle.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case event, open := <-w.fs.Events:
			if !open {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, open := <-w.fs.Errors:
			if !open {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config", zap.Error(err))
		return
	}

	w.mu.Lock()
	if cfg == w.current {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	callbacks := make([]func(Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", zap.String("path", w.path))
	for _, callback := range callbacks {
		callback(cfg)
	}
}
