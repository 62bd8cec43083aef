package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittodoc/internal/logger"
)

// ChangeHandler receives the freshly loaded configuration whenever the
// watched file changes and passes validation.
type ChangeHandler func(cfg *Config)

// Watcher reloads the configuration file on change. Logging settings are
// applied immediately; everything else is delivered to the handler so
// the caller decides what can take effect without a restart.
type Watcher struct {
	path    string
	handler ChangeHandler
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given configuration file. The
// parent directory is watched rather than the file itself so atomic
// save strategies (write temp file, rename over) are picked up.
func NewWatcher(path string, handler ChangeHandler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:    path,
		handler: handler,
		watcher: fw,
	}, nil
}

// Run blocks processing file events until the context is cancelled or
// the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Debug("watching configuration file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher error: %w", err)
		}
	}
}

// Close releases the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// reload re-reads the configuration file. A file that fails to load or
// validate is logged and ignored, keeping the last good configuration
// in effect.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("ignoring invalid configuration change",
			"path", w.path,
			logger.KeyError, err)
		return
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	logger.Info("configuration reloaded", "path", w.path)

	if w.handler != nil {
		w.handler(cfg)
	}
}
