package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the configuration when the config file changes and
// hands the fresh copy to a callback. Only safe-to-apply fields should
// be acted on at runtime; everything else needs a restart.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   zerolog.Logger
	done     chan struct{}
}

// NewWatcher starts watching the loader's config file directory.
func NewWatcher(loader *Loader, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save
	// and a direct watch would be lost.
	configPath := loader.GetConfigPath()
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		watcher:  fsw,
		onChange: onChange,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		done:     make(chan struct{}),
	}
	go w.loop(configPath)
	return w, nil
}

func (w *Watcher) loop(configPath string) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != configPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := w.loader.Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Ignoring invalid config change")
				continue
			}
			w.logger.Info().Str("path", configPath).Msg("Config reloaded")
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
