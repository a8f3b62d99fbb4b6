// Config hot reload over fsnotify and SIGHUP.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
}

// NewHolder creates a holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	return &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration from disk. A load failure keeps the
// old config.
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	callbacks := h.onChange
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)

	for _, fn := range callbacks {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded")
	return nil
}

// OnChange registers a callback invoked after each successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file; changes trigger reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory, not the file: editors that save atomically
	// replace the file and break a direct watch.
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	close(h.stopCh)
	if h.watcher != nil {
		h.watcher.Close()
	}
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}
	if old.Fetch.ItemWorkers != new.Fetch.ItemWorkers {
		h.logger.Info().
			Int("old", old.Fetch.ItemWorkers).
			Int("new", new.Fetch.ItemWorkers).
			Msg("item workers changed")
	}
	if old.Archive.PartCeilingMiB != new.Archive.PartCeilingMiB {
		h.logger.Info().
			Int64("old", old.Archive.PartCeilingMiB).
			Int64("new", new.Archive.PartCeilingMiB).
			Msg("archive part ceiling changed")
	}
}
