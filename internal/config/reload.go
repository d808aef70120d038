// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mapio/mapio-gpio-ha/internal/log"
)

// Holder holds configuration with atomic reloading capability. It provides
// thread-safe access and supports hot reloading from file (fsnotify) or a
// manual trigger (SIGHUP, API).
type Holder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	logger     zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder creates a configuration holder with an initial config.
func NewHolder(initial AppConfig, loader *Loader, configPath string) *Holder {
	return &Holder{
		current:    initial,
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
}

// Current returns the current configuration (thread-safe read).
func (h *Holder) Current() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from file and validates it. If loading or
// validation fails the old configuration is kept and an error is returned, so
// a half-edited file never takes effect.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	h.current = newCfg
	h.mu.Unlock()

	h.logger.Info().Str("event", "config.reloaded").Msg("configuration reloaded")
	h.notify(newCfg)
	return nil
}

// Subscribe registers a channel that receives each successfully reloaded
// configuration. Sends are non-blocking; slow listeners miss updates.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Watch watches the config file for changes and reloads on write events.
// It blocks until ctx is cancelled. Editors often replace files instead of
// writing in place, so the parent directory is watched and events are
// filtered by name, with a short debounce to coalesce bursts.
func (h *Holder) Watch(ctx context.Context) error {
	if h.configPath == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			h.logger.Error().Err(cerr).Msg("failed to close config watcher")
		}
	}()

	dir := filepath.Dir(h.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	h.logger.Info().
		Str("event", "config.watch_start").
		Str("path", h.configPath).
		Msg("watching configuration file")

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(h.configPath) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := h.Reload(ctx); err != nil {
				h.logger.Warn().
					Err(err).
					Str("event", "config.watch_reload_failed").
					Msg("keeping previous configuration")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
