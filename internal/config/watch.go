package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches the burst of events an editor save produces.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the file at path whenever it changes and applies
// logging.level to level. Other settings need a restart.
// The directory is watched rather than the file, so editors that save by
// rename keep being observed.
// PRE: path is non-empty
// POST: Runs until ctx is done; returns an error only if the watch could not
// be started
func Watch(ctx context.Context, path string, level *slog.LevelVar) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(watchDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config_event", "event", "watch_error", "error", err.Error())
			case <-debounce:
				debounce = nil
				reload(abs, level)
			}
		}
	}()
	return nil
}

// reload re-reads the file and applies the live-tunable settings. An invalid
// file leaves the running settings untouched.
func reload(path string, level *slog.LevelVar) {
	cfg, err := Load(path)
	if err != nil {
		slog.Warn("config_event", "event", "reload_rejected", "path", path, "error", err.Error())
		return
	}
	l, _ := ParseLevel(cfg.Logging.Level)
	if l != level.Level() {
		level.Set(l)
		slog.Info("config_event", "event", "log_level_changed", "level", l.String())
	}
}
