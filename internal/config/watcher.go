package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config file whenever it changes and calls onChange with
// the new config and its diff against the previous one. Parse errors are
// logged and the previous config stays in effect. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, current *Config, onChange func(*Config, ConfigDiff)) error {
	if current.Path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(current.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(current.Path)

	slog.Info("watching config", "path", target)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		case <-fire:
			fire = nil
			next, err := LoadFile(target)
			if err != nil {
				slog.Error("config reload failed, keeping previous", "error", err)
				continue
			}
			d := Diff(current, next)
			for _, field := range d.NonReloadable {
				slog.Warn("config field changed but requires restart", "field", field)
			}
			if d.HasChanges() {
				onChange(next, d)
			}
			current = next
		}
	}
}
