package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes on disk and
// hands each valid result to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temp file over the original are followed. A reload
// that fails to parse or validate is logged and dropped; the caller keeps
// running on whatever it had. Saves that leave the bytes unchanged do not
// trigger onChange.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	last, _ := os.ReadFile(abs)
	slog.Info("config: watching for changes", "path", abs)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			data, err := os.ReadFile(abs)
			if err != nil {
				slog.Warn("config: reload skipped", "path", abs, "err", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}
			cfg, err := Parse(data)
			if err != nil {
				slog.Error("config: reload rejected, previous config stays active", "path", abs, "err", err)
				continue
			}
			last = data
			slog.Info("config: reloaded", "path", abs,
				"schedule", cfg.Monitoring.Schedule, "targets", cfg.Targets.Count())
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
