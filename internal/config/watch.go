// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the global configuration from path whenever the file changes
// and passes the new value to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself because most
// editors replace the file on save, which drops a file-level watch.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)

		case <-timer.C:
			cfg, err := ReloadGlobal(absPath)
			if err != nil {
				// Keep serving with the previous config; a half-saved file is common.
				slog.Warn("config reload failed", "path", absPath, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", absPath)
			if onChange != nil {
				onChange(cfg)
			}
		}
	}
}
