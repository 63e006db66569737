// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the burst of events editors produce on save.
const DefaultWatchDebounce = 150 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	fn       func(*Config)
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *log.Logger
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchDebounce sets the quiet period before a reload.
func WithWatchDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets where reload failures are reported.
func WithWatchLogger(l *log.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher starts watching path. The parent directory is watched rather
// than the file, so saves that replace the file by rename are still seen.
// fn receives each successfully reloaded config; files that fail to load
// or validate are logged and skipped.
func NewWatcher(path string, fn func(*Config), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		fn:       fn,
		watcher:  fw,
		debounce: DefaultWatchDebounce,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "err", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous settings", "path", w.path, "err", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.fn(cfg)
}

// Watch calls fn with every valid reload of path until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config), opts ...WatchOption) error {
	w, err := NewWatcher(path, fn, opts...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
