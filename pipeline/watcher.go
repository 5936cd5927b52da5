// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/substratelabs/atlas/config"
	"github.com/substratelabs/atlas/manifest"
)

// ChangeHandler is called with the batched set of changed paths after the
// debounce window closes. Paths are relative to the source root.
type ChangeHandler func(paths []string)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for further events before
	// flushing a batch. Default 250ms.
	DebounceWindow time.Duration

	// BufferSize is the change channel capacity. Default 1000.
	BufferSize int

	// Handler overrides the default dirty-marking handler.
	Handler ChangeHandler
}

// Watcher observes the source tree and marks the workspace dirty when
// tracked files change. It never runs the pipeline itself: the next
// explicit run picks the dirty flag up.
//
// Thread Safety: safe for concurrent use; the handler runs on a single
// goroutine.
type Watcher struct {
	cfg      *config.Config
	matcher  *manifest.Matcher
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher for the configured source tree. With a nil
// handler, batched changes mark the persistent meta state dirty.
func NewWatcher(cfg *config.Config, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		opts = &WatcherOptions{}
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 250 * time.Millisecond
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		matcher:  manifest.DefaultMatcher(cfg.Excludes...),
		watcher:  fsw,
		handler:  opts.Handler,
		debounce: opts.DebounceWindow,
		changes:  make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
	}
	if w.handler == nil {
		w.handler = w.markDirty
	}
	return w, nil
}

// Start watches the source root and all subdirectories until the context
// is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.cfg.Paths.SrcDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Paths.SrcDir, err)
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	slog.Info("watching source tree", slog.String("root", w.cfg.Paths.SrcDir))
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// markDirty is the default handler: persist the dirty flag so the next run
// regenerates everything.
func (w *Watcher) markDirty(paths []string) {
	state, err := LoadState(w.cfg.MetaStatePath())
	if err != nil {
		slog.Error("watcher could not load meta state", slog.String("error", err.Error()))
		return
	}
	state.MarkDirty(fmt.Sprintf("%d files changed under watch", len(paths)))
	if err := state.Save(w.cfg.MetaStatePath()); err != nil {
		slog.Error("watcher could not save meta state", slog.String("error", err.Error()))
		return
	}
	slog.Info("workspace marked dirty",
		slog.Int("changed", len(paths)),
		slog.String("first", paths[0]))
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && w.matcher.ExcludesDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// processEvents filters raw fsnotify events down to tracked source files.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(w.cfg.Paths.SrcDir, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			// Newly created directories join the watch set.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if !w.matcher.ExcludesDir(rel) {
						w.watcher.Add(event.Name)
					}
					continue
				}
			}

			if !w.matcher.Match(rel) {
				continue
			}
			select {
			case w.changes <- rel:
			default:
				// Buffer full; the batch is already large enough to
				// mark the workspace dirty.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches changed paths and flushes them to the handler after
// the debounce window expires.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []string
	seen := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			w.handler(batch)
			batch = nil
			seen = make(map[string]bool)
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			if !seen[path] {
				seen[path] = true
				batch = append(batch, path)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
