// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filesync synchronizes document snapshots through a shared
// directory. Each document lives in the directory as
// "<name>.drift.json"; any process that can read and write the
// directory (another replica, a cloud-drive client, rsync) becomes a
// sync peer. Merge semantics make the channel safe: duplicated or
// reordered file updates converge to the same state.
package filesync

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SnapshotExt is the filename suffix for synced snapshots.
const SnapshotExt = ".drift.json"

// SnapshotChange reports that a snapshot file changed on disk.
type SnapshotChange struct {
	// Doc is the document name derived from the filename.
	Doc string

	// Path is the absolute path of the snapshot file.
	Path string

	// Removed is true when the file was deleted or renamed away.
	Removed bool
}

// ChangeHandler is called with a debounced batch of snapshot changes.
type ChangeHandler func(changes []SnapshotChange)

// Watcher watches a sync directory for snapshot file changes.
//
// # Description
//
// Cloud-drive clients and editors write files in bursts (temp file,
// write, rename), so raw fsnotify events are noisy. The watcher
// collects events into a debounce window and delivers one deduplicated
// batch per burst, keeping the last change per document.
//
// # Thread Safety
//
// Safe for concurrent use. The handler runs on a single goroutine.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration

	changes  chan SnapshotChange
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before
	// delivering a batch. Default: 250ms.
	DebounceWindow time.Duration

	// BufferSize is the size of the change buffer channel.
	// Default: 256.
	BufferSize int
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 250 * time.Millisecond,
		BufferSize:     256,
	}
}

// NewWatcher creates a watcher for the given sync directory. The
// directory is watched flat; snapshots never nest.
func NewWatcher(dir string, handler ChangeHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		watcher:  fsw,
		handler:  handler,
		debounce: opts.DebounceWindow,
		changes:  make(chan SnapshotChange, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Both internal goroutines exit when Stop is
// called.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.processEvents()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// DocName extracts the document name from a snapshot path. Returns
// false for files that are not snapshots.
func DocName(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, SnapshotExt) {
		return "", false
	}
	name := strings.TrimSuffix(base, SnapshotExt)
	if name == "" {
		return "", false
	}
	return name, true
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			doc, isSnapshot := DocName(event.Name)
			if !isSnapshot {
				continue
			}
			change := SnapshotChange{
				Doc:     doc,
				Path:    event.Name,
				Removed: event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename),
			}
			select {
			case w.changes <- change:
			default:
				// Buffer full; the debouncer will pick the document up
				// on the next burst.
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) debounceLoop() {
	var batch []SnapshotChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
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

// dedupe keeps the most recent change per document.
func dedupe(changes []SnapshotChange) []SnapshotChange {
	seen := make(map[string]int)
	result := make([]SnapshotChange, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Doc]; ok {
			result[idx] = change
		} else {
			seen[change.Doc] = len(result)
			result = append(result, change)
		}
	}
	return result
}
