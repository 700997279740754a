// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filesync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DocumentSet is the slice of the document service the syncer needs:
// enumerate documents, read their snapshots, and merge remote ones.
type DocumentSet interface {
	// List returns the names of all local documents.
	List(ctx context.Context) ([]string, error)

	// Snapshot returns the serialized state of a document.
	Snapshot(ctx context.Context, name string) ([]byte, error)

	// MergeSnapshot merges remote snapshot bytes into a document,
	// creating the document if it doesn't exist locally.
	MergeSnapshot(ctx context.Context, name string, data []byte) error
}

// Syncer keeps a sync directory and a DocumentSet convergent.
//
// # Description
//
// Export writes each document's snapshot to "<name>.drift.json" in the
// sync directory. Run watches the directory and merges changed files
// back in, then re-exports the merged state so other peers see it.
// Because merges are idempotent and commutative, the loop settles: a
// re-export that changes nothing is suppressed by content comparison.
//
// # Thread Safety
//
// Safe for concurrent use.
type Syncer struct {
	dir    string
	docs   DocumentSet
	logger *slog.Logger

	mu      sync.Mutex
	written map[string][]byte // last bytes this syncer wrote per doc
}

// NewSyncer creates a syncer for the given directory, creating it if
// needed.
func NewSyncer(dir string, docs DocumentSet, logger *slog.Logger) (*Syncer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create sync directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		dir:     dir,
		docs:    docs,
		logger:  logger,
		written: make(map[string][]byte),
	}, nil
}

// Dir returns the sync directory.
func (s *Syncer) Dir() string {
	return s.dir
}

// ExportAll writes a snapshot file for every local document.
func (s *Syncer) ExportAll(ctx context.Context) error {
	names, err := s.docs.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, name := range names {
		if err := s.Export(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Export writes one document's snapshot to the sync directory. The
// write goes through a temp file and rename so peers never observe a
// partial snapshot.
func (s *Syncer) Export(ctx context.Context, name string) error {
	data, err := s.docs.Snapshot(ctx, name)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}

	s.mu.Lock()
	unchanged := bytes.Equal(s.written[name], data)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	target := filepath.Join(s.dir, name+SnapshotExt)
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish snapshot for %s: %w", name, err)
	}

	s.mu.Lock()
	s.written[name] = data
	s.mu.Unlock()
	return nil
}

// ImportAll merges every snapshot file in the sync directory.
func (s *Syncer) ImportAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read sync directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := DocName(entry.Name())
		if !ok {
			continue
		}
		if err := s.importDoc(ctx, name, filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("snapshot import failed",
				slog.String("doc", name),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Run starts the sync loop: an initial import+export pass, then
// watching the directory until the context is canceled.
func (s *Syncer) Run(ctx context.Context) error {
	if err := s.ImportAll(ctx); err != nil {
		return err
	}
	if err := s.ExportAll(ctx); err != nil {
		return err
	}

	watcher, err := NewWatcher(s.dir, func(changes []SnapshotChange) {
		s.handleChanges(ctx, changes)
	}, nil)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	s.logger.Info("folder sync running", slog.String("dir", s.dir))
	<-ctx.Done()
	return nil
}

func (s *Syncer) handleChanges(ctx context.Context, changes []SnapshotChange) {
	for _, change := range changes {
		if change.Removed {
			// A peer deleting the file is not a document delete;
			// re-export so the directory stays complete.
			s.mu.Lock()
			delete(s.written, change.Doc)
			s.mu.Unlock()
			if err := s.Export(ctx, change.Doc); err != nil {
				s.logger.Warn("snapshot re-export failed",
					slog.String("doc", change.Doc),
					slog.String("error", err.Error()))
			}
			continue
		}
		if err := s.importDoc(ctx, change.Doc, change.Path); err != nil {
			s.logger.Warn("snapshot import failed",
				slog.String("doc", change.Doc),
				slog.String("error", err.Error()))
			continue
		}
		// Merged state may be a superset of the file; publish it.
		if err := s.Export(ctx, change.Doc); err != nil {
			s.logger.Warn("snapshot export failed",
				slog.String("doc", change.Doc),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Syncer) importDoc(ctx context.Context, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Our own export echoing back through fsnotify.
	s.mu.Lock()
	own := bytes.Equal(s.written[name], data)
	s.mu.Unlock()
	if own {
		return nil
	}

	return s.docs.MergeSnapshot(ctx, name, data)
}
