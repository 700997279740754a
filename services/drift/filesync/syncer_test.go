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
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocs is an in-memory DocumentSet that records merge calls.
type fakeDocs struct {
	mu     sync.Mutex
	snaps  map[string][]byte
	merged map[string][][]byte
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		snaps:  make(map[string][]byte),
		merged: make(map[string][][]byte),
	}
}

func (f *fakeDocs) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.snaps))
	for name := range f.snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeDocs) Snapshot(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[name], nil
}

func (f *fakeDocs) MergeSnapshot(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged[name] = append(f.merged[name], data)
	f.snaps[name] = data
	return nil
}

func (f *fakeDocs) mergeCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.merged[name])
}

func TestDocName(t *testing.T) {
	tests := []struct {
		path string
		doc  string
		ok   bool
	}{
		{"/sync/notes.drift.json", "notes", true},
		{"todo.drift.json", "todo", true},
		{"/sync/.drift.json", "", false},
		{"/sync/notes.json", "", false},
		{"/sync/.notes.tmp-123", "", false},
	}
	for _, tt := range tests {
		doc, ok := DocName(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.doc, doc, tt.path)
	}
}

func TestSyncerExportWritesSnapshots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	docs := newFakeDocs()
	docs.snaps["notes"] = []byte(`{"kind":"rga"}`)

	syncer, err := NewSyncer(dir, docs, nil)
	require.NoError(t, err)

	require.NoError(t, syncer.ExportAll(ctx))
	data, err := os.ReadFile(filepath.Join(dir, "notes.drift.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"rga"}`, string(data))

	// Unchanged snapshots aren't rewritten.
	info1, err := os.Stat(filepath.Join(dir, "notes.drift.json"))
	require.NoError(t, err)
	require.NoError(t, syncer.Export(ctx, "notes"))
	info2, err := os.Stat(filepath.Join(dir, "notes.drift.json"))
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestSyncerImportSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	docs := newFakeDocs()
	docs.snaps["notes"] = []byte(`{"kind":"rga"}`)

	syncer, err := NewSyncer(dir, docs, nil)
	require.NoError(t, err)
	require.NoError(t, syncer.ExportAll(ctx))

	// A peer dropped in a new document.
	peerFile := filepath.Join(dir, "todo.drift.json")
	require.NoError(t, os.WriteFile(peerFile, []byte(`{"kind":"map"}`), 0644))

	require.NoError(t, syncer.ImportAll(ctx))

	assert.Equal(t, 1, docs.mergeCount("todo"), "peer file should merge")
	assert.Equal(t, 0, docs.mergeCount("notes"), "own export must not re-merge")
}

func TestWatcherBatchesSnapshotChanges(t *testing.T) {
	dir := t.TempDir()

	batches := make(chan []SnapshotChange, 4)
	watcher, err := NewWatcher(dir, func(changes []SnapshotChange) {
		batches <- changes
	}, &WatcherOptions{DebounceWindow: 50 * time.Millisecond, BufferSize: 16})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.drift.json"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.drift.json"), []byte("2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("3"), 0644))

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case batch := <-batches:
			for _, change := range batch {
				seen[change.Doc] = true
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.False(t, seen["ignored"])
}
