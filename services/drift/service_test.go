// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package drift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/resolve"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(crdt.NewReplicaID(), storage.NewMemory(), nil)
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Create(ctx, "settings", KindMap))
	assert.ErrorIs(t, svc.Create(ctx, "settings", KindMap), ErrDocExists)
	assert.ErrorIs(t, svc.Create(ctx, "bad", Kind("blob")), ErrUnknownKind)
	assert.ErrorIs(t, svc.Create(ctx, "no/slashes", KindMap), ErrInvalidDocName)

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, names)

	_, kind, err := svc.View("settings")
	require.NoError(t, err)
	assert.Equal(t, KindMap, kind)

	require.NoError(t, svc.Delete(ctx, "settings"))
	assert.ErrorIs(t, svc.Delete(ctx, "settings"), ErrDocNotFound)
}

func TestServiceApplyPerKind(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Create(ctx, "title", KindRegister))
	require.NoError(t, svc.Apply(ctx, "title", []Operation{{Action: "set", Value: "draft"}}))
	view, _, err := svc.View("title")
	require.NoError(t, err)
	assert.Equal(t, "draft", view.(map[string]any)["value"])

	require.NoError(t, svc.Create(ctx, "visits", KindCounter))
	require.NoError(t, svc.Apply(ctx, "visits", []Operation{
		{Action: "increment", Delta: 2},
		{Action: "increment"}, // default step 1
	}))
	view, _, err = svc.View("visits")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), view.(map[string]any)["value"])

	require.NoError(t, svc.Create(ctx, "stock", KindPNCounter))
	require.NoError(t, svc.Apply(ctx, "stock", []Operation{
		{Action: "increment", Delta: 5},
		{Action: "decrement", Delta: 7},
	}))
	view, _, err = svc.View("stock")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), view.(map[string]any)["value"])

	require.NoError(t, svc.Create(ctx, "prefs", KindMap))
	require.NoError(t, svc.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "theme", Value: "dark"},
		{Action: "set", Key: "lang", Value: "en"},
		{Action: "delete", Key: "lang", At: time.Now().Add(time.Second)},
	}))
	view, _, err = svc.View("prefs")
	require.NoError(t, err)
	entries := view.(map[string]any)["entries"].(map[string]string)
	assert.Equal(t, map[string]string{"theme": "dark"}, entries)

	require.NoError(t, svc.Create(ctx, "text", KindRGA))
	require.NoError(t, svc.Apply(ctx, "text", []Operation{
		{Action: "append", Value: "H"},
		{Action: "append", Value: "o"},
		{Action: "insert", Index: 1, Value: "ell"},
		{Action: "delete", Index: 0},
	}))
	view, _, err = svc.View("text")
	require.NoError(t, err)
	assert.Equal(t, "ello", view.(map[string]any)["text"])

	assert.ErrorIs(t, svc.Apply(ctx, "text", []Operation{{Action: "delete", Index: 99}}), ErrInvalidOp)
}

func TestServiceApplyGraphAndTree(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Create(ctx, "deps", KindAWGraph))
	require.NoError(t, svc.Apply(ctx, "deps", []Operation{
		{Action: "add_vertex", Value: "api"},
		{Action: "add_vertex", Value: "db"},
	}))
	view, _, err := svc.View("deps")
	require.NoError(t, err)
	assert.Equal(t, 2, view.(map[string]any)["vertex_count"])

	assert.ErrorIs(t, svc.Apply(ctx, "deps", []Operation{{Action: "set"}}), ErrInvalidOp)

	require.NoError(t, svc.Create(ctx, "outline", KindTree))
	require.NoError(t, svc.Apply(ctx, "outline", []Operation{{Action: "add_root", Value: "doc"}}))
	view, _, err = svc.View("outline")
	require.NoError(t, err)
	assert.Equal(t, 1, view.(map[string]any)["len"])
}

// Two replicas mutate offline and exchange snapshots in both directions;
// their views must converge.
func TestServiceOfflineConvergence(t *testing.T) {
	ctx := context.Background()
	a := newTestService(t)
	b := newTestService(t)

	require.NoError(t, a.Create(ctx, "prefs", KindMap))
	require.NoError(t, a.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "theme", Value: "dark", At: time.Unix(1000, 0)},
	}))

	// B learns of the document through a snapshot, then writes offline.
	snapA, err := a.Snapshot(ctx, "prefs")
	require.NoError(t, err)
	require.NoError(t, b.MergeSnapshot(ctx, "prefs", snapA))
	require.NoError(t, b.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "lang", Value: "de", At: time.Unix(2000, 0)},
	}))
	require.NoError(t, a.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "theme", Value: "light", At: time.Unix(3000, 0)},
	}))

	// Exchange in both directions, twice for good measure: merges are
	// idempotent.
	for i := 0; i < 2; i++ {
		snapA, err := a.Snapshot(ctx, "prefs")
		require.NoError(t, err)
		require.NoError(t, b.MergeSnapshot(ctx, "prefs", snapA))
		snapB, err := b.Snapshot(ctx, "prefs")
		require.NoError(t, err)
		require.NoError(t, a.MergeSnapshot(ctx, "prefs", snapB))
	}

	viewA, _, err := a.View("prefs")
	require.NoError(t, err)
	viewB, _, err := b.View("prefs")
	require.NoError(t, err)
	assert.Equal(t, viewA, viewB)
	assert.Equal(t, map[string]string{"theme": "light", "lang": "de"},
		viewA.(map[string]any)["entries"])
}

// conflictingRegisterServices builds two services that each wrote a
// different register value at the same instant: a true conflict on
// exchange. Only b, the merging side, carries the strategy.
func conflictingRegisterServices(t *testing.T, strategy resolve.Strategy) (*Service, *Service) {
	t.Helper()
	ctx := context.Background()
	a := newTestService(t)
	b := newTestService(t)
	b.SetResolveStrategy(strategy)

	at := time.Unix(1000, 0)
	require.NoError(t, a.Create(ctx, "title", KindRegister))
	require.NoError(t, a.Apply(ctx, "title", []Operation{{Action: "set", Value: "alpha", At: at}}))
	require.NoError(t, b.Create(ctx, "title", KindRegister))
	require.NoError(t, b.Apply(ctx, "title", []Operation{{Action: "set", Value: "beta", At: at}}))
	return a, b
}

func TestServiceManualStrategySurfacesConflict(t *testing.T) {
	ctx := context.Background()
	a, b := conflictingRegisterServices(t, resolve.ManualResolution)

	snap, err := a.Snapshot(ctx, "title")
	require.NoError(t, err)
	assert.ErrorIs(t, b.MergeSnapshot(ctx, "title", snap), resolve.ErrUnresolvable)

	// The local write survives the refused merge.
	view, _, err := b.View("title")
	require.NoError(t, err)
	assert.Equal(t, "beta", view.(map[string]any)["value"])
}

func TestServiceCustomMergeJoinsTexts(t *testing.T) {
	ctx := context.Background()
	a, b := conflictingRegisterServices(t, resolve.CustomMerge)

	snap, err := a.Snapshot(ctx, "title")
	require.NoError(t, err)
	require.NoError(t, b.MergeSnapshot(ctx, "title", snap))

	// Both concurrent writes survive, joined in writer order.
	view, _, err := b.View("title")
	require.NoError(t, err)
	got := view.(map[string]any)["value"].(string)
	assert.Contains(t, got, "alpha")
	assert.Contains(t, got, "beta")
	assert.Contains(t, got, "\n")
}

func TestServiceCustomMergeMapUnion(t *testing.T) {
	ctx := context.Background()
	a := newTestService(t)
	b := newTestService(t)
	b.SetResolveStrategy(resolve.CustomMerge)

	// The shared key collides at the same instant; the others are
	// disjoint and must all survive the union.
	at := time.Unix(1000, 0)
	require.NoError(t, a.Create(ctx, "prefs", KindMap))
	require.NoError(t, a.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "theme", Value: "dark", At: at},
		{Action: "set", Key: "font", Value: "mono", At: at},
	}))
	require.NoError(t, b.Create(ctx, "prefs", KindMap))
	require.NoError(t, b.Apply(ctx, "prefs", []Operation{
		{Action: "set", Key: "theme", Value: "light", At: at},
		{Action: "set", Key: "lang", Value: "de", At: at},
	}))

	snap, err := a.Snapshot(ctx, "prefs")
	require.NoError(t, err)
	require.NoError(t, b.MergeSnapshot(ctx, "prefs", snap))

	view, _, err := b.View("prefs")
	require.NoError(t, err)
	entries := view.(map[string]any)["entries"].(map[string]string)
	assert.Equal(t, "mono", entries["font"])
	assert.Equal(t, "de", entries["lang"])
	// The colliding key settles on one side by the replica tie-break.
	assert.Contains(t, []string{"dark", "light"}, entries["theme"])
}

func TestServiceMergeKindMismatch(t *testing.T) {
	ctx := context.Background()
	a := newTestService(t)
	b := newTestService(t)

	require.NoError(t, a.Create(ctx, "doc", KindCounter))
	require.NoError(t, b.Create(ctx, "doc", KindRegister))

	snap, err := a.Snapshot(ctx, "doc")
	require.NoError(t, err)
	assert.ErrorIs(t, b.MergeSnapshot(ctx, "doc", snap), ErrKindMismatch)
}

func TestServiceMergeRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	assert.Error(t, svc.MergeSnapshot(ctx, "doc", []byte("not json")))
	// A garbage payload must not leave an empty document behind.
	assert.Error(t, svc.MergeSnapshot(ctx, "doc",
		[]byte(`{"kind":"register","payload":"not-an-object"}`)))
	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestServicePersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	replica := crdt.NewReplicaID()

	svc := NewService(replica, store, nil)
	require.NoError(t, svc.Create(ctx, "visits", KindCounter))
	require.NoError(t, svc.Apply(ctx, "visits", []Operation{{Action: "increment", Delta: 9}}))

	restored := NewService(replica, store, nil)
	require.NoError(t, restored.Load(ctx))

	view, kind, err := restored.View("visits")
	require.NoError(t, err)
	assert.Equal(t, KindCounter, kind)
	assert.Equal(t, uint64(9), view.(map[string]any)["value"])
}

func TestServiceChangeHook(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	var changed []string
	svc.OnChange(func(name string) { changed = append(changed, name) })

	require.NoError(t, svc.Create(ctx, "title", KindRegister))
	require.NoError(t, svc.Apply(ctx, "title", []Operation{{Action: "set", Value: "x"}}))
	assert.Equal(t, []string{"title", "title"}, changed)
}
