// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// mustReplica parses a fixed UUID string so tests can rely on byte order.
func mustReplica(t *testing.T, s string) crdt.ReplicaID {
	t.Helper()
	id, err := crdt.ParseReplicaID(s)
	if err != nil {
		t.Fatalf("ParseReplicaID(%q): %v", s, err)
	}
	return id
}

// vertexState is the merge-relevant portion of a vertex used for state
// equality checks across replicas.
type vertexState struct {
	value   string
	deleted bool
}

// awFingerprint normalizes an add-wins graph into comparable maps.
func awFingerprint(g *AddWinsGraph[string]) (map[VertexID]vertexState, map[EdgeID]bool) {
	vs := make(map[VertexID]vertexState, len(g.vertices))
	for id, v := range g.vertices {
		vs[id] = vertexState{value: v.Value, deleted: v.Meta.Deleted}
	}
	es := make(map[EdgeID]bool, len(g.edges))
	for id, e := range g.edges {
		es[id] = e.Meta.Deleted
	}
	return vs, es
}

func awEqual(a, b *AddWinsGraph[string]) bool {
	av, ae := awFingerprint(a)
	bv, be := awFingerprint(b)
	return reflect.DeepEqual(av, bv) && reflect.DeepEqual(ae, be)
}

func TestAddWinsGraphBasicOps(t *testing.T) {
	g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))

	v1, err := g.AddVertex("one", 1)
	if err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	v2, err := g.AddVertex("two", 2)
	if err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if v1 == v2 {
		t.Fatal("AddVertex returned duplicate ids")
	}

	e1, err := g.AddEdge(v1, v2, 3, nil)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if got := g.VertexCount(); got != 2 {
		t.Errorf("VertexCount() = %d, want 2", got)
	}
	if got := g.EdgeCount(); got != 1 {
		t.Errorf("EdgeCount() = %d, want 1", got)
	}

	neighbors, err := g.Neighbors(v1)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0] != v2 {
		t.Errorf("Neighbors(v1) = %v, want [%s]", neighbors, v2)
	}

	if err := g.UpdateVertex(v1, "one-b", 4); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}
	v, err := g.GetVertex(v1)
	if err != nil {
		t.Fatalf("GetVertex: %v", err)
	}
	if v.Value != "one-b" || v.Meta.ModifiedAt != 4 {
		t.Errorf("vertex after update = %q at %d, want one-b at 4", v.Value, v.Meta.ModifiedAt)
	}

	w := 2.5
	if err := g.UpdateEdge(e1, &w, 5); err != nil {
		t.Fatalf("UpdateEdge: %v", err)
	}
	e, err := g.GetEdge(e1)
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if e.Weight == nil || *e.Weight != 2.5 {
		t.Errorf("edge weight = %v, want 2.5", e.Weight)
	}
}

func TestAddWinsGraphOperationErrors(t *testing.T) {
	g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	v1, _ := g.AddVertex("one", 1)
	v2, _ := g.AddVertex("two", 1)
	if _, err := g.AddEdge(v1, v2, 2, nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	tests := []struct {
		name string
		op   func() error
		want error
	}{
		{
			name: "edge to missing endpoint",
			op: func() error {
				_, err := g.AddEdge(v1, VertexID("01TESTMISSING0000000000000"), 3, nil)
				return err
			},
			want: ErrEndpointMissing,
		},
		{
			name: "self loop rejected by default",
			op: func() error {
				_, err := g.AddEdge(v1, v1, 3, nil)
				return err
			},
			want: ErrSelfLoop,
		},
		{
			name: "duplicate edge rejected by default",
			op: func() error {
				_, err := g.AddEdge(v1, v2, 3, nil)
				return err
			},
			want: ErrDuplicateEdge,
		},
		{
			name: "update missing vertex",
			op: func() error {
				return g.UpdateVertex(VertexID("01TESTMISSING0000000000000"), "x", 3)
			},
			want: ErrVertexNotFound,
		},
		{
			name: "update missing edge",
			op: func() error {
				return g.UpdateEdge(EdgeID("01TESTMISSING0000000000000"), nil, 3)
			},
			want: ErrEdgeNotFound,
		},
		{
			name: "remove missing vertex",
			op: func() error {
				return g.RemoveVertex(VertexID("01TESTMISSING0000000000000"), 3)
			},
			want: ErrVertexNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddWinsGraphOptions(t *testing.T) {
	t.Run("vertex capacity", func(t *testing.T) {
		g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"),
			WithMaxVertices(1))
		if _, err := g.AddVertex("one", 1); err != nil {
			t.Fatalf("AddVertex: %v", err)
		}
		if _, err := g.AddVertex("two", 2); !errors.Is(err, ErrMaxVerticesExceeded) {
			t.Errorf("got %v, want ErrMaxVerticesExceeded", err)
		}
	})

	t.Run("edge capacity", func(t *testing.T) {
		g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"),
			WithMaxEdges(1), WithMultiEdges(true))
		v1, _ := g.AddVertex("one", 1)
		v2, _ := g.AddVertex("two", 1)
		if _, err := g.AddEdge(v1, v2, 2, nil); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		if _, err := g.AddEdge(v1, v2, 3, nil); !errors.Is(err, ErrMaxEdgesExceeded) {
			t.Errorf("got %v, want ErrMaxEdgesExceeded", err)
		}
	})

	t.Run("self loops opt-in", func(t *testing.T) {
		g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"),
			WithSelfLoops(true))
		v1, _ := g.AddVertex("one", 1)
		if _, err := g.AddEdge(v1, v1, 2, nil); err != nil {
			t.Errorf("self loop with WithSelfLoops(true): %v", err)
		}
	})

	t.Run("multi edges opt-in", func(t *testing.T) {
		g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"),
			WithMultiEdges(true))
		v1, _ := g.AddVertex("one", 1)
		v2, _ := g.AddVertex("two", 1)
		if _, err := g.AddEdge(v1, v2, 2, nil); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		if _, err := g.AddEdge(v1, v2, 3, nil); err != nil {
			t.Errorf("parallel edge with WithMultiEdges(true): %v", err)
		}
	})
}

func TestAddWinsGraphRemoveTombstones(t *testing.T) {
	// Replica A builds V1 -> V2; replica B receives that state and
	// deletes V1. After A merges B back, V1 must still be fetchable by
	// id but invisible to rendering queries, and the edge must resolve
	// to invisible because its endpoint is tombstoned.
	a := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	b := NewAddWinsGraph[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))

	v1, _ := a.AddVertex("v1", 1)
	v2, _ := a.AddVertex("v2", 1)
	if _, err := a.AddEdge(v1, v2, 2, nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}
	if err := b.RemoveVertex(v1, 3); err != nil {
		t.Fatalf("RemoveVertex: %v", err)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("a.Merge(b): %v", err)
	}

	v, err := a.GetVertex(v1)
	if err != nil {
		t.Fatalf("GetVertex after tombstone: %v", err)
	}
	if !v.Meta.Deleted {
		t.Error("merged vertex should carry the tombstone")
	}

	for _, vis := range a.Vertices() {
		if vis.ID == v1 {
			t.Error("Vertices() must exclude tombstoned vertex")
		}
	}
	if got := a.EdgeCount(); got != 0 {
		t.Errorf("EdgeCount() = %d, want 0 with tombstoned endpoint", got)
	}
	if path := a.ShortestPath(v1, v2); path != nil {
		t.Errorf("ShortestPath through tombstoned vertex = %v, want nil", path)
	}
}

func TestAddWinsGraphUpdateResurrects(t *testing.T) {
	a := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	b := NewAddWinsGraph[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))

	v1, _ := a.AddVertex("v1", 1)
	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	// B deletes at 3; A updates at 5. The later write must win on both
	// replicas regardless of merge direction.
	if err := b.RemoveVertex(v1, 3); err != nil {
		t.Fatalf("RemoveVertex: %v", err)
	}
	if err := a.UpdateVertex(v1, "revived", 5); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("a.Merge(b): %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	for name, g := range map[string]*AddWinsGraph[string]{"a": a, "b": b} {
		v, err := g.GetVertex(v1)
		if err != nil {
			t.Fatalf("%s.GetVertex: %v", name, err)
		}
		if v.Meta.Deleted {
			t.Errorf("%s: later update lost to earlier delete", name)
		}
		if v.Value != "revived" {
			t.Errorf("%s: value = %q, want revived", name, v.Value)
		}
	}
}

func TestAddWinsGraphMergeProperties(t *testing.T) {
	build := func() (*AddWinsGraph[string], *AddWinsGraph[string], *AddWinsGraph[string], VertexID) {
		a := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
		b := NewAddWinsGraph[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))
		c := NewAddWinsGraph[string](mustReplica(t, "33333333-3333-3333-3333-333333333333"))

		shared, _ := a.AddVertex("shared", 1)
		if err := b.Merge(a); err != nil {
			t.Fatalf("seed b: %v", err)
		}
		if err := c.Merge(a); err != nil {
			t.Fatalf("seed c: %v", err)
		}

		a.AddVertex("a-only", 2)
		if err := b.UpdateVertex(shared, "from-b", 3); err != nil {
			t.Fatalf("update b: %v", err)
		}
		if err := c.RemoveVertex(shared, 4); err != nil {
			t.Fatalf("remove c: %v", err)
		}
		c.AddVertex("c-only", 5)
		return a, b, c, shared
	}

	t.Run("commutative", func(t *testing.T) {
		a, b, _, _ := build()

		ab := a.Clone()
		if err := ab.Merge(b); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		ba := b.Clone()
		if err := ba.Merge(a); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if !awEqual(ab, ba) {
			t.Error("merge order changed converged state")
		}
	})

	t.Run("associative", func(t *testing.T) {
		a, b, c, _ := build()

		left := a.Clone()
		if err := left.Merge(b); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if err := left.Merge(c); err != nil {
			t.Fatalf("Merge: %v", err)
		}

		right := a.Clone()
		bc := b.Clone()
		if err := bc.Merge(c); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if err := right.Merge(bc); err != nil {
			t.Fatalf("Merge: %v", err)
		}

		if !awEqual(left, right) {
			t.Error("merge grouping changed converged state")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		a, b, _, _ := build()
		if err := a.Merge(b); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		snap := a.Clone()
		if err := a.Merge(b); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if !awEqual(a, snap) {
			t.Error("repeated merge changed state")
		}
	})

	t.Run("full exchange converges", func(t *testing.T) {
		a, b, c, shared := build()
		for _, pair := range [][2]*AddWinsGraph[string]{
			{a, b}, {b, c}, {c, a}, {a, b}, {b, c},
		} {
			if err := pair[1].Merge(pair[0]); err != nil {
				t.Fatalf("Merge: %v", err)
			}
		}
		if !awEqual(a, b) || !awEqual(b, c) {
			t.Fatal("replicas did not converge")
		}

		// The ts-4 delete out-votes the ts-3 update everywhere.
		v, err := a.GetVertex(shared)
		if err != nil {
			t.Fatalf("GetVertex: %v", err)
		}
		if !v.Meta.Deleted {
			t.Error("latest write (delete at 4) should have won")
		}
	})
}

func TestAddWinsGraphHasConflict(t *testing.T) {
	a := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	b := NewAddWinsGraph[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))

	v1, _ := a.AddVertex("v1", 1)
	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	if a.HasConflict(b) {
		t.Error("identical states should not conflict")
	}

	if err := a.UpdateVertex(v1, "from-a", 7); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}
	if err := b.UpdateVertex(v1, "from-b", 7); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}
	if !a.HasConflict(b) {
		t.Error("same id, same timestamp, different writers should conflict")
	}

	if err := b.UpdateVertex(v1, "from-b-later", 8); err != nil {
		t.Fatalf("UpdateVertex: %v", err)
	}
	if a.HasConflict(b) {
		t.Error("ordered writes should not conflict")
	}
}

func TestAddWinsGraphJSONRoundTrip(t *testing.T) {
	g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"),
		WithSelfLoops(true))
	v1, _ := g.AddVertex("v1", 1)
	v2, _ := g.AddVertex("v2", 1)
	w := 1.5
	if _, err := g.AddEdge(v1, v2, 2, &w); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	v3, _ := g.AddVertex("doomed", 3)
	if err := g.RemoveVertex(v3, 4); err != nil {
		t.Fatalf("RemoveVertex: %v", err)
	}

	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := &AddWinsGraph[string]{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !awEqual(g, restored) {
		t.Error("round trip changed graph state")
	}
	if !restored.Replica().Equal(g.Replica()) {
		t.Errorf("replica = %s, want %s", restored.Replica(), g.Replica())
	}

	// The rebuilt index must serve traversal queries.
	neighbors, err := restored.Neighbors(v1)
	if err != nil {
		t.Fatalf("Neighbors after restore: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0] != v2 {
		t.Errorf("Neighbors after restore = %v, want [%s]", neighbors, v2)
	}

	// Self-loop option survives the trip.
	if _, err := restored.AddEdge(v1, v1, 9, nil); err != nil {
		t.Errorf("self loop after restore: %v", err)
	}
}

func TestAddWinsGraphSourcesAndSinks(t *testing.T) {
	g := NewAddWinsGraph[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	v1, _ := g.AddVertex("src", 1)
	v2, _ := g.AddVertex("mid", 1)
	v3, _ := g.AddVertex("dst", 1)
	if _, err := g.AddEdge(v1, v2, 2, nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := g.AddEdge(v2, v3, 2, nil); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	wantSources := []VertexID{v1}
	wantSinks := []VertexID{v3}
	sort.Slice(wantSources, func(i, j int) bool { return wantSources[i] < wantSources[j] })

	if got := g.FindSources(); !reflect.DeepEqual(got, wantSources) {
		t.Errorf("FindSources() = %v, want %v", got, wantSources)
	}
	if got := g.FindSinks(); !reflect.DeepEqual(got, wantSinks) {
		t.Errorf("FindSinks() = %v, want %v", got, wantSinks)
	}

	// Tombstoning the sink turns the middle vertex into the new sink.
	if err := g.RemoveVertex(v3, 3); err != nil {
		t.Fatalf("RemoveVertex: %v", err)
	}
	got := g.FindSinks()
	if len(got) != 1 || got[0] != v2 {
		t.Errorf("FindSinks() after tombstone = %v, want [%s]", got, v2)
	}
}
