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
	"time"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// AddWinsGraph is a replicated directed graph where deletion tombstones
// the element instead of removing it. Because the record survives, a
// write with a later timestamp always out-votes a deletion, on any
// replica, in any merge order. That makes resurrection deterministic:
// add wins over concurrent remove.
//
// Timestamps are caller-supplied logical times (see crdt.LamportClock).
// The zero value is not usable; construct with NewAddWinsGraph.
type AddWinsGraph[T any] struct {
	replica  crdt.ReplicaID
	opts     Options
	vertices map[VertexID]*Vertex[T]
	edges    map[EdgeID]*Edge

	// outgoing and incoming index edge ids by endpoint. Entries are
	// append-only: an edge's endpoints never change after creation and
	// tombstoned edges stay indexed, filtered at query time.
	outgoing map[VertexID][]EdgeID
	incoming map[VertexID][]EdgeID
}

// NewAddWinsGraph creates an empty add-wins graph owned by replica.
func NewAddWinsGraph[T any](replica crdt.ReplicaID, opts ...Option) *AddWinsGraph[T] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &AddWinsGraph[T]{
		replica:  replica,
		opts:     options,
		vertices: make(map[VertexID]*Vertex[T]),
		edges:    make(map[EdgeID]*Edge),
		outgoing: make(map[VertexID][]EdgeID),
		incoming: make(map[VertexID][]EdgeID),
	}
}

// Replica returns the identity of the replica owning this instance.
func (g *AddWinsGraph[T]) Replica() crdt.ReplicaID {
	return g.replica
}

// AddVertex inserts a new vertex with a fresh id. It fails only when the
// configured vertex capacity is reached.
func (g *AddWinsGraph[T]) AddVertex(value T, ts uint64) (VertexID, error) {
	if g.opts.MaxVertices > 0 && len(g.vertices) >= g.opts.MaxVertices {
		return "", ErrMaxVerticesExceeded
	}
	id := newVertexID()
	g.vertices[id] = &Vertex[T]{
		ID:    id,
		Value: value,
		Meta:  crdt.NewMetadata(g.replica, ts),
	}
	return id, nil
}

// AddEdge inserts a directed edge between two visible vertices.
//
// Inputs:
//   - source, target: endpoint vertex ids; both must exist and be visible
//   - ts: logical timestamp of the write
//   - weight: optional weight, nil for unweighted
//
// Outputs:
//   - the new edge id, or ErrEndpointMissing, ErrSelfLoop,
//     ErrDuplicateEdge, ErrMaxEdgesExceeded
func (g *AddWinsGraph[T]) AddEdge(source, target VertexID, ts uint64, weight *float64) (EdgeID, error) {
	if !g.vertexVisible(source) || !g.vertexVisible(target) {
		return "", ErrEndpointMissing
	}
	if source == target && !g.opts.AllowSelfLoops {
		return "", ErrSelfLoop
	}
	if !g.opts.AllowMultiEdges && g.hasVisibleEdge(source, target) {
		return "", ErrDuplicateEdge
	}
	if g.opts.MaxEdges > 0 && len(g.edges) >= g.opts.MaxEdges {
		return "", ErrMaxEdgesExceeded
	}

	id := newEdgeID()
	e := &Edge{
		ID:     id,
		Source: source,
		Target: target,
		Weight: weight,
		Meta:   crdt.NewMetadata(g.replica, ts),
	}
	g.edges[id] = e
	g.indexEdge(e)
	return id, nil
}

// UpdateVertex overwrites the vertex value and stamps the modification.
// Updating a tombstoned vertex resurrects it: a later write always wins
// over a deletion under add-wins semantics.
func (g *AddWinsGraph[T]) UpdateVertex(id VertexID, value T, ts uint64) error {
	v, ok := g.vertices[id]
	if !ok {
		return ErrVertexNotFound
	}
	v.Value = value
	v.Meta.Deleted = false
	v.Meta.Touch(g.replica, ts)
	return nil
}

// UpdateEdge overwrites the edge weight and stamps the modification.
// Like UpdateVertex, it resurrects a tombstoned edge.
func (g *AddWinsGraph[T]) UpdateEdge(id EdgeID, weight *float64, ts uint64) error {
	e, ok := g.edges[id]
	if !ok {
		return ErrEdgeNotFound
	}
	e.Weight = weight
	e.Meta.Deleted = false
	e.Meta.Touch(g.replica, ts)
	return nil
}

// RemoveVertex tombstones the vertex. Incident edges keep their records
// untouched; they drop out of visible queries because their endpoint is
// no longer visible.
func (g *AddWinsGraph[T]) RemoveVertex(id VertexID, ts uint64) error {
	v, ok := g.vertices[id]
	if !ok {
		return ErrVertexNotFound
	}
	v.Meta.Deleted = true
	v.Meta.Touch(g.replica, ts)
	return nil
}

// RemoveEdge tombstones the edge.
func (g *AddWinsGraph[T]) RemoveEdge(id EdgeID, ts uint64) error {
	e, ok := g.edges[id]
	if !ok {
		return ErrEdgeNotFound
	}
	e.Meta.Deleted = true
	e.Meta.Touch(g.replica, ts)
	return nil
}

// GetVertex returns the stored vertex record, tombstoned or not. Callers
// rendering visible state should use Vertices or Snapshot instead.
func (g *AddWinsGraph[T]) GetVertex(id VertexID) (*Vertex[T], error) {
	v, ok := g.vertices[id]
	if !ok {
		return nil, ErrVertexNotFound
	}
	return v, nil
}

// ContainsVertex reports raw presence: true for tombstoned vertices too.
func (g *AddWinsGraph[T]) ContainsVertex(id VertexID) bool {
	_, ok := g.vertices[id]
	return ok
}

// GetEdge returns the stored edge record, tombstoned or not.
func (g *AddWinsGraph[T]) GetEdge(id EdgeID) (*Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	return e, nil
}

// Vertices returns all visible vertices in no particular order.
func (g *AddWinsGraph[T]) Vertices() []*Vertex[T] {
	out := make([]*Vertex[T], 0, len(g.vertices))
	for _, v := range g.vertices {
		if !v.Meta.Deleted {
			out = append(out, v)
		}
	}
	return out
}

// Edges returns all visible edges in no particular order. An edge is
// visible only when it is not tombstoned and both endpoints are visible.
func (g *AddWinsGraph[T]) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if g.edgeVisible(e) {
			out = append(out, e)
		}
	}
	return out
}

// VertexCount returns the number of visible vertices.
func (g *AddWinsGraph[T]) VertexCount() int {
	n := 0
	for _, v := range g.vertices {
		if !v.Meta.Deleted {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of visible edges.
func (g *AddWinsGraph[T]) EdgeCount() int {
	n := 0
	for _, e := range g.edges {
		if g.edgeVisible(e) {
			n++
		}
	}
	return n
}

// Neighbors returns the visible targets of visible outgoing edges.
func (g *AddWinsGraph[T]) Neighbors(id VertexID) ([]VertexID, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	seen := make(map[VertexID]struct{})
	var out []VertexID
	for _, eid := range g.outgoing[id] {
		e := g.edges[eid]
		if !g.edgeVisible(e) {
			continue
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out, nil
}

// OutgoingEdges returns the visible edges originating at id.
func (g *AddWinsGraph[T]) OutgoingEdges(id VertexID) ([]*Edge, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	var out []*Edge
	for _, eid := range g.outgoing[id] {
		if e := g.edges[eid]; g.edgeVisible(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// IncomingEdges returns the visible edges terminating at id.
func (g *AddWinsGraph[T]) IncomingEdges(id VertexID) ([]*Edge, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	var out []*Edge
	for _, eid := range g.incoming[id] {
		if e := g.edges[eid]; g.edgeVisible(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Snapshot returns the visibility-filtered view shared with the
// stateless algorithm functions.
func (g *AddWinsGraph[T]) Snapshot() Snapshot[T] {
	s := Snapshot[T]{
		Vertices: make(map[VertexID]*Vertex[T]),
		Edges:    make(map[EdgeID]*Edge),
	}
	for id, v := range g.vertices {
		if !v.Meta.Deleted {
			s.Vertices[id] = v
		}
	}
	for id, e := range g.edges {
		if g.edgeVisible(e) {
			s.Edges[id] = e
		}
	}
	return s
}

// ShortestPath runs a breadth-first search over visible edges. See the
// package-level ShortestPath for the contract.
func (g *AddWinsGraph[T]) ShortestPath(source, target VertexID) []VertexID {
	start := time.Now()
	path := ShortestPath(g.Snapshot(), source, target)
	recordQuery("add_wins", "shortest_path", time.Since(start), len(path))
	return path
}

// ConnectedComponents groups visible vertices into undirected components.
func (g *AddWinsGraph[T]) ConnectedComponents() [][]VertexID {
	start := time.Now()
	comps := ConnectedComponents(g.Snapshot())
	recordQuery("add_wins", "connected_components", time.Since(start), len(comps))
	return comps
}

// Density returns visible edges over the maximum possible for a simple
// directed graph on the visible vertices.
func (g *AddWinsGraph[T]) Density() float64 {
	return Density(g.Snapshot())
}

// FindSources returns visible vertices with no visible incoming edges.
func (g *AddWinsGraph[T]) FindSources() []VertexID {
	return FindSources(g.Snapshot())
}

// FindSinks returns visible vertices with no visible outgoing edges.
func (g *AddWinsGraph[T]) FindSinks() []VertexID {
	return FindSinks(g.Snapshot())
}

// Merge folds other into the receiver. Per id, a record absent locally
// is inserted; a record present on both sides resolves to the one with
// the later modification, ties broken by writer ReplicaID bytes. The
// tombstone flag travels with the winning record, which is what lets a
// later update resurrect a deleted element. Capacity limits are not
// enforced during merge; replicas must converge on identical state.
func (g *AddWinsGraph[T]) Merge(other *AddWinsGraph[T]) error {
	if other == nil {
		return crdt.ErrInvalidSnapshot
	}
	start := time.Now()

	for id, theirs := range other.vertices {
		ours, ok := g.vertices[id]
		if !ok || theirs.Meta.NewerThan(ours.Meta) {
			g.vertices[id] = theirs.Clone()
		}
	}
	for id, theirs := range other.edges {
		ours, ok := g.edges[id]
		if !ok {
			e := theirs.Clone()
			g.edges[id] = e
			g.indexEdge(e)
			continue
		}
		if theirs.Meta.NewerThan(ours.Meta) {
			// Endpoints are immutable, so the index entry stays valid.
			g.edges[id] = theirs.Clone()
		}
	}

	recordMerge("add_wins", time.Since(start), len(g.vertices), len(g.edges))
	return nil
}

// HasConflict reports whether any shared vertex or edge id carries a
// true concurrent write: equal ModifiedAt stamped by different replicas.
func (g *AddWinsGraph[T]) HasConflict(other *AddWinsGraph[T]) bool {
	if other == nil {
		return false
	}
	for id, theirs := range other.vertices {
		if ours, ok := g.vertices[id]; ok && ours.Meta.ConcurrentWith(theirs.Meta) {
			return true
		}
	}
	for id, theirs := range other.edges {
		if ours, ok := g.edges[id]; ok && ours.Meta.ConcurrentWith(theirs.Meta) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the graph.
func (g *AddWinsGraph[T]) Clone() *AddWinsGraph[T] {
	cp := &AddWinsGraph[T]{
		replica:  g.replica,
		opts:     g.opts,
		vertices: make(map[VertexID]*Vertex[T], len(g.vertices)),
		edges:    make(map[EdgeID]*Edge, len(g.edges)),
		outgoing: make(map[VertexID][]EdgeID, len(g.outgoing)),
		incoming: make(map[VertexID][]EdgeID, len(g.incoming)),
	}
	for id, v := range g.vertices {
		cp.vertices[id] = v.Clone()
	}
	for id, e := range g.edges {
		ce := e.Clone()
		cp.edges[id] = ce
		cp.indexEdge(ce)
	}
	return cp
}

// vertexVisible reports whether id exists and is not tombstoned.
func (g *AddWinsGraph[T]) vertexVisible(id VertexID) bool {
	v, ok := g.vertices[id]
	return ok && !v.Meta.Deleted
}

// edgeVisible reports whether the edge and both endpoints are visible.
func (g *AddWinsGraph[T]) edgeVisible(e *Edge) bool {
	return !e.Meta.Deleted && g.vertexVisible(e.Source) && g.vertexVisible(e.Target)
}

// hasVisibleEdge reports whether a visible edge source->target exists.
func (g *AddWinsGraph[T]) hasVisibleEdge(source, target VertexID) bool {
	for _, eid := range g.outgoing[source] {
		e := g.edges[eid]
		if e.Target == target && g.edgeVisible(e) {
			return true
		}
	}
	return false
}

// indexEdge records the edge under both endpoints.
func (g *AddWinsGraph[T]) indexEdge(e *Edge) {
	g.outgoing[e.Source] = append(g.outgoing[e.Source], e.ID)
	g.incoming[e.Target] = append(g.incoming[e.Target], e.ID)
}

// rebuildIndex reconstructs the adjacency indexes from the edge map.
func (g *AddWinsGraph[T]) rebuildIndex() {
	g.outgoing = make(map[VertexID][]EdgeID, len(g.vertices))
	g.incoming = make(map[VertexID][]EdgeID, len(g.vertices))
	for _, e := range g.edges {
		g.indexEdge(e)
	}
}

// awGraphState is the wire form of AddWinsGraph. Tombstones are part of
// the state; dropping them would break add-wins resurrection.
type awGraphState[T any] struct {
	Replica  crdt.ReplicaID          `json:"replica"`
	Options  Options                 `json:"options"`
	Vertices map[VertexID]*Vertex[T] `json:"vertices"`
	Edges    map[EdgeID]*Edge        `json:"edges"`
}

// MarshalJSON serializes the full graph state, tombstones included.
func (g *AddWinsGraph[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(awGraphState[T]{
		Replica:  g.replica,
		Options:  g.opts,
		Vertices: g.vertices,
		Edges:    g.edges,
	})
}

// UnmarshalJSON restores graph state and rebuilds the adjacency indexes.
// On error the receiver is left untouched.
func (g *AddWinsGraph[T]) UnmarshalJSON(data []byte) error {
	var state awGraphState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return crdt.ErrInvalidSnapshot
	}
	if state.Vertices == nil {
		state.Vertices = make(map[VertexID]*Vertex[T])
	}
	if state.Edges == nil {
		state.Edges = make(map[EdgeID]*Edge)
	}
	g.replica = state.Replica
	g.opts = state.Options
	g.vertices = state.Vertices
	g.edges = state.Edges
	g.rebuildIndex()
	return nil
}
