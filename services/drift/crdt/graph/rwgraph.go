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
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// RemoveWinsGraph is a replicated directed graph where deletion
// physically erases the element. Removing a vertex atomically removes
// every incident edge, so stored edges always have both endpoints
// present.
//
// Instead of full tombstone records, the graph remembers only the bare
// ids of removed elements. Merge unions those id sets and filters every
// insertion through them, so once a removal reaches a replica the
// element can never come back, not even from a write with a later
// timestamp: remove wins over concurrent update. The cost is that a
// removed element keeps no metadata, so the last-writer signal for it is
// gone and HasConflict cannot see writes that raced a deletion. A
// replica that has not yet received the removal keeps showing, and even
// updating, the element until the removal arrives; that transient is
// accepted.
//
// Thread safety and timestamp conventions match AddWinsGraph.
type RemoveWinsGraph[T any] struct {
	replica  crdt.ReplicaID
	opts     Options
	vertices map[VertexID]*Vertex[T]
	edges    map[EdgeID]*Edge
	outgoing map[VertexID][]EdgeID
	incoming map[VertexID][]EdgeID

	// removedVertices and removedEdges are grow-only id sets. They are
	// consulted only by merge and serialization, never by queries.
	removedVertices mapset.Set[VertexID]
	removedEdges    mapset.Set[EdgeID]
}

// NewRemoveWinsGraph creates an empty remove-wins graph owned by replica.
func NewRemoveWinsGraph[T any](replica crdt.ReplicaID, opts ...Option) *RemoveWinsGraph[T] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &RemoveWinsGraph[T]{
		replica:         replica,
		opts:            options,
		vertices:        make(map[VertexID]*Vertex[T]),
		edges:           make(map[EdgeID]*Edge),
		outgoing:        make(map[VertexID][]EdgeID),
		incoming:        make(map[VertexID][]EdgeID),
		removedVertices: mapset.NewThreadUnsafeSet[VertexID](),
		removedEdges:    mapset.NewThreadUnsafeSet[EdgeID](),
	}
}

// Replica returns the identity of the replica owning this instance.
func (g *RemoveWinsGraph[T]) Replica() crdt.ReplicaID {
	return g.replica
}

// AddVertex inserts a new vertex with a fresh id. It fails only when the
// configured vertex capacity is reached.
func (g *RemoveWinsGraph[T]) AddVertex(value T, ts uint64) (VertexID, error) {
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

// AddEdge inserts a directed edge between two existing vertices. Errors
// match AddWinsGraph.AddEdge.
func (g *RemoveWinsGraph[T]) AddEdge(source, target VertexID, ts uint64, weight *float64) (EdgeID, error) {
	if _, ok := g.vertices[source]; !ok {
		return "", ErrEndpointMissing
	}
	if _, ok := g.vertices[target]; !ok {
		return "", ErrEndpointMissing
	}
	if source == target && !g.opts.AllowSelfLoops {
		return "", ErrSelfLoop
	}
	if !g.opts.AllowMultiEdges && g.hasEdge(source, target) {
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
// A removed vertex cannot be updated; the record no longer exists.
func (g *RemoveWinsGraph[T]) UpdateVertex(id VertexID, value T, ts uint64) error {
	v, ok := g.vertices[id]
	if !ok {
		return ErrVertexNotFound
	}
	v.Value = value
	v.Meta.Touch(g.replica, ts)
	return nil
}

// UpdateEdge overwrites the edge weight and stamps the modification.
func (g *RemoveWinsGraph[T]) UpdateEdge(id EdgeID, weight *float64, ts uint64) error {
	e, ok := g.edges[id]
	if !ok {
		return ErrEdgeNotFound
	}
	e.Weight = weight
	e.Meta.Touch(g.replica, ts)
	return nil
}

// RemoveVertex erases the vertex and every incident edge in one step and
// records their ids so the removal propagates through future merges.
// The timestamp is accepted for surface symmetry with the add-wins
// flavor; an id-only removal carries no stamp.
func (g *RemoveWinsGraph[T]) RemoveVertex(id VertexID, ts uint64) error {
	if _, ok := g.vertices[id]; !ok {
		return ErrVertexNotFound
	}

	incident := make(map[EdgeID]struct{})
	for _, eid := range g.outgoing[id] {
		incident[eid] = struct{}{}
	}
	for _, eid := range g.incoming[id] {
		incident[eid] = struct{}{}
	}
	for eid := range incident {
		g.deleteEdge(eid)
		g.removedEdges.Add(eid)
	}

	delete(g.vertices, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	g.removedVertices.Add(id)
	return nil
}

// RemoveEdge erases the edge and records its id. The timestamp is
// accepted for surface symmetry only.
func (g *RemoveWinsGraph[T]) RemoveEdge(id EdgeID, ts uint64) error {
	if _, ok := g.edges[id]; !ok {
		return ErrEdgeNotFound
	}
	g.deleteEdge(id)
	g.removedEdges.Add(id)
	return nil
}

// GetVertex returns the stored vertex record.
func (g *RemoveWinsGraph[T]) GetVertex(id VertexID) (*Vertex[T], error) {
	v, ok := g.vertices[id]
	if !ok {
		return nil, ErrVertexNotFound
	}
	return v, nil
}

// ContainsVertex reports whether the vertex exists.
func (g *RemoveWinsGraph[T]) ContainsVertex(id VertexID) bool {
	_, ok := g.vertices[id]
	return ok
}

// GetEdge returns the stored edge record.
func (g *RemoveWinsGraph[T]) GetEdge(id EdgeID) (*Edge, error) {
	e, ok := g.edges[id]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	return e, nil
}

// Vertices returns all vertices in no particular order. No visibility
// filter applies: deleted records do not exist.
func (g *RemoveWinsGraph[T]) Vertices() []*Vertex[T] {
	out := make([]*Vertex[T], 0, len(g.vertices))
	for _, v := range g.vertices {
		out = append(out, v)
	}
	return out
}

// Edges returns all edges in no particular order.
func (g *RemoveWinsGraph[T]) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// VertexCount returns the number of stored vertices.
func (g *RemoveWinsGraph[T]) VertexCount() int {
	return len(g.vertices)
}

// EdgeCount returns the number of stored edges.
func (g *RemoveWinsGraph[T]) EdgeCount() int {
	return len(g.edges)
}

// Neighbors returns the targets of outgoing edges.
func (g *RemoveWinsGraph[T]) Neighbors(id VertexID) ([]VertexID, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	seen := make(map[VertexID]struct{})
	var out []VertexID
	for _, eid := range g.outgoing[id] {
		e := g.edges[eid]
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out, nil
}

// OutgoingEdges returns the edges originating at id.
func (g *RemoveWinsGraph[T]) OutgoingEdges(id VertexID) ([]*Edge, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	var out []*Edge
	for _, eid := range g.outgoing[id] {
		out = append(out, g.edges[eid])
	}
	return out, nil
}

// IncomingEdges returns the edges terminating at id.
func (g *RemoveWinsGraph[T]) IncomingEdges(id VertexID) ([]*Edge, error) {
	if _, ok := g.vertices[id]; !ok {
		return nil, ErrVertexNotFound
	}
	var out []*Edge
	for _, eid := range g.incoming[id] {
		out = append(out, g.edges[eid])
	}
	return out, nil
}

// Snapshot returns the full graph as the shared algorithm view.
func (g *RemoveWinsGraph[T]) Snapshot() Snapshot[T] {
	s := Snapshot[T]{
		Vertices: make(map[VertexID]*Vertex[T], len(g.vertices)),
		Edges:    make(map[EdgeID]*Edge, len(g.edges)),
	}
	for id, v := range g.vertices {
		s.Vertices[id] = v
	}
	for id, e := range g.edges {
		s.Edges[id] = e
	}
	return s
}

// ShortestPath runs a breadth-first search. See the package-level
// ShortestPath for the contract.
func (g *RemoveWinsGraph[T]) ShortestPath(source, target VertexID) []VertexID {
	start := time.Now()
	path := ShortestPath(g.Snapshot(), source, target)
	recordQuery("remove_wins", "shortest_path", time.Since(start), len(path))
	return path
}

// ConnectedComponents groups vertices into undirected components.
func (g *RemoveWinsGraph[T]) ConnectedComponents() [][]VertexID {
	start := time.Now()
	comps := ConnectedComponents(g.Snapshot())
	recordQuery("remove_wins", "connected_components", time.Since(start), len(comps))
	return comps
}

// Density returns stored edges over the maximum possible for a simple
// graph on the stored vertices.
func (g *RemoveWinsGraph[T]) Density() float64 {
	return Density(g.Snapshot())
}

// FindSources returns vertices with no incoming edges.
func (g *RemoveWinsGraph[T]) FindSources() []VertexID {
	return FindSources(g.Snapshot())
}

// FindSinks returns vertices with no outgoing edges.
func (g *RemoveWinsGraph[T]) FindSinks() []VertexID {
	return FindSinks(g.Snapshot())
}

// Merge folds other into the receiver. Removed-id sets union first and
// dominate everything after: a record whose id is removed on either side
// is dropped locally and never inserted, regardless of timestamps.
// Surviving records present on both sides resolve by the shared LWW
// rule; records only the other side holds are inserted. An inserted
// edge whose endpoint turns out removed is cascaded into the removed
// set so the cleanup itself propagates.
func (g *RemoveWinsGraph[T]) Merge(other *RemoveWinsGraph[T]) error {
	if other == nil {
		return crdt.ErrInvalidSnapshot
	}
	// A well-formed remove-wins graph never holds a dangling edge.
	for _, e := range other.edges {
		if _, ok := other.vertices[e.Source]; !ok {
			return crdt.ErrInvalidSnapshot
		}
		if _, ok := other.vertices[e.Target]; !ok {
			return crdt.ErrInvalidSnapshot
		}
	}
	start := time.Now()

	g.removedVertices = g.removedVertices.Union(other.removedVertices)
	g.removedEdges = g.removedEdges.Union(other.removedEdges)

	// Apply newly-learned removals to local records.
	for _, e := range g.edges {
		if g.removedEdges.Contains(e.ID) ||
			g.removedVertices.Contains(e.Source) ||
			g.removedVertices.Contains(e.Target) {
			g.deleteEdge(e.ID)
			g.removedEdges.Add(e.ID)
		}
	}
	for id := range g.vertices {
		if g.removedVertices.Contains(id) {
			delete(g.vertices, id)
			delete(g.outgoing, id)
			delete(g.incoming, id)
		}
	}

	// Absorb the other side's surviving records.
	for id, theirs := range other.vertices {
		if g.removedVertices.Contains(id) {
			continue
		}
		ours, ok := g.vertices[id]
		if !ok || theirs.Meta.NewerThan(ours.Meta) {
			g.vertices[id] = theirs.Clone()
		}
	}
	for id, theirs := range other.edges {
		if g.removedEdges.Contains(id) {
			continue
		}
		if g.removedVertices.Contains(theirs.Source) || g.removedVertices.Contains(theirs.Target) {
			g.removedEdges.Add(id)
			continue
		}
		ours, ok := g.edges[id]
		if !ok {
			e := theirs.Clone()
			g.edges[id] = e
			g.indexEdge(e)
			continue
		}
		if theirs.Meta.NewerThan(ours.Meta) {
			g.edges[id] = theirs.Clone()
		}
	}

	recordMerge("remove_wins", time.Since(start), len(g.vertices), len(g.edges))
	return nil
}

// HasConflict reports whether any shared surviving vertex or edge id
// carries a true concurrent write. Removed elements retain no metadata
// and therefore never report conflicts.
func (g *RemoveWinsGraph[T]) HasConflict(other *RemoveWinsGraph[T]) bool {
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
func (g *RemoveWinsGraph[T]) Clone() *RemoveWinsGraph[T] {
	cp := &RemoveWinsGraph[T]{
		replica:         g.replica,
		opts:            g.opts,
		vertices:        make(map[VertexID]*Vertex[T], len(g.vertices)),
		edges:           make(map[EdgeID]*Edge, len(g.edges)),
		outgoing:        make(map[VertexID][]EdgeID, len(g.outgoing)),
		incoming:        make(map[VertexID][]EdgeID, len(g.incoming)),
		removedVertices: g.removedVertices.Clone(),
		removedEdges:    g.removedEdges.Clone(),
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

// hasEdge reports whether any edge source->target exists.
func (g *RemoveWinsGraph[T]) hasEdge(source, target VertexID) bool {
	for _, eid := range g.outgoing[source] {
		if g.edges[eid].Target == target {
			return true
		}
	}
	return false
}

// indexEdge records the edge under both endpoints.
func (g *RemoveWinsGraph[T]) indexEdge(e *Edge) {
	g.outgoing[e.Source] = append(g.outgoing[e.Source], e.ID)
	g.incoming[e.Target] = append(g.incoming[e.Target], e.ID)
}

// deleteEdge erases the edge and its index entries.
func (g *RemoveWinsGraph[T]) deleteEdge(id EdgeID) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	delete(g.edges, id)
	g.outgoing[e.Source] = dropEdgeID(g.outgoing[e.Source], id)
	g.incoming[e.Target] = dropEdgeID(g.incoming[e.Target], id)
}

// dropEdgeID removes one id from a slice without preserving order.
func dropEdgeID(ids []EdgeID, id EdgeID) []EdgeID {
	for i, candidate := range ids {
		if candidate == id {
			ids[i] = ids[len(ids)-1]
			return ids[:len(ids)-1]
		}
	}
	return ids
}

// rwGraphState is the wire form of RemoveWinsGraph. Removed ids are part
// of the state: dropping them would let a merge resurrect deletions.
// They serialize as sorted arrays for stable output.
type rwGraphState[T any] struct {
	Replica         crdt.ReplicaID          `json:"replica"`
	Options         Options                 `json:"options"`
	Vertices        map[VertexID]*Vertex[T] `json:"vertices"`
	Edges           map[EdgeID]*Edge        `json:"edges"`
	RemovedVertices []VertexID              `json:"removed_vertices"`
	RemovedEdges    []EdgeID                `json:"removed_edges"`
}

// MarshalJSON serializes the full graph state, removed ids included.
func (g *RemoveWinsGraph[T]) MarshalJSON() ([]byte, error) {
	rv := g.removedVertices.ToSlice()
	sort.Slice(rv, func(i, j int) bool { return rv[i] < rv[j] })
	re := g.removedEdges.ToSlice()
	sort.Slice(re, func(i, j int) bool { return re[i] < re[j] })

	return json.Marshal(rwGraphState[T]{
		Replica:         g.replica,
		Options:         g.opts,
		Vertices:        g.vertices,
		Edges:           g.edges,
		RemovedVertices: rv,
		RemovedEdges:    re,
	})
}

// UnmarshalJSON restores graph state, rejects dangling edges, and
// rebuilds the adjacency indexes. On error the receiver is untouched.
func (g *RemoveWinsGraph[T]) UnmarshalJSON(data []byte) error {
	var state rwGraphState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return crdt.ErrInvalidSnapshot
	}
	if state.Vertices == nil {
		state.Vertices = make(map[VertexID]*Vertex[T])
	}
	if state.Edges == nil {
		state.Edges = make(map[EdgeID]*Edge)
	}
	for _, e := range state.Edges {
		if _, ok := state.Vertices[e.Source]; !ok {
			return crdt.ErrInvalidSnapshot
		}
		if _, ok := state.Vertices[e.Target]; !ok {
			return crdt.ErrInvalidSnapshot
		}
	}
	g.replica = state.Replica
	g.opts = state.Options
	g.vertices = state.Vertices
	g.edges = state.Edges
	g.removedVertices = mapset.NewThreadUnsafeSet(state.RemovedVertices...)
	g.removedEdges = mapset.NewThreadUnsafeSet(state.RemovedEdges...)
	g.rebuildIndex()
	return nil
}

// rebuildIndex reconstructs the adjacency indexes from the edge map.
func (g *RemoveWinsGraph[T]) rebuildIndex() {
	g.outgoing = make(map[VertexID][]EdgeID, len(g.vertices))
	g.incoming = make(map[VertexID][]EdgeID, len(g.vertices))
	for _, e := range g.edges {
		g.indexEdge(e)
	}
}
