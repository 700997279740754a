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
	"github.com/oklog/ulid/v2"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// VertexID uniquely identifies a vertex across all replicas. IDs are
// ULIDs in their canonical string form, so they sort roughly by creation
// time and never collide between replicas.
type VertexID string

// EdgeID uniquely identifies an edge across all replicas.
type EdgeID string

// newVertexID allocates a fresh globally-unique vertex id.
func newVertexID() VertexID {
	return VertexID(ulid.Make().String())
}

// newEdgeID allocates a fresh globally-unique edge id.
func newEdgeID() EdgeID {
	return EdgeID(ulid.Make().String())
}

// Vertex is one node of a replicated graph.
type Vertex[T any] struct {
	// ID is the globally-unique identifier allocated at creation.
	ID VertexID `json:"id"`

	// Value is the caller-supplied payload.
	Value T `json:"value"`

	// Meta carries the causal bookkeeping used by merge and the
	// tombstone flag used by the add-wins flavor.
	Meta crdt.Metadata `json:"meta"`
}

// Clone returns a copy of the vertex. The value is copied by assignment.
func (v *Vertex[T]) Clone() *Vertex[T] {
	cp := *v
	return &cp
}

// Edge is a directed connection between two vertices, optionally
// weighted.
type Edge struct {
	// ID is the globally-unique identifier allocated at creation.
	ID EdgeID `json:"id"`

	// Source is the id of the origin vertex.
	Source VertexID `json:"source"`

	// Target is the id of the destination vertex.
	Target VertexID `json:"target"`

	// Weight is an optional edge weight. Nil means unweighted.
	Weight *float64 `json:"weight,omitempty"`

	// Meta carries the causal bookkeeping used by merge and the
	// tombstone flag used by the add-wins flavor.
	Meta crdt.Metadata `json:"meta"`
}

// Clone returns a copy of the edge with its own weight allocation.
func (e *Edge) Clone() *Edge {
	cp := *e
	if e.Weight != nil {
		w := *e.Weight
		cp.Weight = &w
	}
	return &cp
}

// Options configures graph behavior and limits.
type Options struct {
	// MaxVertices caps stored vertices, tombstones included.
	// Zero means unlimited. Default: 1,000,000.
	MaxVertices int

	// MaxEdges caps stored edges, tombstones included.
	// Zero means unlimited. Default: 10,000,000.
	MaxEdges int

	// AllowSelfLoops permits edges with source == target.
	AllowSelfLoops bool

	// AllowMultiEdges permits parallel visible edges between the same
	// ordered vertex pair.
	AllowMultiEdges bool
}

// Default capacity limits.
const (
	DefaultMaxVertices = 1_000_000
	DefaultMaxEdges    = 10_000_000
)

// DefaultOptions returns sensible defaults for graph configuration.
func DefaultOptions() Options {
	return Options{
		MaxVertices: DefaultMaxVertices,
		MaxEdges:    DefaultMaxEdges,
	}
}

// Option is a functional option for configuring a graph.
type Option func(*Options)

// WithMaxVertices sets the maximum number of stored vertices.
func WithMaxVertices(n int) Option {
	return func(o *Options) {
		o.MaxVertices = n
	}
}

// WithMaxEdges sets the maximum number of stored edges.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		o.MaxEdges = n
	}
}

// WithSelfLoops sets whether edges may connect a vertex to itself.
func WithSelfLoops(allow bool) Option {
	return func(o *Options) {
		o.AllowSelfLoops = allow
	}
}

// WithMultiEdges sets whether parallel edges between the same ordered
// pair are permitted.
func WithMultiEdges(allow bool) Option {
	return func(o *Options) {
		o.AllowMultiEdges = allow
	}
}

// Snapshot is a visibility-filtered view of a graph: only the vertices
// and edges a reader should see, with tombstones already removed. The
// stateless algorithm functions operate on snapshots so both graph
// flavors share one implementation.
//
// Snapshots alias the live records. Treat them as read-only and do not
// retain them across mutations.
type Snapshot[T any] struct {
	Vertices map[VertexID]*Vertex[T]
	Edges    map[EdgeID]*Edge
}

// Neighbors returns the ids reachable from v over one outgoing edge, in
// no particular order. Duplicate targets from parallel edges collapse.
func (s Snapshot[T]) Neighbors(v VertexID) []VertexID {
	seen := make(map[VertexID]struct{})
	var out []VertexID
	for _, e := range s.Edges {
		if e.Source != v {
			continue
		}
		if _, dup := seen[e.Target]; dup {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out
}

// undirectedNeighbors returns ids adjacent to v ignoring direction.
// Used by connected components, which interprets the graph as undirected.
func (s Snapshot[T]) undirectedNeighbors(v VertexID) []VertexID {
	seen := make(map[VertexID]struct{})
	var out []VertexID
	for _, e := range s.Edges {
		var other VertexID
		switch v {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out
}
