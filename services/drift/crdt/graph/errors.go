// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides replicated directed graph types in two deletion
// flavors: add-wins and remove-wins.
//
// Both flavors expose the same operation surface. They differ only in
// what deletion means:
//   - AddWinsGraph tombstones deleted elements. The record stays in the
//     structure, visible queries filter it out, and a later update can
//     make it visible again: add wins over concurrent remove.
//   - RemoveWinsGraph physically erases deleted elements together with
//     incident edges, remembering only the bare removed ids. Merge
//     unions those id sets, so once a removal reaches a replica the
//     element never comes back, even from a later-stamped concurrent
//     update: remove wins. Replicas that have not yet received the
//     removal keep showing the element until it arrives.
//
// # Deletion Visibility
//
// Under add-wins, GetVertex and GetEdge return tombstoned records so the
// caller can inspect Meta.Deleted; every listing and traversal query
// (Vertices, Neighbors, ShortestPath, ...) filters both tombstoned
// endpoints and tombstoned edges. Under remove-wins no filter exists
// because deleted records do not exist.
//
// # Thread Safety
//
// Graphs are NOT safe for concurrent use. Callers serialize access; the
// service layer in services/drift holds one mutex per document.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrVertexNotFound is returned when an operation references a vertex
	// id that is absent from the graph. Under remove-wins a deleted
	// vertex is absent; under add-wins a tombstoned vertex is still found.
	ErrVertexNotFound = errors.New("vertex not found")

	// ErrEdgeNotFound is returned when an operation references an edge id
	// that is absent from the graph.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrEndpointMissing is returned by AddEdge when either endpoint is
	// absent or not visible at the time of the call.
	ErrEndpointMissing = errors.New("edge endpoint missing")

	// ErrSelfLoop is returned by AddEdge for source == target when the
	// graph was not configured to allow self loops.
	ErrSelfLoop = errors.New("self loops not permitted")

	// ErrDuplicateEdge is returned by AddEdge when a visible edge with
	// the same source and target already exists and the graph was not
	// configured to allow parallel edges.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrMaxVerticesExceeded is returned when the graph has reached its
	// configured maximum vertex capacity, tombstones included.
	ErrMaxVerticesExceeded = errors.New("maximum vertex count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph has reached its
	// configured maximum edge capacity, tombstones included.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")
)
