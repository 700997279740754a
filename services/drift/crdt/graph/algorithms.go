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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// ShortestPath returns a minimum-hop path from source to target over the
// snapshot's directed edges, endpoints included. It returns nil when
// either endpoint is absent or target is unreachable. When several
// shortest paths exist the choice between them is arbitrary; only the
// hop count is guaranteed.
func ShortestPath[T any](s Snapshot[T], source, target VertexID) []VertexID {
	if _, ok := s.Vertices[source]; !ok {
		return nil
	}
	if _, ok := s.Vertices[target]; !ok {
		return nil
	}
	if source == target {
		return []VertexID{source}
	}

	visited := mapset.NewThreadUnsafeSet[VertexID](source)
	parent := make(map[VertexID]VertexID)
	queue := []VertexID{source}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range s.Neighbors(current) {
			if !visited.Add(next) {
				continue
			}
			parent[next] = current
			if next == target {
				return buildPath(parent, source, target)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// buildPath walks the parent links back from target to source.
func buildPath(parent map[VertexID]VertexID, source, target VertexID) []VertexID {
	var path []VertexID
	for at := target; ; at = parent[at] {
		path = append(path, at)
		if at == source {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ConnectedComponents partitions the snapshot's vertices into weakly
// connected components, treating every edge as undirected. Component
// membership is deterministic; for stable output the ids inside each
// component are sorted and components are ordered by their smallest id.
func ConnectedComponents[T any](s Snapshot[T]) [][]VertexID {
	visited := mapset.NewThreadUnsafeSet[VertexID]()
	var components [][]VertexID

	for id := range s.Vertices {
		if visited.Contains(id) {
			continue
		}

		var component []VertexID
		queue := []VertexID{id}
		visited.Add(id)
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			component = append(component, current)

			for _, next := range s.undirectedNeighbors(current) {
				if visited.Add(next) {
					queue = append(queue, next)
				}
			}
		}

		sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })
		components = append(components, component)
	}

	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}

// Density returns the edge count over the maximum possible for a simple
// undirected graph on the same vertices, n*(n-1)/2. Graphs with fewer
// than two vertices have density zero. Because stored edges are directed
// and may be parallel, the value can exceed 1.
func Density[T any](s Snapshot[T]) float64 {
	n := len(s.Vertices)
	if n < 2 {
		return 0
	}
	maxEdges := float64(n*(n-1)) / 2
	return float64(len(s.Edges)) / maxEdges
}

// FindSources returns the ids with no incoming edges, sorted.
func FindSources[T any](s Snapshot[T]) []VertexID {
	targets := mapset.NewThreadUnsafeSet[VertexID]()
	for _, e := range s.Edges {
		targets.Add(e.Target)
	}

	var out []VertexID
	for id := range s.Vertices {
		if !targets.Contains(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindSinks returns the ids with no outgoing edges, sorted.
func FindSinks[T any](s Snapshot[T]) []VertexID {
	sources := mapset.NewThreadUnsafeSet[VertexID]()
	for _, e := range s.Edges {
		sources.Add(e.Source)
	}

	var out []VertexID
	for id := range s.Vertices {
		if !sources.Contains(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
