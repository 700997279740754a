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
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/graph"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/resolve"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/sequence"
)

// Kind identifies the CRDT flavor behind a document.
type Kind string

const (
	KindRegister  Kind = "register"
	KindCounter   Kind = "counter"
	KindPNCounter Kind = "pncounter"
	KindMap       Kind = "map"
	KindAWGraph   Kind = "awgraph"
	KindRWGraph   Kind = "rwgraph"
	KindRGA       Kind = "rga"
	KindTree      Kind = "tree"
)

// Kinds returns the supported document kinds in stable order.
func Kinds() []Kind {
	return []Kind{
		KindRegister, KindCounter, KindPNCounter, KindMap,
		KindAWGraph, KindRWGraph, KindRGA, KindTree,
	}
}

// Operation is one mutation in an operation batch. The action set
// depends on the document kind; unused fields are ignored.
type Operation struct {
	// Action names the mutation: set, delete, increment, decrement,
	// append, insert, add_root, add_child, update, add_vertex,
	// update_vertex, remove_vertex, add_edge, update_edge, remove_edge.
	Action string `json:"action" binding:"required"`

	// Key addresses a map entry.
	Key string `json:"key,omitempty"`

	// Value is the payload for writes.
	Value string `json:"value,omitempty"`

	// Delta is the counter step. Zero defaults to one.
	Delta uint64 `json:"delta,omitempty"`

	// Index addresses a visible sequence element.
	Index int `json:"index,omitempty"`

	// Parent and Pos address tree nodes by position key.
	Parent string `json:"parent,omitempty"`
	Pos    string `json:"pos,omitempty"`

	// ID, Source, Target, and Weight address graph elements.
	ID     string   `json:"id,omitempty"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target,omitempty"`
	Weight *float64 `json:"weight,omitempty"`

	// At is the wall-clock timestamp for LWW kinds. Zero means now.
	At time.Time `json:"at,omitempty"`
}

func (op Operation) timestamp() time.Time {
	if op.At.IsZero() {
		return time.Now()
	}
	return op.At
}

func (op Operation) step() uint64 {
	if op.Delta == 0 {
		return 1
	}
	return op.Delta
}

// document adapts one CRDT instance to the uniform surface the service
// exposes: apply operations, materialize a view, exchange snapshots.
type document interface {
	Kind() Kind

	// View returns the materialized read model for API responses.
	View() any

	// Apply performs one local mutation.
	Apply(op Operation) error

	// Snapshot serializes the full state.
	Snapshot() ([]byte, error)

	// Merge folds a remote snapshot payload in. Decoding happens into a
	// temporary, so a malformed payload never corrupts local state. The
	// docID names the document in conflict records.
	Merge(docID string, payload []byte) error
}

// newDocument constructs an empty document of the given kind owned by
// replica. The strategy governs true conflicts on the LWW kinds; the
// other kinds merge without arbitrary tie-breaks and ignore it.
func newDocument(kind Kind, replica crdt.ReplicaID, strategy resolve.Strategy) (document, error) {
	switch kind {
	case KindRegister:
		res := resolve.NewResolver[*crdt.LWWRegister[string]](strategy)
		res.Register(textConflict, mergeTextRegisters)
		return &registerDoc{reg: crdt.NewLWWRegister[string](replica), res: res}, nil
	case KindCounter:
		return &counterDoc{counter: crdt.NewGCounter(replica)}, nil
	case KindPNCounter:
		return &pnCounterDoc{counter: crdt.NewPNCounter(replica)}, nil
	case KindMap:
		res := resolve.NewResolver[*crdt.LWWMap[string]](strategy)
		res.Register(mapConflict, mergeMapUnion)
		return &mapDoc{m: crdt.NewLWWMap[string](replica), res: res}, nil
	case KindAWGraph:
		return &awGraphDoc{g: graph.NewAddWinsGraph[string](replica)}, nil
	case KindRWGraph:
		return &rwGraphDoc{g: graph.NewRemoveWinsGraph[string](replica)}, nil
	case KindRGA:
		return &rgaDoc{seq: sequence.NewRGA[string](replica)}, nil
	case KindTree:
		return &treeDoc{tree: sequence.NewTree[string](replica)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Conflict type tags for the built-in custom mergers.
const (
	textConflict = "text"
	mapConflict  = "map"
)

// mergeTextRegisters is the built-in text merger: both concurrent
// writes survive. Values are joined in writer order so every replica
// produces the same result, and the joined value is stamped one
// nanosecond later so it wins over either input on the next merge.
func mergeTextRegisters(local, remote *crdt.LWWRegister[string]) (*crdt.LWWRegister[string], error) {
	first, second := local, remote
	if remote.UpdatedBy().Compare(local.UpdatedBy()) < 0 {
		first, second = remote, local
	}
	value := first.Value()
	if second.Value() != first.Value() {
		value = first.Value() + "\n" + second.Value()
	}
	merged := local.Clone()
	merged.Set(value, local.UpdatedAt().Add(time.Nanosecond))
	return merged, nil
}

// mergeMapUnion is the built-in map merger: the keyed LWW union. Map
// conflicts are per-key, and the union already settles each key
// deterministically.
func mergeMapUnion(local, remote *crdt.LWWMap[string]) (*crdt.LWWMap[string], error) {
	merged := local.Clone()
	if err := merged.Merge(remote); err != nil {
		return nil, err
	}
	return merged, nil
}

// --- register ---

type registerDoc struct {
	reg *crdt.LWWRegister[string]
	res *resolve.Resolver[*crdt.LWWRegister[string]]
}

func (d *registerDoc) Kind() Kind { return KindRegister }

func (d *registerDoc) View() any {
	return map[string]any{
		"value":      d.reg.Value(),
		"updated_at": d.reg.UpdatedAt(),
		"updated_by": d.reg.UpdatedBy(),
	}
}

func (d *registerDoc) Apply(op Operation) error {
	switch op.Action {
	case "set":
		d.reg.Set(op.Value, op.timestamp())
		return nil
	default:
		return fmt.Errorf("%w: register does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *registerDoc) Snapshot() ([]byte, error) { return json.Marshal(d.reg) }

func (d *registerDoc) Merge(docID string, payload []byte) error {
	remote := &crdt.LWWRegister[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	resolution, err := d.res.Resolve(d.reg, remote, resolve.ConflictMetadata{
		DocumentID:   docID,
		ConflictType: textConflict,
		Local:        crdt.NewMetadata(d.reg.UpdatedBy(), uint64(d.reg.UpdatedAt().UnixNano())),
		Remote:       crdt.NewMetadata(remote.UpdatedBy(), uint64(remote.UpdatedAt().UnixNano())),
	})
	if err != nil {
		return err
	}
	if resolution.ConflictsResolved == 0 {
		return d.reg.Merge(remote)
	}
	d.reg = resolution.Value
	return nil
}

// --- counters ---

type counterDoc struct {
	counter *crdt.GCounter
}

func (d *counterDoc) Kind() Kind { return KindCounter }

func (d *counterDoc) View() any {
	return map[string]any{"value": d.counter.Value()}
}

func (d *counterDoc) Apply(op Operation) error {
	switch op.Action {
	case "increment":
		d.counter.Increment(op.step())
		return nil
	default:
		return fmt.Errorf("%w: counter does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *counterDoc) Snapshot() ([]byte, error) { return json.Marshal(d.counter) }

func (d *counterDoc) Merge(_ string, payload []byte) error {
	remote := &crdt.GCounter{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.counter.Merge(remote)
}

type pnCounterDoc struct {
	counter *crdt.PNCounter
}

func (d *pnCounterDoc) Kind() Kind { return KindPNCounter }

func (d *pnCounterDoc) View() any {
	return map[string]any{"value": d.counter.Value()}
}

func (d *pnCounterDoc) Apply(op Operation) error {
	switch op.Action {
	case "increment":
		d.counter.Increment(op.step())
		return nil
	case "decrement":
		d.counter.Decrement(op.step())
		return nil
	default:
		return fmt.Errorf("%w: pncounter does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *pnCounterDoc) Snapshot() ([]byte, error) { return json.Marshal(d.counter) }

func (d *pnCounterDoc) Merge(_ string, payload []byte) error {
	remote := &crdt.PNCounter{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.counter.Merge(remote)
}

// --- map ---

type mapDoc struct {
	m   *crdt.LWWMap[string]
	res *resolve.Resolver[*crdt.LWWMap[string]]
}

func (d *mapDoc) Kind() Kind { return KindMap }

func (d *mapDoc) View() any {
	entries := make(map[string]string, d.m.Len())
	for _, key := range d.m.Keys() {
		if value, ok := d.m.Get(key); ok {
			entries[key] = value
		}
	}
	return map[string]any{"entries": entries, "len": d.m.Len()}
}

func (d *mapDoc) Apply(op Operation) error {
	if op.Key == "" {
		return fmt.Errorf("%w: map operations require a key", ErrInvalidOp)
	}
	switch op.Action {
	case "set":
		d.m.Set(op.Key, op.Value, op.timestamp())
		return nil
	case "delete":
		d.m.Delete(op.Key, op.timestamp())
		return nil
	default:
		return fmt.Errorf("%w: map does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *mapDoc) Snapshot() ([]byte, error) { return json.Marshal(d.m) }

func (d *mapDoc) Merge(docID string, payload []byte) error {
	remote := &crdt.LWWMap[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	// Map conflicts are per-key; the side-level metadata carries only
	// the writer identities, which is what the wholesale strategies
	// tie-break on.
	resolution, err := d.res.Resolve(d.m, remote, resolve.ConflictMetadata{
		DocumentID:   docID,
		ConflictType: mapConflict,
		Local:        crdt.NewMetadata(d.m.Replica(), 0),
		Remote:       crdt.NewMetadata(remote.Replica(), 0),
	})
	if err != nil {
		return err
	}
	if resolution.ConflictsResolved == 0 {
		return d.m.Merge(remote)
	}
	d.m = resolution.Value
	return nil
}

// --- graphs ---

// graphOps is the mutation surface the two graph flavors share.
type graphOps interface {
	AddVertex(value string, ts uint64) (graph.VertexID, error)
	UpdateVertex(id graph.VertexID, value string, ts uint64) error
	RemoveVertex(id graph.VertexID, ts uint64) error
	AddEdge(source, target graph.VertexID, ts uint64, weight *float64) (graph.EdgeID, error)
	UpdateEdge(id graph.EdgeID, weight *float64, ts uint64) error
	RemoveEdge(id graph.EdgeID, ts uint64) error
	Vertices() []*graph.Vertex[string]
	Edges() []*graph.Edge
	VertexCount() int
	EdgeCount() int
	Density() float64
	ConnectedComponents() [][]graph.VertexID
}

func applyGraphOp(g graphOps, op Operation) error {
	// Graph causal ordering runs on caller-supplied timestamps; wall
	// clock nanos give cross-replica comparability without coordination.
	ts := uint64(time.Now().UnixNano())

	switch op.Action {
	case "add_vertex":
		_, err := g.AddVertex(op.Value, ts)
		return err
	case "update_vertex":
		return g.UpdateVertex(graph.VertexID(op.ID), op.Value, ts)
	case "remove_vertex":
		return g.RemoveVertex(graph.VertexID(op.ID), ts)
	case "add_edge":
		_, err := g.AddEdge(graph.VertexID(op.Source), graph.VertexID(op.Target), ts, op.Weight)
		return err
	case "update_edge":
		return g.UpdateEdge(graph.EdgeID(op.ID), op.Weight, ts)
	case "remove_edge":
		return g.RemoveEdge(graph.EdgeID(op.ID), ts)
	default:
		return fmt.Errorf("%w: graph does not support %q", ErrInvalidOp, op.Action)
	}
}

func graphView(g graphOps) any {
	vertices := g.Vertices()
	sort.Slice(vertices, func(i, j int) bool { return vertices[i].ID < vertices[j].ID })
	edges := g.Edges()
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return map[string]any{
		"vertices":     vertices,
		"edges":        edges,
		"vertex_count": g.VertexCount(),
		"edge_count":   g.EdgeCount(),
		"density":      g.Density(),
		"components":   len(g.ConnectedComponents()),
	}
}

type awGraphDoc struct {
	g *graph.AddWinsGraph[string]
}

func (d *awGraphDoc) Kind() Kind                { return KindAWGraph }
func (d *awGraphDoc) View() any                 { return graphView(d.g) }
func (d *awGraphDoc) Apply(op Operation) error  { return applyGraphOp(d.g, op) }
func (d *awGraphDoc) Snapshot() ([]byte, error) { return json.Marshal(d.g) }

func (d *awGraphDoc) Merge(_ string, payload []byte) error {
	remote := &graph.AddWinsGraph[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.g.Merge(remote)
}

type rwGraphDoc struct {
	g *graph.RemoveWinsGraph[string]
}

func (d *rwGraphDoc) Kind() Kind                { return KindRWGraph }
func (d *rwGraphDoc) View() any                 { return graphView(d.g) }
func (d *rwGraphDoc) Apply(op Operation) error  { return applyGraphOp(d.g, op) }
func (d *rwGraphDoc) Snapshot() ([]byte, error) { return json.Marshal(d.g) }

func (d *rwGraphDoc) Merge(_ string, payload []byte) error {
	remote := &graph.RemoveWinsGraph[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.g.Merge(remote)
}

// --- sequence ---

type rgaDoc struct {
	seq *sequence.RGA[string]
}

func (d *rgaDoc) Kind() Kind { return KindRGA }

func (d *rgaDoc) View() any {
	return map[string]any{
		"values": d.seq.Slice(),
		"text":   sequence.Text(d.seq),
		"len":    d.seq.Len(),
	}
}

// visiblePosition returns the position of the idx-th visible element.
func (d *rgaDoc) visiblePosition(idx int) (sequence.PositionID, error) {
	if idx < 0 {
		return nil, fmt.Errorf("%w: negative index", ErrInvalidOp)
	}
	seen := 0
	for _, el := range d.seq.Elements() {
		if el.Meta.Deleted {
			continue
		}
		if seen == idx {
			return el.Position, nil
		}
		seen++
	}
	return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidOp, idx)
}

func (d *rgaDoc) Apply(op Operation) error {
	switch op.Action {
	case "append":
		d.seq.Append(op.Value)
		return nil
	case "insert":
		// Index is the slot the value lands in; 0 inserts at the head.
		var after *sequence.PositionID
		if op.Index > 0 {
			pos, err := d.visiblePosition(op.Index - 1)
			if err != nil {
				return err
			}
			after = &pos
		}
		_, err := d.seq.InsertAfter(op.Value, after)
		return err
	case "delete":
		pos, err := d.visiblePosition(op.Index)
		if err != nil {
			return err
		}
		return d.seq.Delete(pos)
	default:
		return fmt.Errorf("%w: rga does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *rgaDoc) Snapshot() ([]byte, error) { return json.Marshal(d.seq) }

func (d *rgaDoc) Merge(_ string, payload []byte) error {
	remote := &sequence.RGA[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.seq.Merge(remote)
}

type treeDoc struct {
	tree *sequence.Tree[string]
}

func (d *treeDoc) Kind() Kind { return KindTree }

func (d *treeDoc) View() any {
	return map[string]any{
		"root": d.tree.ToTree(),
		"len":  d.tree.Len(),
	}
}

// findPosition resolves a position key to the node's PositionID.
func (d *treeDoc) findPosition(key string) (sequence.PositionID, error) {
	for _, n := range d.tree.Nodes() {
		if n.Position.Key() == key {
			return n.Position, nil
		}
	}
	return nil, fmt.Errorf("%w: no node at %q", ErrInvalidOp, key)
}

func (d *treeDoc) Apply(op Operation) error {
	switch op.Action {
	case "add_root":
		d.tree.AddRoot(op.Value)
		return nil
	case "add_child":
		parent, err := d.findPosition(op.Parent)
		if err != nil {
			return err
		}
		_, err = d.tree.AddChild(parent, op.Value)
		return err
	case "update":
		pos, err := d.findPosition(op.Pos)
		if err != nil {
			return err
		}
		return d.tree.Update(pos, op.Value)
	case "delete":
		pos, err := d.findPosition(op.Pos)
		if err != nil {
			return err
		}
		return d.tree.Delete(pos)
	default:
		return fmt.Errorf("%w: tree does not support %q", ErrInvalidOp, op.Action)
	}
}

func (d *treeDoc) Snapshot() ([]byte, error) { return json.Marshal(d.tree) }

func (d *treeDoc) Merge(_ string, payload []byte) error {
	remote := &sequence.Tree[string]{}
	if err := json.Unmarshal(payload, remote); err != nil {
		return err
	}
	return d.tree.Merge(remote)
}
