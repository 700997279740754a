// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sequence

import (
	"encoding/json"
	"time"

	"github.com/tidwall/btree"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// Node is one entry of a replicated tree: a sequence element plus a
// parent link. The parent is a weak reference by position; an empty
// parent marks a root. Parent links are fixed at creation, which is
// what keeps well-formed replicas cycle-free by construction.
type Node[T any] struct {
	Position PositionID    `json:"position"`
	Parent   PositionID    `json:"parent,omitempty"`
	Value    T             `json:"value"`
	Meta     crdt.Metadata `json:"meta"`
}

// Clone returns a copy of the node. The value is copied by assignment.
func (n *Node[T]) Clone() *Node[T] {
	cp := *n
	cp.Position = n.Position.Clone()
	cp.Parent = n.Parent.Clone()
	return &cp
}

// TreeNode is one node of a materialized tree as produced by ToTree:
// only visible nodes, children in position order.
type TreeNode[T any] struct {
	Position PositionID     `json:"position"`
	Value    T              `json:"value"`
	Children []*TreeNode[T] `json:"children,omitempty"`
}

// Tree is a replicated hierarchy for structured documents. Nodes carry
// the same dense position identifiers as RGA, so siblings order
// deterministically and concurrent child insertions under one parent
// never collide.
//
// Deleting a node tombstones it; children stay attached but the whole
// subtree disappears from ToTree. Merge is a union by position with
// dominant tombstones, exactly like RGA.
//
// The zero value is not usable; construct with NewTree.
type Tree[T any] struct {
	replica crdt.ReplicaID
	clock   crdt.LamportClock
	order   *btree.BTreeG[*Node[T]]
	byKey   map[string]*Node[T]
}

// NewTree creates an empty tree owned by replica.
func NewTree[T any](replica crdt.ReplicaID) *Tree[T] {
	return &Tree[T]{
		replica: replica,
		order:   newNodeTree[T](),
		byKey:   make(map[string]*Node[T]),
	}
}

func newNodeTree[T any]() *btree.BTreeG[*Node[T]] {
	return btree.NewBTreeGOptions(
		func(a, b *Node[T]) bool {
			return a.Position.Compare(b.Position) < 0
		},
		btree.Options{NoLocks: true, Degree: 8},
	)
}

// Replica returns the identity of the replica owning this instance.
func (t *Tree[T]) Replica() crdt.ReplicaID {
	return t.replica
}

// AddRoot inserts a parentless node after every existing position.
// Concurrent roots from different replicas coexist; ToTree materializes
// the one with the smallest position.
func (t *Tree[T]) AddRoot(value T) PositionID {
	var left PositionID
	if last, ok := t.order.Max(); ok {
		left = last.Position
	}
	pos := AllocateBetween(left, nil, t.replica)
	t.insert(&Node[T]{
		Position: pos,
		Value:    value,
		Meta:     crdt.NewMetadata(t.replica, t.clock.Tick()),
	})
	return pos
}

// AddChild inserts a node under parent, positioned after every node
// already in the parent's subtree so siblings keep their insertion
// order and a child cluster follows its parent in document order. The
// parent must exist locally; it may be tombstoned, in which case the
// new child is retained but hidden by the parent's tombstone.
func (t *Tree[T]) AddChild(parent PositionID, value T) (PositionID, error) {
	anchor, ok := t.byKey[parent.Key()]
	if !ok {
		return nil, ErrPositionNotFound
	}
	end := t.subtreeEnd(anchor.Position)
	pos := AllocateBetween(end, t.successor(end), t.replica)
	t.insert(&Node[T]{
		Position: pos,
		Parent:   anchor.Position.Clone(),
		Value:    value,
		Meta:     crdt.NewMetadata(t.replica, t.clock.Tick()),
	})
	return pos, nil
}

// subtreeEnd returns the largest position in root's subtree, following
// parent links over all stored nodes, tombstones included. Returns root
// itself for a leaf.
func (t *Tree[T]) subtreeEnd(root PositionID) PositionID {
	children := make(map[string][]*Node[T])
	t.order.Scan(func(n *Node[T]) bool {
		if !n.Parent.IsZero() {
			key := n.Parent.Key()
			children[key] = append(children[key], n)
		}
		return true
	})

	end := root
	var walk func(pos PositionID)
	walk = func(pos PositionID) {
		for _, c := range children[pos.Key()] {
			if c.Position.Compare(end) > 0 {
				end = c.Position
			}
			walk(c.Position)
		}
	}
	walk(root)
	return end
}

// Update overwrites the node value and stamps the modification.
func (t *Tree[T]) Update(pos PositionID, value T) error {
	n, ok := t.byKey[pos.Key()]
	if !ok {
		return ErrPositionNotFound
	}
	n.Value = value
	n.Meta.Touch(t.replica, t.clock.Tick())
	return nil
}

// Delete tombstones the node. Descendants keep their records and parent
// links but the entire subtree drops out of ToTree.
func (t *Tree[T]) Delete(pos PositionID) error {
	n, ok := t.byKey[pos.Key()]
	if !ok {
		return ErrPositionNotFound
	}
	n.Meta.Deleted = true
	n.Meta.Touch(t.replica, t.clock.Tick())
	return nil
}

// Get returns the value at pos and whether it is present and visible.
func (t *Tree[T]) Get(pos PositionID) (T, bool) {
	n, ok := t.byKey[pos.Key()]
	if !ok || n.Meta.Deleted {
		var zero T
		return zero, false
	}
	return n.Value, true
}

// Len returns the number of stored nodes, tombstones included.
func (t *Tree[T]) Len() int {
	return t.order.Len()
}

// Nodes returns copies of all stored nodes in position order,
// tombstones included. Intended for inspection and tests.
func (t *Tree[T]) Nodes() []Node[T] {
	out := make([]Node[T], 0, t.order.Len())
	t.order.Scan(func(n *Node[T]) bool {
		out = append(out, *n.Clone())
		return true
	})
	return out
}

// ToTree materializes the visible tree. Tombstoned nodes prune their
// whole subtree; orphans (nodes whose parent is absent, for example
// after merging a child whose parent never arrived) are excluded rather
// than promoted. Returns nil when no visible root exists.
func (t *Tree[T]) ToTree() *TreeNode[T] {
	children := make(map[string][]*Node[T])
	var roots []*Node[T]
	t.order.Scan(func(n *Node[T]) bool {
		if n.Parent.IsZero() {
			roots = append(roots, n)
		} else {
			key := n.Parent.Key()
			children[key] = append(children[key], n)
		}
		return true
	})

	for _, root := range roots {
		if root.Meta.Deleted {
			continue
		}
		return t.materialize(root, children)
	}
	return nil
}

// materialize builds the visible subtree under n. Scan order is
// position order, so children arrive sorted.
func (t *Tree[T]) materialize(n *Node[T], children map[string][]*Node[T]) *TreeNode[T] {
	out := &TreeNode[T]{
		Position: n.Position.Clone(),
		Value:    n.Value,
	}
	for _, child := range children[n.Position.Key()] {
		if child.Meta.Deleted {
			continue
		}
		out.Children = append(out.Children, t.materialize(child, children))
	}
	return out
}

// Merge folds other into the receiver: a union of nodes by position
// with dominant tombstones, exactly like RGA. After the union a cycle
// guard runs: parent links never change on well-formed replicas, so a
// cycle can only arrive through malformed input, and rather than
// corrupt the tree the guard deterministically detaches the
// largest-position member of each cycle. Detached nodes become hidden
// orphan roots, identical on every replica.
func (t *Tree[T]) Merge(other *Tree[T]) error {
	if other == nil {
		return crdt.ErrInvalidSnapshot
	}
	start := time.Now()

	other.order.Scan(func(theirs *Node[T]) bool {
		key := theirs.Position.Key()
		ours, ok := t.byKey[key]
		if !ok {
			t.insert(theirs.Clone())
			return true
		}
		if theirs.Meta.NewerThan(ours.Meta) {
			ours.Value = theirs.Value
			ours.Meta.ModifiedAt = theirs.Meta.ModifiedAt
			ours.Meta.LastModifiedBy = theirs.Meta.LastModifiedBy
		}
		if theirs.Meta.Deleted {
			ours.Meta.Deleted = true
		}
		return true
	})

	t.breakCycles()
	t.clock.Observe(other.clock.Now())
	recordMerge("tree", time.Since(start), t.order.Len())
	return nil
}

// HasConflict reports whether any shared position carries a true
// concurrent write: equal ModifiedAt stamped by different replicas.
func (t *Tree[T]) HasConflict(other *Tree[T]) bool {
	if other == nil {
		return false
	}
	conflict := false
	other.order.Scan(func(theirs *Node[T]) bool {
		if ours, ok := t.byKey[theirs.Position.Key()]; ok && ours.Meta.ConcurrentWith(theirs.Meta) {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

// Clone returns an independent copy of the tree.
func (t *Tree[T]) Clone() *Tree[T] {
	cp := NewTree[T](t.replica)
	cp.clock.Observe(t.clock.Now())
	t.order.Scan(func(n *Node[T]) bool {
		cp.insert(n.Clone())
		return true
	})
	return cp
}

func (t *Tree[T]) insert(n *Node[T]) {
	t.order.Set(n)
	t.byKey[n.Position.Key()] = n
}

// successor returns the position directly after pos, or nil when pos is
// the last node.
func (t *Tree[T]) successor(pos PositionID) PositionID {
	var next PositionID
	probe := &Node[T]{Position: pos}
	t.order.Ascend(probe, func(n *Node[T]) bool {
		if n.Position.Equal(pos) {
			return true
		}
		next = n.Position
		return false
	})
	return next
}

// breakCycles detaches the largest-position member of every parent-link
// cycle. Position order is identical on all replicas, so every replica
// detaches the same node and the result converges.
func (t *Tree[T]) breakCycles() {
	resolved := make(map[string]bool, len(t.byKey))

	t.order.Scan(func(start *Node[T]) bool {
		if resolved[start.Position.Key()] {
			return true
		}

		// Walk the parent chain, remembering the order of the visit.
		chain := []*Node[T]{start}
		index := map[string]int{start.Position.Key(): 0}
		for {
			cur := chain[len(chain)-1]
			if cur.Parent.IsZero() {
				break
			}
			parent, ok := t.byKey[cur.Parent.Key()]
			if !ok || resolved[parent.Position.Key()] {
				break
			}
			if at, seen := index[parent.Position.Key()]; seen {
				// chain[at:] closes a loop: detach its largest member.
				largest := parent
				for _, m := range chain[at:] {
					if m.Position.Compare(largest.Position) > 0 {
						largest = m
					}
				}
				largest.Parent = nil
				break
			}
			index[parent.Position.Key()] = len(chain)
			chain = append(chain, parent)
		}

		for _, m := range chain {
			resolved[m.Position.Key()] = true
		}
		return true
	})
}

// treeState is the wire form of Tree. Tombstones are part of the state.
type treeState[T any] struct {
	Replica crdt.ReplicaID `json:"replica"`
	Clock   uint64         `json:"clock"`
	Nodes   []*Node[T]     `json:"nodes"`
}

// MarshalJSON serializes the full tree state in position order.
func (t *Tree[T]) MarshalJSON() ([]byte, error) {
	nodes := make([]*Node[T], 0, t.order.Len())
	t.order.Scan(func(n *Node[T]) bool {
		nodes = append(nodes, n)
		return true
	})
	return json.Marshal(treeState[T]{
		Replica: t.replica,
		Clock:   t.clock.Now(),
		Nodes:   nodes,
	})
}

// UnmarshalJSON restores tree state and rebuilds the position index.
// On error the receiver is left untouched.
func (t *Tree[T]) UnmarshalJSON(data []byte) error {
	var state treeState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return crdt.ErrInvalidSnapshot
	}

	order := newNodeTree[T]()
	byKey := make(map[string]*Node[T], len(state.Nodes))
	for _, n := range state.Nodes {
		if n == nil || n.Position.IsZero() {
			return crdt.ErrInvalidSnapshot
		}
		key := n.Position.Key()
		if _, dup := byKey[key]; dup {
			return crdt.ErrInvalidSnapshot
		}
		order.Set(n)
		byKey[key] = n
	}

	t.replica = state.Replica
	t.clock = crdt.LamportClock{}
	t.clock.Observe(state.Clock)
	t.order = order
	t.byKey = byKey
	t.breakCycles()
	return nil
}
