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
	"strings"
	"time"

	"github.com/tidwall/btree"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// Element is one entry of a replicated sequence: a position, a payload,
// and the causal bookkeeping shared by all Drift CRDTs.
type Element[T any] struct {
	Position PositionID    `json:"position"`
	Value    T             `json:"value"`
	Meta     crdt.Metadata `json:"meta"`
}

// Clone returns a copy of the element. The value is copied by assignment.
func (e *Element[T]) Clone() *Element[T] {
	cp := *e
	cp.Position = e.Position.Clone()
	return &cp
}

// RGA is a replicated growable array: a totally ordered sequence whose
// replicas can insert and delete independently and converge after merge.
// It is the type behind collaborative text.
//
// Elements live in a btree ordered by PositionID, tombstones included.
// Visible queries (Slice, Len, Text) filter tombstones; merge operates
// on the full record set.
//
// The zero value is not usable; construct with NewRGA.
type RGA[T any] struct {
	replica crdt.ReplicaID
	clock   crdt.LamportClock
	items   *btree.BTreeG[*Element[T]]
	byKey   map[string]*Element[T]
	live    int
}

// NewRGA creates an empty sequence owned by replica.
func NewRGA[T any](replica crdt.ReplicaID) *RGA[T] {
	return &RGA[T]{
		replica: replica,
		items:   newElementTree[T](),
		byKey:   make(map[string]*Element[T]),
	}
}

// newElementTree builds the position-ordered storage. Locking is
// disabled: CRDT instances are single-owner by contract.
func newElementTree[T any]() *btree.BTreeG[*Element[T]] {
	return btree.NewBTreeGOptions(
		func(a, b *Element[T]) bool {
			return a.Position.Compare(b.Position) < 0
		},
		btree.Options{NoLocks: true, Degree: 8},
	)
}

// Replica returns the identity of the replica owning this instance.
func (r *RGA[T]) Replica() crdt.ReplicaID {
	return r.replica
}

// InsertAfter places value directly after the element at the given
// position, or at the head of the sequence when after is nil. It
// allocates a fresh position strictly between the anchor and its
// current successor, so the call always succeeds for a valid anchor no
// matter how many concurrent insertions target the same spot.
//
// Inserting after a tombstoned anchor is allowed; the anchor's position
// still orders the sequence even though its value is invisible.
func (r *RGA[T]) InsertAfter(value T, after *PositionID) (PositionID, error) {
	var left, right PositionID
	if after != nil {
		anchor, ok := r.byKey[after.Key()]
		if !ok {
			return nil, ErrPositionNotFound
		}
		left = anchor.Position
		right = r.successor(anchor.Position)
	} else {
		if first, ok := r.items.Min(); ok {
			right = first.Position
		}
	}

	pos := AllocateAfter(left, right, r.replica)
	el := &Element[T]{
		Position: pos,
		Value:    value,
		Meta:     crdt.NewMetadata(r.replica, r.clock.Tick()),
	}
	r.items.Set(el)
	r.byKey[pos.Key()] = el
	r.live++
	return pos, nil
}

// Append places value at the tail of the sequence.
func (r *RGA[T]) Append(value T) PositionID {
	var left PositionID
	if last, ok := r.items.Max(); ok {
		left = last.Position
	}
	pos := AllocateAfter(left, nil, r.replica)
	el := &Element[T]{
		Position: pos,
		Value:    value,
		Meta:     crdt.NewMetadata(r.replica, r.clock.Tick()),
	}
	r.items.Set(el)
	r.byKey[pos.Key()] = el
	r.live++
	return pos
}

// Delete tombstones the element at pos. The record stays in the
// sequence; once an element is deleted anywhere it stays deleted
// everywhere after merge.
func (r *RGA[T]) Delete(pos PositionID) error {
	el, ok := r.byKey[pos.Key()]
	if !ok {
		return ErrPositionNotFound
	}
	if !el.Meta.Deleted {
		el.Meta.Deleted = true
		r.live--
	}
	el.Meta.Touch(r.replica, r.clock.Tick())
	return nil
}

// Get returns the value at pos and whether it is present and visible.
func (r *RGA[T]) Get(pos PositionID) (T, bool) {
	el, ok := r.byKey[pos.Key()]
	if !ok || el.Meta.Deleted {
		var zero T
		return zero, false
	}
	return el.Value, true
}

// Slice returns the visible values in position order.
func (r *RGA[T]) Slice() []T {
	out := make([]T, 0, r.live)
	r.items.Scan(func(el *Element[T]) bool {
		if !el.Meta.Deleted {
			out = append(out, el.Value)
		}
		return true
	})
	return out
}

// Elements returns copies of all stored elements in position order,
// tombstones included. Intended for inspection and tests.
func (r *RGA[T]) Elements() []Element[T] {
	out := make([]Element[T], 0, r.items.Len())
	r.items.Scan(func(el *Element[T]) bool {
		out = append(out, *el.Clone())
		return true
	})
	return out
}

// Len returns the number of visible elements.
func (r *RGA[T]) Len() int {
	return r.live
}

// IsEmpty reports whether no visible elements remain.
func (r *RGA[T]) IsEmpty() bool {
	return r.live == 0
}

// Merge folds other into the receiver: a union of elements by position.
// Inserting the same position twice collapses to one record, and
// tombstone flags combine by OR, which together make merge idempotent
// and deletion dominant. The local clock observes the remote clock so
// subsequent local writes order after everything merged in.
func (r *RGA[T]) Merge(other *RGA[T]) error {
	if other == nil {
		return crdt.ErrInvalidSnapshot
	}
	start := time.Now()

	other.items.Scan(func(theirs *Element[T]) bool {
		key := theirs.Position.Key()
		ours, ok := r.byKey[key]
		if !ok {
			cp := theirs.Clone()
			r.items.Set(cp)
			r.byKey[key] = cp
			if !cp.Meta.Deleted {
				r.live++
			}
			return true
		}
		if theirs.Meta.NewerThan(ours.Meta) {
			ours.Value = theirs.Value
			ours.Meta.ModifiedAt = theirs.Meta.ModifiedAt
			ours.Meta.LastModifiedBy = theirs.Meta.LastModifiedBy
		}
		if theirs.Meta.Deleted && !ours.Meta.Deleted {
			ours.Meta.Deleted = true
			r.live--
		}
		return true
	})

	r.clock.Observe(other.clock.Now())
	recordMerge("rga", time.Since(start), r.items.Len())
	return nil
}

// HasConflict reports whether any shared position carries a true
// concurrent write: equal ModifiedAt stamped by different replicas.
func (r *RGA[T]) HasConflict(other *RGA[T]) bool {
	if other == nil {
		return false
	}
	conflict := false
	other.items.Scan(func(theirs *Element[T]) bool {
		if ours, ok := r.byKey[theirs.Position.Key()]; ok && ours.Meta.ConcurrentWith(theirs.Meta) {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

// Clone returns an independent copy of the sequence.
func (r *RGA[T]) Clone() *RGA[T] {
	cp := NewRGA[T](r.replica)
	cp.clock.Observe(r.clock.Now())
	r.items.Scan(func(el *Element[T]) bool {
		c := el.Clone()
		cp.items.Set(c)
		cp.byKey[c.Position.Key()] = c
		return true
	})
	cp.live = r.live
	return cp
}

// successor returns the position directly after pos, or nil when pos is
// the last element.
func (r *RGA[T]) successor(pos PositionID) PositionID {
	var next PositionID
	probe := &Element[T]{Position: pos}
	r.items.Ascend(probe, func(el *Element[T]) bool {
		if el.Position.Equal(pos) {
			return true
		}
		next = el.Position
		return false
	})
	return next
}

// Text joins the visible values of a string sequence. It is the
// materialization used for collaborative text documents.
func Text(r *RGA[string]) string {
	var b strings.Builder
	for _, s := range r.Slice() {
		b.WriteString(s)
	}
	return b.String()
}

// rgaState is the wire form of RGA. Tombstones are part of the state;
// dropping them would let a deleted element reappear through a replica
// that never saw the deletion.
type rgaState[T any] struct {
	Replica  crdt.ReplicaID `json:"replica"`
	Clock    uint64         `json:"clock"`
	Elements []*Element[T]  `json:"elements"`
}

// MarshalJSON serializes the full sequence state in position order.
func (r *RGA[T]) MarshalJSON() ([]byte, error) {
	els := make([]*Element[T], 0, r.items.Len())
	r.items.Scan(func(el *Element[T]) bool {
		els = append(els, el)
		return true
	})
	return json.Marshal(rgaState[T]{
		Replica:  r.replica,
		Clock:    r.clock.Now(),
		Elements: els,
	})
}

// UnmarshalJSON restores sequence state and rebuilds the position
// index. On error the receiver is left untouched.
func (r *RGA[T]) UnmarshalJSON(data []byte) error {
	var state rgaState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return crdt.ErrInvalidSnapshot
	}

	items := newElementTree[T]()
	byKey := make(map[string]*Element[T], len(state.Elements))
	live := 0
	for _, el := range state.Elements {
		if el == nil || el.Position.IsZero() {
			return crdt.ErrInvalidSnapshot
		}
		key := el.Position.Key()
		if _, dup := byKey[key]; dup {
			return crdt.ErrInvalidSnapshot
		}
		items.Set(el)
		byKey[key] = el
		if !el.Meta.Deleted {
			live++
		}
	}

	r.replica = state.Replica
	r.clock = crdt.LamportClock{}
	r.clock.Observe(state.Clock)
	r.items = items
	r.byKey = byKey
	r.live = live
	return nil
}
