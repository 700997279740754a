// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crdt

import (
	"encoding/json"
	"time"
)

// LWWRegister is a last-write-wins register: a single value where the
// write with the latest timestamp wins, ties broken by the writer's
// ReplicaID bytes.
//
// LWW types use wall-clock timestamps supplied by the caller; the clock
// does not need to be synchronized across replicas — skew only shifts
// which write wins, never whether replicas converge.
//
// The value is copied by assignment. If T contains pointers, slices, or
// maps, Clone shares that backing storage with the original.
type LWWRegister[T any] struct {
	replica   ReplicaID
	value     T
	updatedAt time.Time
	updatedBy ReplicaID
}

// NewLWWRegister creates an empty register owned by replica.
//
// An empty register has the zero value of T and a zero timestamp, so the
// first Set on any replica wins over it.
func NewLWWRegister[T any](replica ReplicaID) *LWWRegister[T] {
	return &LWWRegister[T]{replica: replica}
}

// Set writes value at ts, attributed to the owning replica.
//
// A Set with a timestamp older than the current one is applied locally
// all the same; the merge rule decides the winner when states meet.
func (r *LWWRegister[T]) Set(value T, ts time.Time) {
	r.value = value
	r.updatedAt = ts
	r.updatedBy = r.replica
}

// Value returns the current value.
func (r *LWWRegister[T]) Value() T {
	return r.value
}

// UpdatedAt returns the timestamp of the winning write.
func (r *LWWRegister[T]) UpdatedAt() time.Time {
	return r.updatedAt
}

// UpdatedBy returns the replica that performed the winning write.
func (r *LWWRegister[T]) UpdatedBy() ReplicaID {
	return r.updatedBy
}

// Replica returns the identity of the replica owning this instance.
func (r *LWWRegister[T]) Replica() ReplicaID {
	return r.replica
}

// Merge folds other into the receiver: the later write wins, ties broken
// by writer ReplicaID bytes. Commutative, associative, idempotent.
func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) error {
	if other == nil {
		return ErrInvalidSnapshot
	}
	if otherWins(other.updatedAt, other.updatedBy, r.updatedAt, r.updatedBy) {
		r.value = other.value
		r.updatedAt = other.updatedAt
		r.updatedBy = other.updatedBy
	}
	return nil
}

// HasConflict reports a true concurrent write: identical timestamps
// stamped by different replicas. Differing timestamps are never a
// conflict regardless of writer.
func (r *LWWRegister[T]) HasConflict(other *LWWRegister[T]) bool {
	if other == nil {
		return false
	}
	return r.updatedAt.Equal(other.updatedAt) &&
		!r.updatedBy.Equal(other.updatedBy) &&
		!r.updatedBy.IsZero()
}

// Clone returns an independent copy. The owning replica carries over.
func (r *LWWRegister[T]) Clone() *LWWRegister[T] {
	cp := *r
	return &cp
}

// otherWins applies the shared LWW rule to raw (timestamp, writer) pairs.
func otherWins(otherAt time.Time, otherBy ReplicaID, localAt time.Time, localBy ReplicaID) bool {
	if !otherAt.Equal(localAt) {
		return otherAt.After(localAt)
	}
	return otherBy.Compare(localBy) > 0
}

// registerState is the wire form of LWWRegister.
type registerState[T any] struct {
	Replica   ReplicaID `json:"replica"`
	Value     T         `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy ReplicaID `json:"updated_by"`
}

// MarshalJSON serializes the full register state.
func (r *LWWRegister[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(registerState[T]{
		Replica:   r.replica,
		Value:     r.value,
		UpdatedAt: r.updatedAt,
		UpdatedBy: r.updatedBy,
	})
}

// UnmarshalJSON restores register state. On error the receiver is left
// untouched.
func (r *LWWRegister[T]) UnmarshalJSON(data []byte) error {
	var state registerState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return ErrInvalidSnapshot
	}
	r.replica = state.Replica
	r.value = state.Value
	r.updatedAt = state.UpdatedAt
	r.updatedBy = state.UpdatedBy
	return nil
}
