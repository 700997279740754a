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

import "encoding/json"

// GCounter is a grow-only counter. Each replica increments its own slot;
// the observed value is the sum over all slots. Merging takes the
// per-replica maximum, so increments survive any delivery order and
// duplicate merges change nothing.
type GCounter struct {
	replica ReplicaID
	counts  map[ReplicaID]uint64
}

// NewGCounter creates a counter owned by replica with value zero.
func NewGCounter(replica ReplicaID) *GCounter {
	return &GCounter{
		replica: replica,
		counts:  make(map[ReplicaID]uint64),
	}
}

// Increment adds delta to the owning replica's slot. A zero delta is a
// no-op.
func (c *GCounter) Increment(delta uint64) {
	if delta == 0 {
		return
	}
	c.counts[c.replica] += delta
}

// Value returns the sum of all per-replica counts.
func (c *GCounter) Value() uint64 {
	var total uint64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Count returns the slot for a single replica.
func (c *GCounter) Count(replica ReplicaID) uint64 {
	return c.counts[replica]
}

// Replica returns the identity of the replica owning this instance.
func (c *GCounter) Replica() ReplicaID {
	return c.replica
}

// Merge folds other into the receiver by taking the per-replica maximum
// of each slot.
func (c *GCounter) Merge(other *GCounter) error {
	if other == nil {
		return ErrInvalidSnapshot
	}
	for replica, theirs := range other.counts {
		if theirs > c.counts[replica] {
			c.counts[replica] = theirs
		}
	}
	return nil
}

// HasConflict always returns false: concurrent increments commute, so a
// grow-only counter cannot conflict.
func (c *GCounter) HasConflict(other *GCounter) bool {
	return false
}

// Clone returns an independent copy of the counter.
func (c *GCounter) Clone() *GCounter {
	counts := make(map[ReplicaID]uint64, len(c.counts))
	for replica, n := range c.counts {
		counts[replica] = n
	}
	return &GCounter{replica: c.replica, counts: counts}
}

// gcounterState is the wire form of GCounter. ReplicaID implements
// encoding.TextMarshaler, so the map keys serialize as UUID strings.
type gcounterState struct {
	Replica ReplicaID            `json:"replica"`
	Counts  map[ReplicaID]uint64 `json:"counts"`
}

// MarshalJSON serializes the full counter state.
func (c *GCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(gcounterState{Replica: c.replica, Counts: c.counts})
}

// UnmarshalJSON restores counter state. On error the receiver is left
// untouched.
func (c *GCounter) UnmarshalJSON(data []byte) error {
	var state gcounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return ErrInvalidSnapshot
	}
	if state.Counts == nil {
		state.Counts = make(map[ReplicaID]uint64)
	}
	c.replica = state.Replica
	c.counts = state.Counts
	return nil
}

// PNCounter is a counter supporting both increments and decrements,
// built from two grow-only counters. The observed value is the
// difference between total increments and total decrements.
type PNCounter struct {
	pos *GCounter
	neg *GCounter
}

// NewPNCounter creates a counter owned by replica with value zero.
func NewPNCounter(replica ReplicaID) *PNCounter {
	return &PNCounter{
		pos: NewGCounter(replica),
		neg: NewGCounter(replica),
	}
}

// Increment adds delta to the counter.
func (c *PNCounter) Increment(delta uint64) {
	c.pos.Increment(delta)
}

// Decrement subtracts delta from the counter. The value may go negative.
func (c *PNCounter) Decrement(delta uint64) {
	c.neg.Increment(delta)
}

// Value returns increments minus decrements.
func (c *PNCounter) Value() int64 {
	return int64(c.pos.Value()) - int64(c.neg.Value())
}

// Replica returns the identity of the replica owning this instance.
func (c *PNCounter) Replica() ReplicaID {
	return c.pos.replica
}

// Merge folds other into the receiver by merging both halves.
func (c *PNCounter) Merge(other *PNCounter) error {
	if other == nil {
		return ErrInvalidSnapshot
	}
	if err := c.pos.Merge(other.pos); err != nil {
		return err
	}
	return c.neg.Merge(other.neg)
}

// HasConflict always returns false, as for GCounter.
func (c *PNCounter) HasConflict(other *PNCounter) bool {
	return false
}

// Clone returns an independent copy of the counter.
func (c *PNCounter) Clone() *PNCounter {
	return &PNCounter{pos: c.pos.Clone(), neg: c.neg.Clone()}
}

// pnCounterState is the wire form of PNCounter.
type pnCounterState struct {
	Pos *GCounter `json:"pos"`
	Neg *GCounter `json:"neg"`
}

// MarshalJSON serializes both halves of the counter.
func (c *PNCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(pnCounterState{Pos: c.pos, Neg: c.neg})
}

// UnmarshalJSON restores counter state. On error the receiver is left
// untouched.
func (c *PNCounter) UnmarshalJSON(data []byte) error {
	var state pnCounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return ErrInvalidSnapshot
	}
	if state.Pos == nil || state.Neg == nil {
		return ErrInvalidSnapshot
	}
	c.pos = state.Pos
	c.neg = state.Neg
	return nil
}
