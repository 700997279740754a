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
	"sort"
	"time"
)

// mapEntry is one key's state inside an LWWMap. Deletions keep the entry
// around as a tombstone so a concurrent Set and Delete on the same key
// resolve by timestamp instead of by arrival order.
type mapEntry[V any] struct {
	Value     V         `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy ReplicaID `json:"updated_by"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// LWWMap is a string-keyed map where each key behaves as an independent
// last-write-wins register. Values are copied by assignment; see
// LWWRegister for the aliasing caveat on reference-typed V.
type LWWMap[V any] struct {
	replica ReplicaID
	entries map[string]mapEntry[V]
}

// NewLWWMap creates an empty map owned by replica.
func NewLWWMap[V any](replica ReplicaID) *LWWMap[V] {
	return &LWWMap[V]{
		replica: replica,
		entries: make(map[string]mapEntry[V]),
	}
}

// Set writes key=value at ts, attributed to the owning replica. Setting
// a tombstoned key resurrects it when ts wins over the deletion.
func (m *LWWMap[V]) Set(key string, value V, ts time.Time) {
	m.entries[key] = mapEntry[V]{
		Value:     value,
		UpdatedAt: ts,
		UpdatedBy: m.replica,
	}
}

// Get returns the value for key. The second return is false when the key
// was never set or its latest write is a deletion.
func (m *LWWMap[V]) Get(key string) (V, bool) {
	entry, ok := m.entries[key]
	if !ok || entry.Deleted {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Delete tombstones key at ts. Deleting an absent key still records the
// tombstone so the deletion wins over slower concurrent writes.
func (m *LWWMap[V]) Delete(key string, ts time.Time) {
	var zero V
	m.entries[key] = mapEntry[V]{
		Value:     zero,
		UpdatedAt: ts,
		UpdatedBy: m.replica,
		Deleted:   true,
	}
}

// Keys returns the visible keys in sorted order.
func (m *LWWMap[V]) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for key, entry := range m.entries {
		if !entry.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of visible keys.
func (m *LWWMap[V]) Len() int {
	n := 0
	for _, entry := range m.entries {
		if !entry.Deleted {
			n++
		}
	}
	return n
}

// Replica returns the identity of the replica owning this instance.
func (m *LWWMap[V]) Replica() ReplicaID {
	return m.replica
}

// Merge folds other into the receiver key by key: for each key the entry
// with the later timestamp wins, ties broken by writer ReplicaID bytes.
// Tombstones compete like any other write.
func (m *LWWMap[V]) Merge(other *LWWMap[V]) error {
	if other == nil {
		return ErrInvalidSnapshot
	}
	for key, theirs := range other.entries {
		ours, ok := m.entries[key]
		if !ok || otherWins(theirs.UpdatedAt, theirs.UpdatedBy, ours.UpdatedAt, ours.UpdatedBy) {
			m.entries[key] = theirs
		}
	}
	return nil
}

// HasConflict reports whether any key carries a true concurrent write:
// identical timestamps stamped by different replicas.
func (m *LWWMap[V]) HasConflict(other *LWWMap[V]) bool {
	if other == nil {
		return false
	}
	for key, theirs := range other.entries {
		ours, ok := m.entries[key]
		if !ok {
			continue
		}
		if ours.UpdatedAt.Equal(theirs.UpdatedAt) && !ours.UpdatedBy.Equal(theirs.UpdatedBy) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the map structure.
func (m *LWWMap[V]) Clone() *LWWMap[V] {
	entries := make(map[string]mapEntry[V], len(m.entries))
	for key, entry := range m.entries {
		entries[key] = entry
	}
	return &LWWMap[V]{replica: m.replica, entries: entries}
}

// lwwMapState is the wire form of LWWMap. Tombstones are part of the
// state: dropping them would let overtaken writes resurrect on merge.
type lwwMapState[V any] struct {
	Replica ReplicaID              `json:"replica"`
	Entries map[string]mapEntry[V] `json:"entries"`
}

// MarshalJSON serializes the full map state, tombstones included.
func (m *LWWMap[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(lwwMapState[V]{Replica: m.replica, Entries: m.entries})
}

// UnmarshalJSON restores map state. On error the receiver is left
// untouched.
func (m *LWWMap[V]) UnmarshalJSON(data []byte) error {
	var state lwwMapState[V]
	if err := json.Unmarshal(data, &state); err != nil {
		return ErrInvalidSnapshot
	}
	if state.Entries == nil {
		state.Entries = make(map[string]mapEntry[V])
	}
	m.replica = state.Replica
	m.entries = state.Entries
	return nil
}
