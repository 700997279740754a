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

// Metadata is the causal bookkeeping attached to every vertex, edge, and
// sequence node.
//
// Invariant: ModifiedAt >= CreatedAt. Under add-wins semantics a deleted
// element stays in the structure as a tombstone (Deleted == true) and is
// filtered from visible queries; under remove-wins semantics the element
// is physically erased and Metadata disappears with it.
type Metadata struct {
	// CreatedAt is the logical timestamp of the creating write.
	CreatedAt uint64 `json:"created_at"`

	// CreatedBy is the replica that created the element.
	CreatedBy ReplicaID `json:"created_by"`

	// ModifiedAt is the logical timestamp of the most recent write.
	ModifiedAt uint64 `json:"modified_at"`

	// LastModifiedBy is the replica that performed the most recent write.
	LastModifiedBy ReplicaID `json:"last_modified_by"`

	// Deleted marks the element as a tombstone. Tombstones are retained
	// for merge safety and excluded from all visible queries.
	Deleted bool `json:"deleted"`
}

// NewMetadata stamps fresh creation metadata.
func NewMetadata(replica ReplicaID, ts uint64) Metadata {
	return Metadata{
		CreatedAt:      ts,
		CreatedBy:      replica,
		ModifiedAt:     ts,
		LastModifiedBy: replica,
	}
}

// Touch records a modification by replica at ts. ModifiedAt never moves
// backwards: a touch with an older timestamp still records the writer but
// keeps the later time.
func (m *Metadata) Touch(replica ReplicaID, ts uint64) {
	if ts > m.ModifiedAt {
		m.ModifiedAt = ts
	}
	m.LastModifiedBy = replica
}

// NewerThan reports whether m's last write should win over other's under
// the shared tie-break rule: later ModifiedAt first, then ReplicaID bytes.
func (m Metadata) NewerThan(other Metadata) bool {
	if m.ModifiedAt != other.ModifiedAt {
		return m.ModifiedAt > other.ModifiedAt
	}
	return m.LastModifiedBy.Compare(other.LastModifiedBy) > 0
}

// ConcurrentWith reports a true concurrent write: identical ModifiedAt
// stamped by different replicas. This is the condition HasConflict
// surfaces across all CRDT types.
func (m Metadata) ConcurrentWith(other Metadata) bool {
	return m.ModifiedAt == other.ModifiedAt &&
		!m.LastModifiedBy.Equal(other.LastModifiedBy)
}
