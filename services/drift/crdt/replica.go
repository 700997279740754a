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
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ReplicaID identifies one replica of a document.
//
// A ReplicaID is a 128-bit value, globally unique, assigned once at
// replica creation and stable for the lifetime of that replica's local
// state. It is used for causal attribution (who wrote this) and as the
// deterministic tie-break when two writes carry the same timestamp.
//
// The zero value is invalid and reports IsZero() == true. Use
// NewReplicaID to mint a fresh identity or ParseReplicaID to restore a
// persisted one.
type ReplicaID struct {
	id uuid.UUID
}

// NewReplicaID returns a fresh, random replica identity.
func NewReplicaID() ReplicaID {
	return ReplicaID{id: uuid.New()}
}

// ParseReplicaID restores a ReplicaID from its string form.
//
// Inputs:
//
//	s - Canonical UUID string as produced by String().
//
// Outputs:
//
//	ReplicaID - The parsed identity.
//	error - Non-nil if s is not a valid UUID.
func ParseReplicaID(s string) (ReplicaID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ReplicaID{}, fmt.Errorf("parse replica id %q: %w", s, err)
	}
	return ReplicaID{id: id}, nil
}

// IsZero reports whether r is the invalid zero identity.
func (r ReplicaID) IsZero() bool {
	return r.id == uuid.Nil
}

// String returns the canonical UUID string form.
func (r ReplicaID) String() string {
	return r.id.String()
}

// Compare returns -1, 0, or +1 ordering replica identities by their
// raw bytes. The ordering is arbitrary but total and identical on every
// replica, which is all a tie-break needs.
func (r ReplicaID) Compare(other ReplicaID) int {
	return bytes.Compare(r.id[:], other.id[:])
}

// Equal reports whether two identities are the same replica.
func (r ReplicaID) Equal(other ReplicaID) bool {
	return r.id == other.id
}

// MarshalText implements encoding.TextMarshaler so ReplicaID can be used
// directly as a JSON string or map key.
func (r ReplicaID) MarshalText() ([]byte, error) {
	return []byte(r.id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReplicaID) UnmarshalText(text []byte) error {
	id, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("%w: bad replica id %q", ErrInvalidSnapshot, text)
	}
	r.id = id
	return nil
}

// LamportClock is a per-replica logical clock.
//
// The clock only moves forward. Tick advances it before a local mutation;
// Observe folds in a remote timestamp during merge so that subsequent
// local writes are ordered after everything the replica has seen.
//
// # Thread Safety
//
// Not safe for concurrent use; the owning CRDT serializes access.
type LamportClock struct {
	counter uint64
}

// Tick advances the clock and returns the new timestamp.
func (c *LamportClock) Tick() uint64 {
	c.counter++
	return c.counter
}

// Observe advances the clock to at least the remote timestamp.
func (c *LamportClock) Observe(remote uint64) {
	if remote > c.counter {
		c.counter = remote
	}
}

// Now returns the current timestamp without advancing the clock.
func (c *LamportClock) Now() uint64 {
	return c.counter
}
