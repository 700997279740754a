// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crdt provides the foundational replicated data types for Drift.
//
// Every type in this package is a state-based CRDT: a value that can be
// mutated independently on disconnected replicas and merged later without
// coordination. Merging is commutative, associative, and idempotent, so
// replicas converge to the same state no matter how many times and in
// which order snapshots are exchanged.
//
// # Tie-Break Rule
//
// All types share one tie-break rule: a write with a later timestamp wins;
// equal timestamps are broken by comparing ReplicaID bytes. The rule is
// total, so two replicas can never disagree about a winner.
//
// # Thread Safety
//
// CRDT instances are NOT safe for concurrent use. Each value is designed
// to be owned by a single goroutine; callers that share an instance across
// goroutines must serialize access themselves. Keeping the core free of
// locks keeps Merge a pure, deterministic fold over two states, which is
// what makes the convergence properties provable.
//
// # Serialization
//
// Every type round-trips losslessly through encoding/json. A failed
// UnmarshalJSON never partially mutates the receiver.
package crdt

import "errors"

// Sentinel errors for CRDT operations.
var (
	// ErrKeyNotFound is returned when a map operation references a key
	// that has never been written on this replica or any merged one.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidSnapshot is returned when deserializing malformed bytes.
	// The target value is left untouched when this error is returned.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrReplicaMismatch is returned when restoring a snapshot that was
	// taken by a different replica into a value that already has local
	// identity. Merging is the correct way to combine foreign state.
	ErrReplicaMismatch = errors.New("snapshot belongs to a different replica")
)
