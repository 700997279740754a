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

// Mergeable is the contract every CRDT type satisfies.
//
// The type parameter pins both sides of a merge to the same concrete
// type, so a cross-type merge is a compile error rather than a runtime
// failure.
//
// # Merge Laws
//
// For all well-formed a, b, c of the same type:
//
//	commutative:  merge(a, b) state-equals merge(b, a)
//	associative:  merge(merge(a, b), c) state-equals merge(a, merge(b, c))
//	idempotent:   merge(a, a) state-equals a
//
// Merge must tolerate snapshots arriving in any order, any number of
// times (at-least-once delivery), including duplicates. It returns an
// error only for structurally invalid input such as a nil other; it
// never fails for any state a healthy replica can produce.
type Mergeable[T any] interface {
	// Merge folds other's state into the receiver in place. The other
	// value is read-only for the duration of the call.
	Merge(other T) error

	// HasConflict reports whether both sides wrote overlapping state at
	// the same logical timestamp from different replicas — a true
	// concurrent write that timestamp ordering alone cannot resolve.
	// The tie-break still resolves it deterministically; this predicate
	// exists so a resolution policy can decide whether the automatic
	// outcome is acceptable. A false result does not mean Merge is a
	// no-op.
	HasConflict(other T) bool
}

// Resolvable extends Mergeable with cloning, which the conflict
// resolution layer needs to build candidate outcomes without mutating
// its inputs.
type Resolvable[T any] interface {
	Mergeable[T]

	// Clone returns a deep, independent copy of the receiver.
	Clone() T
}
