// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve decides what happens when two replicas truly collide.
//
// The CRDT types in services/drift/crdt always merge deterministically;
// HasConflict flags the cases where the deterministic outcome rests on
// an arbitrary tie-break (same timestamp, different replicas) rather
// than on causal order. This package lets an application choose a
// policy for those cases: take the later write, take the earlier one,
// run a type-specific merger, or refuse and demand a human.
//
// A refusal (ErrUnresolvable) must surface to the operator as "manual
// merge required". Silently picking a side there would violate the
// convergence guarantee the rest of the system depends on.
package resolve

import "errors"

// Sentinel errors for conflict resolution.
var (
	// ErrUnresolvable is returned by the manual strategy: the conflict
	// requires out-of-band resolution and no automatic outcome was
	// produced.
	ErrUnresolvable = errors.New("conflict requires manual resolution")

	// ErrStrategyNotApplicable is returned by the custom strategy when
	// no merger is registered for the conflict type tag.
	ErrStrategyNotApplicable = errors.New("no merger registered for conflict type")

	// ErrInvalidData wraps a merge failure from the underlying CRDT.
	// It is propagated, never swallowed: a failing merge means the
	// inputs were structurally invalid.
	ErrInvalidData = errors.New("merge failed on invalid data")
)
