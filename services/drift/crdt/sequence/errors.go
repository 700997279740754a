// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sequence provides replicated ordered collections: RGA for
// linear sequences such as collaborative text, and Tree for hierarchical
// documents.
//
// Both types place elements with PositionIDs: densely ordered identifiers
// that two replicas can allocate independently between the same neighbors
// without ever colliding. The identifier space subdivides without bound,
// so concurrent insertion at one spot can never exhaust it.
//
// # Deletion
//
// Deletion tombstones the element and never physically removes it. A
// concurrent operation elsewhere may reference the deleted position by
// id, and the tombstone keeps that reference well-defined. Unlike the
// add-wins graph, sequence tombstones are permanent and dominant: once
// an element is deleted on any replica it stays deleted on every replica
// after merge.
//
// # Thread Safety
//
// Sequence types are NOT safe for concurrent use. Callers serialize
// access; the service layer in services/drift holds one mutex per
// document.
package sequence

import "errors"

// Sentinel errors for sequence operations.
var (
	// ErrPositionNotFound is returned when an operation references a
	// PositionID that is absent from this replica, for example an
	// InsertAfter anchor or Delete target that was never seen locally.
	ErrPositionNotFound = errors.New("position not found")
)
