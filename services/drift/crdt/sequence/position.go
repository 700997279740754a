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
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// Segment is one level of a hierarchical position identifier. The
// replica id disambiguates segments that two replicas allocated
// concurrently at the same ordinal, so two distinct replicas can never
// produce equal positions.
type Segment struct {
	Ord     uint64         `json:"ord"`
	Replica crdt.ReplicaID `json:"replica"`
}

// PositionID is a densely, totally ordered identifier placing one
// element in a sequence or tree.
//
// A position is a path of segments. Comparison is lexicographic:
// segment ordinals first, replica bytes on equal ordinals, and a proper
// prefix orders before any of its extensions. Allocation picks a
// replica-seeded ordinal where the neighbor bounds leave room and
// descends one level deeper where they do not, so there is always space
// between any two positions: the identifier space is never exhausted,
// no matter how many concurrent insertions target the same spot.
//
// The seeding matters for text. Two replicas allocating into the same
// gap land far apart in the ordinal space, and AllocateAfter packs a
// replica's consecutive insertions into adjacent ordinals, so a run
// typed on one replica occupies a contiguous band. Concurrent runs
// merge whole instead of interleaving character by character.
//
// PositionIDs are immutable once allocated and identical across
// replicas, which is what lets concurrent edits interleave the same way
// everywhere.
type PositionID []Segment

// maxOrd bounds the ordinal space at each level. Allocation never
// produces a segment at 0 or maxOrd, so both stay usable as virtual
// neighbor bounds.
const maxOrd = math.MaxUint64

// Compare returns -1, 0, or +1 ordering positions lexicographically.
func (p PositionID) Compare(other PositionID) int {
	n := len(p)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if p[i].Ord != other[i].Ord {
			if p[i].Ord < other[i].Ord {
				return -1
			}
			return 1
		}
		if c := p[i].Replica.Compare(other[i].Replica); c != 0 {
			return c
		}
	}
	switch {
	case len(p) < len(other):
		return -1
	case len(p) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether two positions are identical.
func (p PositionID) Equal(other PositionID) bool {
	return p.Compare(other) == 0
}

// IsZero reports whether the position is empty. The empty position is
// never allocated; it shows up only as the zero value.
func (p PositionID) IsZero() bool {
	return len(p) == 0
}

// Key returns a compact string form usable as a map key. Ordinals are
// fixed-width hex, so Key ordering matches position ordering for
// positions of equal depth; use Compare for ordering across depths.
func (p PositionID) Key() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		fmt.Fprintf(&b, "%016x.%s", seg.Ord, seg.Replica)
	}
	return b.String()
}

// String returns the same form as Key.
func (p PositionID) String() string {
	return p.Key()
}

// Clone returns an independent copy of the position.
func (p PositionID) Clone() PositionID {
	if p == nil {
		return nil
	}
	cp := make(PositionID, len(p))
	copy(cp, p)
	return cp
}

// AllocateBetween returns a fresh position strictly between left and
// right. A nil left means the head of the sequence, a nil right the
// tail. The caller guarantees left < right; both bounds must be
// previously allocated positions (or nil).
//
// The ordinal within the gap is drawn from a per-replica seed rather
// than the midpoint: replicas allocating into the same gap concurrently
// land at distant ordinals, leaving each the room to extend its own
// band with AllocateAfter. The final segment always carries the
// allocating replica's id, so two replicas allocating between the same
// neighbors concurrently produce distinct positions.
func AllocateBetween(left, right PositionID, replica crdt.ReplicaID) PositionID {
	seed := ordSeed(replica)
	prefix := make(PositionID, 0, len(left)+1)

	// rightAdjacent tracks whether the prefix built so far is still a
	// prefix of right, i.e. whether right's segment still bounds the
	// current level from above.
	rightAdjacent := true

	for depth := 0; ; depth++ {
		lo := uint64(0)
		if depth < len(left) {
			lo = left[depth].Ord
		}
		hi := uint64(maxOrd)
		if rightAdjacent && depth < len(right) {
			hi = right[depth].Ord
		}

		if hi > lo && hi-lo >= 2 {
			return append(prefix, Segment{Ord: lo + 1 + seed%(hi-lo-1), Replica: replica})
		}

		// No room at this level: descend one level deeper, extending
		// along the left bound so the result stays above it.
		switch {
		case depth < len(left):
			prefix = append(prefix, left[depth])
			rightAdjacent = rightAdjacent && depth < len(right) && left[depth] == right[depth]
		case rightAdjacent && depth < len(right) && right[depth].Ord == lo:
			// Left bound exhausted and right sits at the virtual floor:
			// descend under right's own segment to stay below it.
			prefix = append(prefix, right[depth])
		default:
			// Left bound exhausted; descend through a floor segment.
			// Anything appended below it stays under the right bound.
			prefix = append(prefix, Segment{Ord: lo, Replica: replica})
			rightAdjacent = false
		}
	}
}

// AllocateAfter returns a fresh position strictly between left and
// right, packing run continuations: when left's final segment belongs
// to the allocating replica, the next ordinal at that level is taken
// instead of subdividing the gap. A burst of insertions from one
// replica therefore fills adjacent ordinals, and because first
// allocations are replica-seeded (see AllocateBetween), bands from
// different replicas do not meet: concurrent runs stay contiguous
// through merge.
//
// Falls back to AllocateBetween when left is nil, foreign, or already
// adjacent to right at its own level.
func AllocateAfter(left, right PositionID, replica crdt.ReplicaID) PositionID {
	n := len(left)
	if n == 0 || !left[n-1].Replica.Equal(replica) {
		return AllocateBetween(left, right, replica)
	}
	hi := uint64(maxOrd)
	if len(right) >= n && right[:n-1].Equal(left[:n-1]) {
		hi = right[n-1].Ord
	}
	if ord := left[n-1].Ord + 1; ord < hi {
		pos := make(PositionID, n)
		copy(pos, left)
		pos[n-1] = Segment{Ord: ord, Replica: replica}
		return pos
	}
	return AllocateBetween(left, right, replica)
}

// ordSeed hashes a replica identity into the ordinal space. The hash
// only needs to be stable and well spread; it is what keeps concurrent
// first allocations in one gap far apart.
func ordSeed(replica crdt.ReplicaID) uint64 {
	h := fnv.New64a()
	h.Write([]byte(replica.String()))
	return h.Sum64()
}
