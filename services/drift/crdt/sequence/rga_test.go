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
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// insertText inserts the runes of s one after another starting at the
// head, the way a collaborative editor types.
func insertText(t *testing.T, r *RGA[string], s string) []PositionID {
	t.Helper()
	var out []PositionID
	var anchor *PositionID
	for _, ch := range s {
		pos, err := r.InsertAfter(string(ch), anchor)
		if err != nil {
			t.Fatalf("InsertAfter(%q): %v", ch, err)
		}
		out = append(out, pos)
		p := pos
		anchor = &p
	}
	return out
}

// rgaFingerprint normalizes a sequence into comparable state: position
// key, value, and tombstone flag in order.
func rgaFingerprint(r *RGA[string]) []string {
	var out []string
	for _, el := range r.Elements() {
		flag := "live"
		if el.Meta.Deleted {
			flag = "dead"
		}
		out = append(out, el.Position.Key()+"="+el.Value+":"+flag)
	}
	return out
}

func rgaEqual(a, b *RGA[string]) bool {
	return reflect.DeepEqual(rgaFingerprint(a), rgaFingerprint(b))
}

func TestRGAInsertAndOrder(t *testing.T) {
	r := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))

	insertText(t, r, "Hello")
	if got := Text(r); got != "Hello" {
		t.Errorf("Text = %q, want Hello", got)
	}
	if r.Len() != 5 || r.IsEmpty() {
		t.Errorf("Len = %d, IsEmpty = %v, want 5 and false", r.Len(), r.IsEmpty())
	}
}

func TestRGAInsertAfterMissingAnchor(t *testing.T) {
	r := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	ghost := PositionID{{Ord: 42, Replica: r.Replica()}}

	if _, err := r.InsertAfter("x", &ghost); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("InsertAfter(ghost) error = %v, want ErrPositionNotFound", err)
	}
	if err := r.Delete(ghost); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("Delete(ghost) error = %v, want ErrPositionNotFound", err)
	}
}

func TestRGADeleteTombstones(t *testing.T) {
	r := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	positions := insertText(t, r, "abc")

	if err := r.Delete(positions[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := Text(r); got != "ac" {
		t.Errorf("Text after delete = %q, want ac", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len after delete = %d, want 2", r.Len())
	}
	// The record survives as a tombstone.
	if len(r.Elements()) != 3 {
		t.Errorf("stored elements = %d, want 3", len(r.Elements()))
	}
	// A deleted anchor still orders new inserts.
	if _, err := r.InsertAfter("X", &positions[1]); err != nil {
		t.Fatalf("InsertAfter(tombstoned anchor): %v", err)
	}
	if got := Text(r); got != "aXc" {
		t.Errorf("Text after insert at tombstone = %q, want aXc", got)
	}
}

// Spec scenario: two replicas type independently, merge, and both words
// survive in a replica-independent order.
func TestRGAConcurrentTextMerge(t *testing.T) {
	a := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	b := NewRGA[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))

	insertText(t, a, "Hello")
	insertText(t, b, "World")

	ab := a.Clone()
	if err := ab.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	ba := b.Clone()
	if err := ba.Merge(a); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Each word must survive as one contiguous run; a merge that shuffles
	// the two typists' characters together is worthless to both.
	text := Text(ab)
	if text != "HelloWorld" && text != "WorldHello" {
		t.Errorf("merged text = %q, want the words whole in either order", text)
	}
	if !rgaEqual(ab, ba) {
		t.Errorf("merge not commutative:\n a->b: %q\n b->a: %q", Text(ab), Text(ba))
	}
}

/// The same guarantee holds for tail appends: concurrent runs land in
// disjoint position bands and never interleave character by character.
func TestRGAConcurrentAppendsStayContiguous(t *testing.T) {
	a := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	b := NewRGA[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))

	for _, ch := range "Hello" {
		a.Append(string(ch))
	}
	for _, ch := range "World" {
		b.Append(string(ch))
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if text := Text(a); text != "HelloWorld" && text != "WorldHello" {
		t.Errorf("merged text = %q, want the words whole in either order", text)
	}
}

func TestRGADeletionDominatesMerge(t *testing.T) {
	a := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	positions := insertText(t, a, "abc")

	b := a.Clone()
	if err := b.Delete(positions[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Deletion wins over the undeleted copy in either merge direction.
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := Text(a); got != "bc" {
		t.Errorf("Text after merging deletion = %q, want bc", got)
	}

	// Merging the stale pre-delete state back in does not resurrect.
	stale := NewRGA[string](mustReplica(t, "33333333-3333-3333-3333-333333333333"))
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := json.Unmarshal(data, stale); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := a.Merge(stale); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := Text(a); got != "bc" {
		t.Errorf("Text after re-merge = %q, want bc", got)
	}
}

// randomRGA builds a sequence with deterministic pseudo-random inserts
// and deletes for property checks.
func randomRGA(t *testing.T, seed int64, replica string) *RGA[string] {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	r := NewRGA[string](mustReplica(t, replica))

	var positions []PositionID
	for i := 0; i < 30; i++ {
		var anchor *PositionID
		if len(positions) > 0 && rng.Intn(3) > 0 {
			p := positions[rng.Intn(len(positions))]
			anchor = &p
		}
		pos, err := r.InsertAfter(string(rune('a'+rng.Intn(26))), anchor)
		if err != nil {
			t.Fatalf("InsertAfter: %v", err)
		}
		positions = append(positions, pos)
		if rng.Intn(5) == 0 {
			if err := r.Delete(positions[rng.Intn(len(positions))]); err != nil {
				t.Fatalf("Delete: %v", err)
			}
		}
	}
	return r
}

func TestRGAMergeLaws(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		a := randomRGA(t, seed, "11111111-1111-1111-1111-111111111111")
		b := randomRGA(t, seed+100, "22222222-2222-2222-2222-222222222222")
		c := randomRGA(t, seed+200, "33333333-3333-3333-3333-333333333333")

		// Commutativity.
		ab := a.Clone()
		if err := ab.Merge(b); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		ba := b.Clone()
		if err := ba.Merge(a); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if !rgaEqual(ab, ba) {
			t.Fatalf("seed %d: merge not commutative", seed)
		}

		// Associativity.
		left := a.Clone()
		if err := left.Merge(b); err != nil {
			t.Fatal(err)
		}
		if err := left.Merge(c); err != nil {
			t.Fatal(err)
		}
		bc := b.Clone()
		if err := bc.Merge(c); err != nil {
			t.Fatal(err)
		}
		right := a.Clone()
		if err := right.Merge(bc); err != nil {
			t.Fatal(err)
		}
		if !rgaEqual(left, right) {
			t.Fatalf("seed %d: merge not associative", seed)
		}

		// Idempotency.
		aa := a.Clone()
		if err := aa.Merge(a); err != nil {
			t.Fatal(err)
		}
		if !rgaEqual(aa, a) {
			t.Fatalf("seed %d: merge not idempotent", seed)
		}
	}
}

func TestRGAMergeNil(t *testing.T) {
	r := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	if err := r.Merge(nil); !errors.Is(err, crdt.ErrInvalidSnapshot) {
		t.Errorf("Merge(nil) error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestRGAJSONRoundTrip(t *testing.T) {
	a := randomRGA(t, 7, "11111111-1111-1111-1111-111111111111")

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored := NewRGA[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !rgaEqual(a, restored) {
		t.Error("round trip changed sequence state")
	}
	if restored.Replica() != a.Replica() {
		t.Error("round trip changed replica identity")
	}
	if restored.Len() != a.Len() {
		t.Errorf("round trip Len = %d, want %d", restored.Len(), a.Len())
	}
}

func TestRGAUnmarshalInvalidLeavesTargetUntouched(t *testing.T) {
	r := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	insertText(t, r, "keep")
	before := rgaFingerprint(r)

	for _, bad := range []string{
		`{"replica": 17}`,
		`"a string, not a state object"`,
		`{"replica":"11111111-1111-1111-1111-111111111111","clock":1,"elements":[{"position":[],"value":"x","meta":{}}]}`,
	} {
		if err := json.Unmarshal([]byte(bad), r); !errors.Is(err, crdt.ErrInvalidSnapshot) {
			t.Errorf("Unmarshal(%q) error = %v, want ErrInvalidSnapshot", bad, err)
		}
		if !reflect.DeepEqual(rgaFingerprint(r), before) {
			t.Fatalf("failed unmarshal mutated the receiver")
		}
	}

	// Input the scanner rejects outright never reaches UnmarshalJSON;
	// the error is the decoder's own, but the receiver must still be
	// untouched.
	if err := json.Unmarshal([]byte(`not json`), r); err == nil {
		t.Error("Unmarshal(not json) succeeded, want error")
	}
	if !reflect.DeepEqual(rgaFingerprint(r), before) {
		t.Fatal("failed unmarshal mutated the receiver")
	}
}

func TestRGAHasConflict(t *testing.T) {
	a := NewRGA[string](mustReplica(t, "11111111-1111-1111-1111-111111111111"))
	positions := insertText(t, a, "x")

	b := a.Clone()
	// Both replicas delete the same element; each stamps the tombstone
	// at the same logical time from a different replica.
	bReplica := NewRGA[string](mustReplica(t, "22222222-2222-2222-2222-222222222222"))
	data, _ := json.Marshal(b)
	if err := json.Unmarshal(data, bReplica); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	bReplica.replica = mustReplica(t, "22222222-2222-2222-2222-222222222222")

	if err := a.Delete(positions[0]); err != nil {
		t.Fatal(err)
	}
	if err := bReplica.Delete(positions[0]); err != nil {
		t.Fatal(err)
	}

	if !a.HasConflict(bReplica) {
		t.Error("HasConflict = false for equal-timestamp writes from different replicas")
	}
	if a.HasConflict(a.Clone()) {
		t.Error("HasConflict = true against an identical clone")
	}
}
