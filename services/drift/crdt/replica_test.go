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
	"errors"
	"testing"
)

// mustReplica parses a fixed UUID string so tests can rely on byte order.
func mustReplica(t *testing.T, s string) ReplicaID {
	t.Helper()
	id, err := ParseReplicaID(s)
	if err != nil {
		t.Fatalf("ParseReplicaID(%q): %v", s, err)
	}
	return id
}

func TestReplicaIDRoundTrip(t *testing.T) {
	id := NewReplicaID()
	if id.IsZero() {
		t.Fatal("NewReplicaID returned zero id")
	}

	parsed, err := ParseReplicaID(id.String())
	if err != nil {
		t.Fatalf("ParseReplicaID: %v", err)
	}
	if !parsed.Equal(id) {
		t.Errorf("round trip mismatch: got %s, want %s", parsed, id)
	}
}

func TestReplicaIDParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "garbage", input: "not-a-uuid"},
		{name: "truncated", input: "11111111-1111-1111-1111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReplicaID(tt.input); err == nil {
				t.Errorf("ParseReplicaID(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestReplicaIDCompare(t *testing.T) {
	low := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	high := mustReplica(t, "ffffffff-ffff-ffff-ffff-ffffffffffff")

	if got := low.Compare(high); got >= 0 {
		t.Errorf("low.Compare(high) = %d, want < 0", got)
	}
	if got := high.Compare(low); got <= 0 {
		t.Errorf("high.Compare(low) = %d, want > 0", got)
	}
	if got := low.Compare(low); got != 0 {
		t.Errorf("low.Compare(low) = %d, want 0", got)
	}
}

func TestReplicaIDUnmarshalTextInvalid(t *testing.T) {
	var id ReplicaID
	err := id.UnmarshalText([]byte("bogus"))
	if !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("UnmarshalText error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestLamportClockTick(t *testing.T) {
	var clock LamportClock

	prev := uint64(0)
	for i := 0; i < 5; i++ {
		ts := clock.Tick()
		if ts <= prev {
			t.Fatalf("Tick() = %d after %d, want strictly increasing", ts, prev)
		}
		prev = ts
	}
}

func TestLamportClockObserve(t *testing.T) {
	tests := []struct {
		name     string
		start    uint64
		observed uint64
		wantNext uint64
	}{
		{name: "remote ahead jumps past it", start: 3, observed: 10, wantNext: 11},
		{name: "remote behind keeps local order", start: 7, observed: 2, wantNext: 8},
		{name: "remote equal still advances", start: 5, observed: 5, wantNext: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := LamportClock{counter: tt.start}
			clock.Observe(tt.observed)
			if got := clock.Tick(); got != tt.wantNext {
				t.Errorf("Tick() after Observe(%d) = %d, want %d", tt.observed, got, tt.wantNext)
			}
		})
	}
}

func TestMetadataNewerThan(t *testing.T) {
	low := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	high := mustReplica(t, "ffffffff-ffff-ffff-ffff-ffffffffffff")

	tests := []struct {
		name string
		a, b Metadata
		want bool
	}{
		{
			name: "later timestamp wins",
			a:    Metadata{ModifiedAt: 10, LastModifiedBy: low},
			b:    Metadata{ModifiedAt: 5, LastModifiedBy: high},
			want: true,
		},
		{
			name: "earlier timestamp loses",
			a:    Metadata{ModifiedAt: 5, LastModifiedBy: high},
			b:    Metadata{ModifiedAt: 10, LastModifiedBy: low},
			want: false,
		},
		{
			name: "tie broken by replica bytes",
			a:    Metadata{ModifiedAt: 7, LastModifiedBy: high},
			b:    Metadata{ModifiedAt: 7, LastModifiedBy: low},
			want: true,
		},
		{
			name: "identical metadata is not newer",
			a:    Metadata{ModifiedAt: 7, LastModifiedBy: low},
			b:    Metadata{ModifiedAt: 7, LastModifiedBy: low},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.NewerThan(tt.b); got != tt.want {
				t.Errorf("NewerThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetadataConcurrentWith(t *testing.T) {
	a := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	b := mustReplica(t, "22222222-2222-2222-2222-222222222222")

	same := Metadata{ModifiedAt: 9, LastModifiedBy: a}
	concurrent := Metadata{ModifiedAt: 9, LastModifiedBy: b}
	later := Metadata{ModifiedAt: 12, LastModifiedBy: b}

	if !same.ConcurrentWith(concurrent) {
		t.Error("equal timestamps from different replicas should be concurrent")
	}
	if same.ConcurrentWith(later) {
		t.Error("differing timestamps should not be concurrent")
	}
	if same.ConcurrentWith(same) {
		t.Error("identical metadata should not be concurrent with itself")
	}
}

func TestMetadataTouch(t *testing.T) {
	creator := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	editor := mustReplica(t, "22222222-2222-2222-2222-222222222222")

	md := NewMetadata(creator, 5)
	md.Touch(editor, 9)

	if md.CreatedAt != 5 || !md.CreatedBy.Equal(creator) {
		t.Errorf("Touch altered creation fields: %+v", md)
	}
	if md.ModifiedAt != 9 || !md.LastModifiedBy.Equal(editor) {
		t.Errorf("Touch did not record modification: %+v", md)
	}

	// A stale touch still records the writer but never rewinds the clock.
	md.Touch(creator, 3)
	if md.ModifiedAt != 9 {
		t.Errorf("ModifiedAt rewound to %d, want 9", md.ModifiedAt)
	}
}
