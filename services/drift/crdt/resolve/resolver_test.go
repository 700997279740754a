// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

func mustReplica(t *testing.T, s string) crdt.ReplicaID {
	t.Helper()
	id, err := crdt.ParseReplicaID(s)
	if err != nil {
		t.Fatalf("ParseReplicaID(%q): %v", s, err)
	}
	return id
}

// conflictingRegisters builds two registers that wrote different values
// at the same instant from different replicas: a true conflict.
func conflictingRegisters(t *testing.T) (*crdt.LWWRegister[string], *crdt.LWWRegister[string], ConflictMetadata) {
	t.Helper()
	a := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	b := mustReplica(t, "22222222-2222-2222-2222-222222222222")
	at := time.Unix(1000, 0)

	local := crdt.NewLWWRegister[string](a)
	local.Set("local", at)
	remote := crdt.NewLWWRegister[string](b)
	remote.Set("remote", at)

	ts := uint64(at.UnixNano())
	meta := ConflictMetadata{
		DocumentID:   "doc-1",
		ConflictType: "text",
		Local:        crdt.NewMetadata(a, ts),
		Remote:       crdt.NewMetadata(b, ts),
	}
	return local, remote, meta
}

func TestResolveNoConflictReturnsLocal(t *testing.T) {
	a := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	b := mustReplica(t, "22222222-2222-2222-2222-222222222222")

	local := crdt.NewLWWRegister[string](a)
	local.Set("local", time.Unix(1000, 0))
	remote := crdt.NewLWWRegister[string](b)
	remote.Set("remote", time.Unix(2000, 0))

	r := NewResolver[*crdt.LWWRegister[string]](LastWriteWins)
	res, err := r.Resolve(local, remote, ConflictMetadata{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.ConflictsResolved != 0 {
		t.Errorf("ConflictsResolved = %d, want 0", res.ConflictsResolved)
	}
	if res.Value.Value() != "local" {
		t.Errorf("value = %q, want local unchanged", res.Value.Value())
	}
	if got := r.History().Stats().Total; got != 0 {
		t.Errorf("history total = %d, want 0 for non-conflict", got)
	}
	if res.ResolvedAt.IsZero() {
		t.Error("ResolvedAt is zero on the no-conflict path")
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"":                   LastWriteWins,
		"last_write_wins":    LastWriteWins,
		"first_write_wins":   FirstWriteWins,
		"custom_merge":       CustomMerge,
		"manual_resolution":  ManualResolution,
		"conflict_avoidance": ConflictAvoidance,
	}
	for name, want := range cases {
		got, err := ParseStrategy(name)
		if err != nil {
			t.Errorf("ParseStrategy(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseStrategy(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseStrategy("coin_flip"); err == nil {
		t.Error("ParseStrategy accepted an unknown name")
	}
}

func TestResolveLastWriteWins(t *testing.T) {
	local, remote, meta := conflictingRegisters(t)

	r := NewResolver[*crdt.LWWRegister[string]](LastWriteWins)
	res, err := r.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.ConflictsResolved != 1 {
		t.Errorf("ConflictsResolved = %d, want 1", res.ConflictsResolved)
	}
	// Equal timestamps: the larger replica id wins under the shared
	// tie-break, which is the remote writer here.
	if res.Value.Value() != "remote" {
		t.Errorf("LWW value = %q, want remote", res.Value.Value())
	}
	// Inputs stay untouched.
	if local.Value() != "local" || remote.Value() != "remote" {
		t.Error("Resolve mutated its inputs")
	}
}

func TestResolveFirstWriteWinsIsDistinct(t *testing.T) {
	a := mustReplica(t, "11111111-1111-1111-1111-111111111111")
	b := mustReplica(t, "22222222-2222-2222-2222-222222222222")

	local := crdt.NewLWWRegister[string](a)
	local.Set("early", time.Unix(1000, 0))
	remote := crdt.NewLWWRegister[string](b)
	remote.Set("late", time.Unix(1000, 0))

	meta := ConflictMetadata{
		DocumentID: "doc-1",
		Local:      crdt.NewMetadata(a, 1000),
		Remote:     crdt.NewMetadata(b, 2000),
	}

	fww := NewResolver[*crdt.LWWRegister[string]](FirstWriteWins)
	res, err := fww.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Value.Value() != "early" {
		t.Errorf("FWW value = %q, want early", res.Value.Value())
	}

	// Same inputs under LWW pick the opposite side: the strategies are
	// genuinely different.
	lww := NewResolver[*crdt.LWWRegister[string]](LastWriteWins)
	res2, err := lww.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res2.Value.Value() == res.Value.Value() {
		t.Error("FWW and LWW picked the same value for an asymmetric conflict")
	}
}

func TestResolveFirstWriteWinsTieBreak(t *testing.T) {
	local, remote, meta := conflictingRegisters(t)

	r := NewResolver[*crdt.LWWRegister[string]](FirstWriteWins)
	res, err := r.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Equal timestamps: FWW falls to the smaller replica id, the local
	// writer here — the mirror image of the LWW tie-break.
	if res.Value.Value() != "local" {
		t.Errorf("FWW tie value = %q, want local", res.Value.Value())
	}
}

func TestResolveCustomMerge(t *testing.T) {
	local, remote, meta := conflictingRegisters(t)

	r := NewResolver[*crdt.LWWRegister[string]](CustomMerge)
	r.Register("text", func(l, rm *crdt.LWWRegister[string]) (*crdt.LWWRegister[string], error) {
		merged := l.Clone()
		merged.Set(l.Value()+"+"+rm.Value(), time.Unix(3000, 0))
		return merged, nil
	})

	res, err := r.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Value.Value() != "local+remote" {
		t.Errorf("custom merge value = %q, want local+remote", res.Value.Value())
	}

	// Unregistered tag fails with StrategyNotApplicable.
	meta.ConflictType = "numeric"
	if _, err := r.Resolve(local, remote, meta); !errors.Is(err, ErrStrategyNotApplicable) {
		t.Errorf("unregistered tag error = %v, want ErrStrategyNotApplicable", err)
	}
}

func TestResolveManualAlwaysFails(t *testing.T) {
	local, remote, meta := conflictingRegisters(t)

	r := NewResolver[*crdt.LWWRegister[string]](ManualResolution)
	if _, err := r.Resolve(local, remote, meta); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("manual error = %v, want ErrUnresolvable", err)
	}

	stats := r.History().Stats()
	if stats.Total != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want one failed entry", stats)
	}
}

func TestResolveConflictAvoidance(t *testing.T) {
	local, remote, meta := conflictingRegisters(t)

	r := NewResolver[*crdt.LWWRegister[string]](ConflictAvoidance)
	res, err := r.Resolve(local, remote, meta)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Merge succeeds for well-formed registers, so avoidance behaves
	// like the capability merge.
	if res.Value.Value() != "remote" {
		t.Errorf("avoidance value = %q, want remote", res.Value.Value())
	}
}

func TestConflictLogBounds(t *testing.T) {
	log := NewConflictLog(3)
	for i := 0; i < 5; i++ {
		log.record(Record{DocumentID: "doc", Strategy: LastWriteWins, Resolved: true})
	}

	recs := log.Records()
	if len(recs) != 3 {
		t.Errorf("retained records = %d, want 3", len(recs))
	}
	stats := log.Stats()
	if stats.Total != 5 || stats.Resolved != 5 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want total 5 resolved 5", stats)
	}
	if stats.ByStrategy["last_write_wins"] != 5 {
		t.Errorf("by-strategy count = %d, want 5", stats.ByStrategy["last_write_wins"])
	}
}
