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
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
)

// Strategy selects how a detected conflict is resolved.
type Strategy int

const (
	// LastWriteWins delegates to the type's own merge, whose tie-break
	// already favors the later write.
	LastWriteWins Strategy = iota

	// FirstWriteWins keeps the side whose last write is earlier,
	// wholesale. This is genuinely distinct from LastWriteWins: the
	// later write is discarded, not merged.
	FirstWriteWins

	// CustomMerge dispatches on the conflict type tag to a registered
	// merger function.
	CustomMerge

	// ManualResolution refuses to resolve automatically; every conflict
	// fails with ErrUnresolvable so the caller can escalate.
	ManualResolution

	// ConflictAvoidance tries the type's merge and, should that fail,
	// falls back to keeping whichever side wrote last.
	ConflictAvoidance
)

// ParseStrategy converts a configuration name to a Strategy. The empty
// string selects LastWriteWins.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "last_write_wins":
		return LastWriteWins, nil
	case "first_write_wins":
		return FirstWriteWins, nil
	case "custom_merge":
		return CustomMerge, nil
	case "manual_resolution":
		return ManualResolution, nil
	case "conflict_avoidance":
		return ConflictAvoidance, nil
	default:
		return 0, fmt.Errorf("unknown resolve strategy %q", s)
	}
}

// String returns the strategy name used in logs and stats.
func (s Strategy) String() string {
	switch s {
	case LastWriteWins:
		return "last_write_wins"
	case FirstWriteWins:
		return "first_write_wins"
	case CustomMerge:
		return "custom_merge"
	case ManualResolution:
		return "manual_resolution"
	case ConflictAvoidance:
		return "conflict_avoidance"
	default:
		return "unknown"
	}
}

// ConflictMetadata describes one detected conflict to the resolver: who
// wrote what and when on each side, plus the dispatch tag for custom
// mergers.
type ConflictMetadata struct {
	// DocumentID names the document the conflict occurred in.
	DocumentID string `json:"document_id"`

	// ConflictType is the dispatch tag for CustomMerge, for example
	// "text", "numeric", or "list".
	ConflictType string `json:"conflict_type"`

	// Local is the metadata of the local side's conflicting write.
	Local crdt.Metadata `json:"local"`

	// Remote is the metadata of the remote side's conflicting write.
	Remote crdt.Metadata `json:"remote"`
}

// Resolution is the outcome of a successful Resolve call.
type Resolution[T any] struct {
	// Value is the resolved state. It is always a fresh value; neither
	// input is mutated.
	Value T

	// Strategy is the strategy that produced the value.
	Strategy Strategy

	// ConflictsResolved counts the conflicts settled by this call:
	// zero when no true conflict existed.
	ConflictsResolved int

	// ResolvedAt is the wall-clock time of the resolution.
	ResolvedAt time.Time
}

// MergerFunc combines two conflicting states into one. Registered per
// conflict type tag for the CustomMerge strategy. Implementations must
// not mutate their inputs.
type MergerFunc[T any] func(local, remote T) (T, error)

// Resolver applies a configured strategy to conflicting CRDT states.
//
// # Thread Safety
//
// Register is for setup; call it before sharing the resolver. Resolve
// is safe for concurrent use afterwards (the history log carries its
// own lock).
type Resolver[T crdt.Resolvable[T]] struct {
	strategy Strategy
	mergers  map[string]MergerFunc[T]
	history  *ConflictLog
}

// NewResolver creates a resolver with the given default strategy and a
// bounded conflict history.
func NewResolver[T crdt.Resolvable[T]](strategy Strategy) *Resolver[T] {
	return &Resolver[T]{
		strategy: strategy,
		mergers:  make(map[string]MergerFunc[T]),
		history:  NewConflictLog(DefaultHistoryLimit),
	}
}

// Strategy returns the configured default strategy.
func (r *Resolver[T]) Strategy() Strategy {
	return r.strategy
}

// Register installs a merger for the given conflict type tag, replacing
// any previous registration.
func (r *Resolver[T]) Register(conflictType string, fn MergerFunc[T]) {
	r.mergers[conflictType] = fn
}

// History returns the bounded conflict log.
func (r *Resolver[T]) History() *ConflictLog {
	return r.history
}

// Resolve settles the state between local and remote.
//
// When the two sides carry no true conflict the local state is returned
// unchanged with ConflictsResolved zero; the caller is expected to
// merge normally. When a conflict exists it is recorded in the history
// log and resolved per the configured strategy; a strategy that cannot
// produce an outcome (manual resolution, missing custom merger, failing
// merge) returns an error and the caller must escalate rather than
// guess.
func (r *Resolver[T]) Resolve(local, remote T, meta ConflictMetadata) (Resolution[T], error) {
	if !local.HasConflict(remote) {
		return Resolution[T]{
			Value:      local.Clone(),
			Strategy:   r.strategy,
			ResolvedAt: time.Now(),
		}, nil
	}

	value, err := r.apply(local, remote, meta)
	r.history.record(Record{
		DocumentID:   meta.DocumentID,
		ConflictType: meta.ConflictType,
		Strategy:     r.strategy,
		At:           time.Now(),
		Resolved:     err == nil,
		Err:          errString(err),
	})
	if err != nil {
		return Resolution[T]{}, err
	}
	return Resolution[T]{
		Value:             value,
		Strategy:          r.strategy,
		ConflictsResolved: 1,
		ResolvedAt:        time.Now(),
	}, nil
}

// apply dispatches one conflict to the configured strategy.
func (r *Resolver[T]) apply(local, remote T, meta ConflictMetadata) (T, error) {
	var zero T
	switch r.strategy {
	case LastWriteWins:
		merged := local.Clone()
		if err := merged.Merge(remote); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return merged, nil

	case FirstWriteWins:
		// The earlier write wins wholesale; ties fall to the smaller
		// replica id so every replica picks the same side.
		if meta.Remote.NewerThan(meta.Local) {
			return local.Clone(), nil
		}
		return remote.Clone(), nil

	case CustomMerge:
		fn, ok := r.mergers[meta.ConflictType]
		if !ok {
			return zero, fmt.Errorf("%w: %q", ErrStrategyNotApplicable, meta.ConflictType)
		}
		merged, err := fn(local, remote)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return merged, nil

	case ManualResolution:
		return zero, ErrUnresolvable

	case ConflictAvoidance:
		merged := local.Clone()
		if err := merged.Merge(remote); err == nil {
			return merged, nil
		}
		// Merge refused the input; keep whichever side wrote last.
		if meta.Remote.NewerThan(meta.Local) {
			return remote.Clone(), nil
		}
		return local.Clone(), nil

	default:
		return zero, fmt.Errorf("%w: unknown strategy %d", ErrStrategyNotApplicable, r.strategy)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
