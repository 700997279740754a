// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists serialized CRDT snapshots.
//
// The CRDT core never touches storage; it produces and consumes opaque
// snapshot bytes, and the service layer moves those bytes through a
// SnapshotStore. Stores have no knowledge of CRDT internals — a failed
// read or decode never corrupts in-memory state, because decoding
// happens into a temporary before any state is swapped.
package storage

import "context"

// SnapshotStore is an opaque byte store for serialized CRDT state.
//
// Implementations must be safe for concurrent use. Keys are flat
// strings; the service layer namespaces them ("doc/<name>").
type SnapshotStore interface {
	// Get returns the bytes stored under key and whether the key
	// exists. A missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is a no-op.
	Remove(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix, sorted. An empty
	// prefix returns every key.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources. The store is unusable
	// afterwards.
	Close() error
}
