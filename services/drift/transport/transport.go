// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport moves serialized snapshots between replicas.
//
// Transports carry opaque bytes and make no delivery-order or
// exactly-once promises; CRDT merge semantics absorb duplication and
// reordering, so at-least-once in any order is sufficient.
package transport

// Transport is a bidirectional channel for snapshot exchange.
//
// # Thread Safety
//
// Implementations must allow Send and Receive from different
// goroutines.
type Transport interface {
	// Send transmits one snapshot frame to the peer. Returns
	// ErrNotConnected when no connection is open.
	Send(payload []byte) error

	// Receive drains and returns all frames that arrived since the
	// previous call. Returns an empty slice when nothing arrived, and
	// ErrClosed after the connection shuts down and the inbox drains.
	Receive() ([][]byte, error)

	// IsConnected reports whether the underlying connection is open.
	IsConnected() bool

	// Close shuts the transport down. Safe to call more than once.
	Close() error
}
