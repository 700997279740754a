// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// inboxLimit caps buffered frames between Receive calls. A slow
	// consumer drops its oldest frames; a later snapshot supersedes an
	// older one under merge semantics, so this loses no information.
	inboxLimit = 256
)

// WebSocket is a Transport over a gorilla websocket connection.
//
// A background read pump buffers incoming frames into an inbox that
// Receive drains. Writes are serialized with a mutex; gorilla
// connections support one concurrent writer.
//
// # Thread Safety
//
// Safe for concurrent use.
type WebSocket struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	inbox     [][]byte
	connected bool
	closed    bool
	done      chan struct{}
}

// Dial connects to a websocket sync endpoint and starts the read pump.
//
// Description:
//
//	Establishes the websocket connection and begins buffering incoming
//	snapshot frames. The caller drains them with Receive.
//
// Inputs:
//
//	ctx - Controls the dial handshake only, not the connection lifetime.
//	url - ws:// or wss:// endpoint of a peer's sync session.
//
// Outputs:
//
//	*WebSocket - Connected transport. Caller must Close() when done.
//	error - Non-nil if the handshake fails.
func Dial(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	ws := &WebSocket{
		conn:      conn,
		connected: true,
		done:      make(chan struct{}),
	}
	go ws.readPump()
	return ws, nil
}

// Send transmits one snapshot frame to the peer.
func (w *WebSocket) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return ErrNotConnected
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		w.connected = false
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive drains the inbox and returns the buffered frames, oldest
// first. After the connection closes and the inbox empties, it returns
// ErrClosed.
func (w *WebSocket) Receive() ([][]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.inbox) == 0 {
		if !w.connected {
			return nil, ErrClosed
		}
		return nil, nil
	}
	frames := w.inbox
	w.inbox = nil
	return frames, nil
}

// IsConnected reports whether the connection is open.
func (w *WebSocket) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Close shuts the connection down and stops the read pump.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.connected = false
	conn := w.conn
	w.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := conn.Close()
	<-w.done
	return err
}

func (w *WebSocket) readPump() {
	defer close(w.done)

	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.connected = false
			w.mu.Unlock()
			return
		}

		w.mu.Lock()
		w.inbox = append(w.inbox, payload)
		if len(w.inbox) > inboxLimit {
			w.inbox = w.inbox[len(w.inbox)-inboxLimit:]
		}
		w.mu.Unlock()
	}
}
