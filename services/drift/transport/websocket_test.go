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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades each connection and echoes every frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForFrames(t *testing.T, ws *WebSocket, want int) [][]byte {
	t.Helper()
	var frames [][]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(frames) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames, got %d", want, len(frames))
		}
		batch, err := ws.Receive()
		require.NoError(t, err)
		frames = append(frames, batch...)
		if len(batch) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return frames
}

func TestWebSocketSendReceive(t *testing.T) {
	srv := echoServer(t)

	ws, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer ws.Close()

	assert.True(t, ws.IsConnected())

	require.NoError(t, ws.Send([]byte(`{"kind":"register"}`)))
	require.NoError(t, ws.Send([]byte(`{"kind":"counter"}`)))

	frames := waitForFrames(t, ws, 2)
	assert.Equal(t, `{"kind":"register"}`, string(frames[0]))
	assert.Equal(t, `{"kind":"counter"}`, string(frames[1]))

	// Inbox is drained: an immediate second call returns nothing.
	again, err := ws.Receive()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestWebSocketClosedBehavior(t *testing.T) {
	srv := echoServer(t)

	ws, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close()) // idempotent

	assert.False(t, ws.IsConnected())
	assert.ErrorIs(t, ws.Send([]byte("x")), ErrNotConnected)

	_, err = ws.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws/drift/doc")
	assert.Error(t, err)
}
