// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package drift

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// session is one connected sync client.
type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans document snapshots out to websocket sync sessions.
//
// Each session is bound to one document. A client sends envelope frames
// which the hub merges into the local document; after every merge (or
// any local mutation, via the service change hook) the hub pushes the
// current snapshot to all sessions on that document.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	service *Service
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]map[string]*session // doc -> session id -> session
}

// NewHub creates a hub and registers it for change notifications.
func NewHub(service *Service, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		service:  service,
		logger:   logger,
		sessions: make(map[string]map[string]*session),
	}
	service.OnChange(h.Broadcast)
	return h
}

// HandleSync upgrades the request and runs one sync session.
func (h *Hub) HandleSync(c *gin.Context) {
	name := c.Param("name")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	sess := &session{id: uuid.New().String(), conn: ws}
	h.register(name, sess)
	defer h.unregister(name, sess)
	h.logger.Info("sync session started",
		slog.String("doc", name), slog.String("session", sess.id))

	// Seed the client with current state so a fresh replica catches up
	// without waiting for a local change.
	if snapshot, err := h.service.Snapshot(c.Request.Context(), name); err == nil {
		if err := sess.send(snapshot); err != nil {
			return
		}
	}

	// Frame rate limit per session; snapshots are cheap to merge but a
	// runaway client shouldn't monopolize the write lock.
	limiter := rate.NewLimiter(rate.Limit(50), 100)

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			h.logger.Info("sync session ended",
				slog.String("doc", name),
				slog.String("session", sess.id),
				slog.String("reason", err.Error()))
			return
		}
		if !limiter.Allow() {
			h.logger.Warn("sync frame rate limited",
				slog.String("doc", name), slog.String("session", sess.id))
			continue
		}

		if err := h.service.MergeSnapshot(c.Request.Context(), name, frame); err != nil {
			h.logger.Warn("sync merge failed",
				slog.String("doc", name),
				slog.String("session", sess.id),
				slog.String("error", err.Error()))
			if errFrame, merr := json.Marshal(map[string]string{"error": err.Error()}); merr == nil {
				_ = sess.send(errFrame)
			}
		}
		// Success needs no ack: the merge fires the change hook, which
		// broadcasts the converged snapshot to every session.
	}
}

// Broadcast pushes the current snapshot of a document to all of its
// sessions. Used as the service change hook.
func (h *Hub) Broadcast(name string) {
	h.mu.Lock()
	peers := make([]*session, 0, len(h.sessions[name]))
	for _, sess := range h.sessions[name] {
		peers = append(peers, sess)
	}
	h.mu.Unlock()
	if len(peers) == 0 {
		return
	}

	snapshot, err := h.service.Snapshot(context.Background(), name)
	if err != nil {
		return
	}
	for _, sess := range peers {
		if err := sess.send(snapshot); err != nil {
			h.logger.Warn("broadcast write failed",
				slog.String("doc", name), slog.String("session", sess.id))
		}
	}
}

// SessionCount returns the number of active sessions on a document.
func (h *Hub) SessionCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[name])
}

func (h *Hub) register(name string, sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[name] == nil {
		h.sessions[name] = make(map[string]*session)
	}
	h.sessions[name][sess.id] = sess
}

func (h *Hub) unregister(name string, sess *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[name], sess.id)
	if len(h.sessions[name]) == 0 {
		delete(h.sessions, name)
	}
}
