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
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/resolve"
)

// Handlers holds the HTTP handlers for the drift API.
type Handlers struct {
	service *Service
	hub     *Hub
}

// NewHandlers creates the handler set.
func NewHandlers(service *Service, hub *Hub) *Handlers {
	return &Handlers{service: service, hub: hub}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDocNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocExists),
		errors.Is(err, resolve.ErrUnresolvable):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownKind),
		errors.Is(err, ErrKindMismatch),
		errors.Is(err, ErrInvalidOp),
		errors.Is(err, ErrInvalidDocName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// createDocRequest is the body of POST /docs.
type createDocRequest struct {
	Name string `json:"name" binding:"required"`
	Kind Kind   `json:"kind" binding:"required"`
}

// HandleCreateDoc creates a new empty document.
func (h *Handlers) HandleCreateDoc(c *gin.Context) {
	var req createDocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Create(c.Request.Context(), req.Name, req.Kind); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "kind": req.Kind})
}

// HandleListDocs lists all documents with their kinds.
func (h *Handlers) HandleListDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"replica":   h.service.Replica(),
		"documents": h.service.Docs(),
	})
}

// HandleGetDoc returns the materialized view of a document.
func (h *Handlers) HandleGetDoc(c *gin.Context) {
	name := c.Param("name")
	view, kind, err := h.service.View(name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "kind": kind, "value": view})
}

// HandleDeleteDoc removes a document locally.
func (h *Handlers) HandleDeleteDoc(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSnapshot returns the full serialized state of a document.
func (h *Handlers) HandleSnapshot(c *gin.Context) {
	data, err := h.service.Snapshot(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// HandleMerge merges a remote snapshot posted as the request body.
func (h *Handlers) HandleMerge(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 32<<20))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot too large"})
		return
	}
	name := c.Param("name")
	if err := h.service.MergeSnapshot(c.Request.Context(), name, data); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "merged": true})
}

// opsRequest is the body of POST /docs/:name/ops.
type opsRequest struct {
	Ops []Operation `json:"ops" binding:"required,min=1,dive"`
}

// HandleOps applies an operation batch to a document.
func (h *Handlers) HandleOps(c *gin.Context) {
	var req opsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := h.service.Apply(c.Request.Context(), name, req.Ops); err != nil {
		abortWithError(c, err)
		return
	}
	view, kind, err := h.service.View(name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "kind": kind, "value": view})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleReady reports readiness: documents are loaded and the store
// answers.
func (h *Handlers) HandleReady(c *gin.Context) {
	if _, err := h.service.List(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
