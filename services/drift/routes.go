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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Drift routes with the router.
//
// Description:
//
//	Registers all /v1/drift/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Document Endpoints:
//
//	POST   /v1/drift/docs - Create a document
//	GET    /v1/drift/docs - List documents
//	GET    /v1/drift/docs/:name - Materialized document value
//	DELETE /v1/drift/docs/:name - Delete a document locally
//	GET    /v1/drift/docs/:name/snapshot - Full serialized state
//	POST   /v1/drift/docs/:name/merge - Merge a remote snapshot
//	POST   /v1/drift/docs/:name/ops - Apply an operation batch
//
// Health Endpoints:
//
//	GET /v1/drift/health - Health check
//	GET /v1/drift/ready - Readiness check
//
// Example:
//
//	service := drift.NewService(replica, store, logger)
//	hub := drift.NewHub(service, logger)
//	handlers := drift.NewHandlers(service, hub)
//
//	v1 := router.Group("/v1")
//	drift.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	drift := rg.Group("/drift")
	{
		docs := drift.Group("/docs")
		{
			docs.POST("", handlers.HandleCreateDoc)
			docs.GET("", handlers.HandleListDocs)
			docs.GET("/:name", handlers.HandleGetDoc)
			docs.DELETE("/:name", handlers.HandleDeleteDoc)
			docs.GET("/:name/snapshot", handlers.HandleSnapshot)
			docs.POST("/:name/merge", handlers.HandleMerge)
			docs.POST("/:name/ops", handlers.HandleOps)
		}

		// Health checks
		drift.GET("/health", handlers.HandleHealth)
		drift.GET("/ready", handlers.HandleReady)
	}
}

// RegisterSyncRoutes registers the websocket sync endpoint. It lives
// outside the /v1 group because websocket paths are versioned by the
// frame format, not the HTTP surface.
//
//	GET /ws/drift/:name - Websocket sync session for one document
func RegisterSyncRoutes(router *gin.Engine, hub *Hub) {
	router.GET("/ws/drift/:name", hub.HandleSync)
}
