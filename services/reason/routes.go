// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reason

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all reasoning routes with the router.
//
// Description:
//
//	Registers all /v1/reason/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET    /v1/reason/health - Liveness and session count
//	GET    /v1/reason/patterns - List patterns and their operations
//	POST   /v1/reason/patterns/:pattern - Run one operation
//	GET    /v1/reason/sessions - List live sessions
//	GET    /v1/reason/sessions/:id - Session summary
//	GET    /v1/reason/sessions/:id/export - Export the thought sequence
//	DELETE /v1/reason/sessions/:id - Delete a session
//	GET    /v1/reason/thoughts/:id - Read a sequential thinking log
//	POST   /v1/reason/thoughts/:id - Append to a sequential thinking log
//	DELETE /v1/reason/thoughts/:id - Clear a sequential thinking log
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	r := rg.Group("/reason")
	r.Use(handlers.limitBody)
	{
		r.GET("/health", handlers.HandleHealth)

		r.GET("/patterns", handlers.HandlePatterns)
		r.POST("/patterns/:pattern", handlers.HandleOperation)

		r.GET("/sessions", handlers.HandleListSessions)
		r.GET("/sessions/:id", handlers.HandleGetSession)
		r.GET("/sessions/:id/export", handlers.HandleExportSession)
		r.DELETE("/sessions/:id", handlers.HandleDeleteSession)

		r.GET("/thoughts/:id", handlers.HandleGetThoughts)
		r.POST("/thoughts/:id", handlers.HandleRecordThought)
		r.DELETE("/thoughts/:id", handlers.HandleClearThoughts)
	}
}
