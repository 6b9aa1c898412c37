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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/telemetry"
)

// Handlers contains the HTTP handlers for the reasoning service.
type Handlers struct {
	svc          *Service
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

// WithMaxBodyBytes caps request bodies. Zero or less disables the cap.
func (h *Handlers) WithMaxBodyBytes(n int64) *Handlers {
	h.maxBodyBytes = n
	return h
}

// HandleOperation handles POST /v1/reason/patterns/:pattern.
//
// Description:
//
//	Runs one operation against the named pattern. The pattern accepts the
//	aliases understood by engine.ParsePattern.
//
// Request Body:
//
//	OperationRequest
//
// Response:
//
//	200 OK: OperationResponse
//	400 Bad Request: Malformed body, invalid or unsupported operation
//	404 Not Found: Unknown session or node
//	409 Conflict: Capacity exceeded or cycle rejected
//	500 Internal Server Error: Unexpected failure
func (h *Handlers) HandleOperation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	pattern := c.Param("pattern")
	logger := h.logger.With("request_id", requestID, "handler", "HandleOperation", "pattern", pattern)

	var req OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.svc.Execute(c.Request.Context(), pattern, req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	logger.DebugContext(c.Request.Context(), "Operation complete",
		"operation", resp.Operation,
		"session_id", resp.SessionID,
		"iteration", resp.Iteration,
	)
	c.JSON(http.StatusOK, resp)
}

// HandlePatterns handles GET /v1/reason/patterns.
func (h *Handlers) HandlePatterns(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Patterns())
}

// HandleListSessions handles GET /v1/reason/sessions.
func (h *Handlers) HandleListSessions(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, h.svc.Sessions())
}

// HandleGetSession handles GET /v1/reason/sessions/:id.
func (h *Handlers) HandleGetSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetSession")

	info, err := h.svc.Session(c.Param("id"))
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleExportSession handles GET /v1/reason/sessions/:id/export.
//
// Response:
//
//	200 OK: ExportResponse
//	404 Not Found: Unknown session
func (h *Handlers) HandleExportSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleExportSession")

	resp, err := h.svc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeleteSession handles DELETE /v1/reason/sessions/:id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleDeleteSession")

	if err := h.svc.Delete(c.Param("id")); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRecordThought handles POST /v1/reason/thoughts/:id.
//
// Description:
//
//	Appends one record to a sequential thinking log. Import can later read
//	the log by passing its id as source_session_id.
//
// Request Body:
//
//	RecordThoughtRequest
//
// Response:
//
//	200 OK: RecordThoughtResponse
//	400 Bad Request: Malformed record or out-of-order index
func (h *Handlers) HandleRecordThought(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleRecordThought")

	var req RecordThoughtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.svc.RecordThought(c.Param("id"), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetThoughts handles GET /v1/reason/thoughts/:id.
func (h *Handlers) HandleGetThoughts(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleGetThoughts")

	seq, err := h.svc.Thoughts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, seq)
}

// HandleClearThoughts handles DELETE /v1/reason/thoughts/:id.
func (h *Handlers) HandleClearThoughts(c *gin.Context) {
	getOrCreateRequestID(c)
	h.svc.ClearThoughts(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/reason/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// limitBody caps the request body when a limit is configured.
func (h *Handlers) limitBody(c *gin.Context) {
	if h.maxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	c.Next()
}

// writeError maps an engine error to its HTTP status and error body.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	ctx := c.Request.Context()
	kind := engine.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", "error", err, "code", kind.String())
	} else {
		logger.InfoContext(ctx, "Request rejected", "error", err, "code", kind.String())
	}
	c.JSON(status, ErrorResponse{
		Error:   err.Error(),
		Code:    kind.String(),
		TraceID: telemetry.TraceID(ctx),
	})
}

func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindCapacityExceeded, engine.KindCycleRejected:
		return http.StatusConflict
	case engine.KindInvalidOperation, engine.KindUnsupported:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// getOrCreateRequestID echoes X-Request-ID, generating one when absent.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
