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
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/session"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// ServiceVersion is reported by the health endpoint and the CLI.
const ServiceVersion = "0.3.0"

// MaxIterationsPerCall bounds the iterate batch size.
const MaxIterationsPerCall = 10000

var validate = validator.New(validator.WithRequiredStructEnabled())

// OperationRequest is one call against an engine.
//
// Only the fields the operation reads need to be set. Config overlays the
// service defaults on init and import.
type OperationRequest struct {
	Operation string `json:"operation" validate:"required,max=64"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128,printascii"`

	Config json.RawMessage `json:"config,omitempty"`

	// Content is the root on init, or the new node's content.
	Content  string   `json:"content,omitempty" validate:"max=65536"`
	Contents []string `json:"contents,omitempty" validate:"max=64,dive,max=65536"`

	Thoughts        []thought.Thought `json:"thoughts,omitempty" validate:"omitempty,max=1000,dive"`
	SourceSessionID string            `json:"source_session_id,omitempty" validate:"omitempty,max=128"`

	NodeID   string   `json:"node_id,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
	NodeIDs  []string `json:"node_ids,omitempty" validate:"max=1000"`

	Source    string   `json:"source,omitempty"`
	Target    string   `json:"target,omitempty"`
	Type      string   `json:"type,omitempty"`
	Strength  *float64 `json:"strength,omitempty" validate:"omitempty,gte=0,lte=1"`
	Weight    *float64 `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Direction string   `json:"direction,omitempty" validate:"omitempty,oneof=in out both"`
	MaxPaths  int      `json:"max_paths,omitempty" validate:"gte=0,lte=1000"`

	Reason string `json:"reason,omitempty"`

	Action  string   `json:"action,omitempty"`
	Actions []string `json:"actions,omitempty" validate:"max=64,dive,required"`
	Value   *float64 `json:"value,omitempty"`

	Iterations int `json:"iterations,omitempty" validate:"gte=0,lte=10000"`
}

// OperationResponse is returned by every successful operation.
type OperationResponse struct {
	Status        string           `json:"status"`
	SessionID     string           `json:"session_id"`
	Pattern       engine.Pattern   `json:"pattern"`
	Operation     string           `json:"operation"`
	Iteration     int              `json:"iteration"`
	Simulations   int              `json:"simulations,omitempty"`
	NeedsMoreWork bool             `json:"needs_more_work"`
	Stats         any              `json:"stats"`
	Result        any              `json:"result,omitempty"`
	Sequence      thought.Sequence `json:"sequence,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`

	// Code is the engine error kind, or INVALID_REQUEST.
	Code string `json:"code,omitempty"`

	Details string `json:"details,omitempty"`

	// TraceID links the error to its trace when tracing is enabled.
	TraceID string `json:"trace_id,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// PatternInfo describes one engine and the operations it accepts.
type PatternInfo struct {
	Pattern    engine.Pattern `json:"pattern"`
	Operations []string       `json:"operations"`
}

// SessionsResponse lists live sessions.
type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// ExportResponse carries a session's interchange sequence.
type ExportResponse struct {
	SessionID string           `json:"session_id"`
	Pattern   engine.Pattern   `json:"pattern"`
	Sequence  thought.Sequence `json:"sequence"`
}

// RecordThoughtRequest appends one record to a sequential-thinking log.
type RecordThoughtRequest struct {
	Text    string `json:"text" validate:"required,max=65536"`
	Index   int    `json:"index" validate:"gte=1"`
	Total   int    `json:"total" validate:"gte=0"`
	HasMore bool   `json:"has_more"`
}

// RecordThoughtResponse reports the stored record.
type RecordThoughtResponse struct {
	SessionID string          `json:"session_id"`
	Thought   thought.Thought `json:"thought"`
	Count     int             `json:"count"`
	Recorded  time.Time       `json:"recorded_at"`
}
