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
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Operations shared by every pattern.
const (
	OpInit    = "init"
	OpImport  = "import"
	OpExport  = "export"
	OpIterate = "iterate"
)

// counters are cumulative session totals. The service records the
// difference across an operation as metrics.
type counters struct {
	nodes       int
	simulations int
}

// adapter binds one engine to the generic operation request.
//
// Implementations receive sessions the store has already matched to their
// pattern and serialized, so they never lock.
type adapter interface {
	pattern() engine.Pattern

	// verbs lists the pattern-specific operations accepted by apply.
	verbs() []string

	initialize(req *OperationRequest) (engine.Session, error)
	importSequence(req *OperationRequest, seq thought.Sequence) (engine.Session, error)
	export(s engine.Session) (thought.Sequence, error)
	iterate(ctx context.Context, s engine.Session) (any, error)
	apply(ctx context.Context, s engine.Session, req *OperationRequest) (any, error)
	stats(s engine.Session) any
	counters(s engine.Session) counters
}

// operations returns every operation an adapter accepts, shared ones first.
func operations(a adapter) []string {
	return append([]string{OpInit, OpImport, OpExport, OpIterate}, a.verbs()...)
}

// decodeConfig overlays raw JSON onto a deep copy of the defaults. Unknown
// fields are rejected so a typo does not silently fall back to a default.
func decodeConfig[T any](defaults T, raw json.RawMessage) (T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return defaults, nil
	}

	var cfg T
	base, err := json.Marshal(defaults)
	if err != nil {
		return defaults, fmt.Errorf("encode defaults: %w", err)
	}
	if err := json.Unmarshal(base, &cfg); err != nil {
		return defaults, fmt.Errorf("decode defaults: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return defaults, fmt.Errorf("%w: config: %v", engine.ErrInvalidOperation, err)
	}
	return cfg, nil
}

// sessionAs narrows a stored session to the engine's concrete type.
func sessionAs[T engine.Session](s engine.Session) (T, error) {
	typed, ok := s.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected session type %T", s)
	}
	return typed, nil
}

func requireField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", engine.ErrInvalidOperation, field)
	}
	return nil
}

func unsupported(p engine.Pattern, op string) error {
	return fmt.Errorf("%w: %s does not support %q", engine.ErrUnsupported, p, op)
}

// NodeResult wraps a single node, or nil when none applies.
type NodeResult struct {
	Node any `json:"node"`
}

// NodesResult lists nodes created by an operation.
type NodesResult struct {
	Nodes any `json:"nodes"`
}

// ScoreResult reports a node or path score.
type ScoreResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// PathResult is an ordered path with its contents.
type PathResult struct {
	ID       string   `json:"id,omitempty"`
	NodeIDs  []string `json:"node_ids"`
	Contents []string `json:"contents"`
	Score    *float64 `json:"score,omitempty"`
}

// IterateResult collects the per-iteration results of one batch.
type IterateResult struct {
	Ran     int   `json:"ran"`
	Results []any `json:"results"`
}

// CreatedResult reports whether init or import built a new session.
type CreatedResult struct {
	Created bool `json:"created"`
}
