// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern selects one of the exploration engines.
type Pattern string

const (
	PatternTree  Pattern = "tree"
	PatternGraph Pattern = "graph"
	PatternBeam  Pattern = "beam"
	PatternMCTS  Pattern = "mcts"
)

// Patterns returns every supported pattern in a stable order.
func Patterns() []Pattern {
	return []Pattern{PatternTree, PatternGraph, PatternBeam, PatternMCTS}
}

// ParsePattern resolves a pattern name or one of its aliases.
//
// Accepted aliases are the MCP tool names and common abbreviations
// (tot, got, beam_search, monte_carlo_tree_search).
func ParsePattern(name string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tree", "tot", "tree_of_thought", "tree-of-thought":
		return PatternTree, nil
	case "graph", "got", "graph_of_thought", "graph-of-thought":
		return PatternGraph, nil
	case "beam", "beam_search", "beam-search":
		return PatternBeam, nil
	case "mcts", "monte_carlo_tree_search", "monte-carlo-tree-search":
		return PatternMCTS, nil
	default:
		return "", fmt.Errorf("%w: pattern %q", ErrUnsupported, name)
	}
}

// Header is the bookkeeping every engine session carries.
type Header struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Iteration     int       `json:"iteration"`
	NeedsMoreWork bool      `json:"needs_more_work"`
}

// NewHeader returns a header with a fresh id, stamped at now.
func NewHeader(now time.Time) Header {
	return Header{
		ID:            NewID(),
		CreatedAt:     now,
		UpdatedAt:     now,
		NeedsMoreWork: true,
	}
}

// Touch records a mutation at now.
func (h *Header) Touch(now time.Time) {
	h.UpdatedAt = now
}

// Session is implemented by every engine's session type.
type Session interface {
	SessionHeader() *Header
}

// NewID returns a new opaque handle for nodes, edges, paths and sessions.
func NewID() string {
	return uuid.NewString()
}

// NewRand returns a deterministic source for the given seed.
//
// A zero seed draws a random one so production sessions differ.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
