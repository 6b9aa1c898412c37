// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package got

import (
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

const (
	// DefaultDampingFactor is the probability of following an edge rather
	// than jumping to a random node.
	DefaultDampingFactor = 0.85

	// DefaultCentralityIterations bounds power iteration.
	DefaultCentralityIterations = 100

	// CentralityConvergence stops power iteration early once the largest
	// per-node change falls below it.
	CentralityConvergence = 1e-9

	// DefaultStrength is assigned to imported nodes.
	DefaultStrength = 0.5
)

// Config bounds a graph session.
type Config struct {
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`
	MaxEdges int `json:"max_edges" yaml:"max_edges"`

	// AllowCycles permits edges that close a directed cycle.
	AllowCycles bool `json:"allow_cycles" yaml:"allow_cycles"`

	DampingFactor        float64 `json:"damping_factor" yaml:"damping_factor"`
	CentralityIterations int     `json:"centrality_iterations" yaml:"centrality_iterations"`
}

// DefaultConfig returns the graph defaults.
func DefaultConfig() Config {
	return Config{
		MaxNodes:             100,
		MaxEdges:             500,
		AllowCycles:          true,
		DampingFactor:        DefaultDampingFactor,
		CentralityIterations: DefaultCentralityIterations,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxNodes < 1:
		return fmt.Errorf("%w: max_nodes must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxNodes)
	case c.MaxEdges < 0:
		return fmt.Errorf("%w: max_edges must be >= 0, got %d", engine.ErrInvalidOperation, c.MaxEdges)
	case c.DampingFactor <= 0 || c.DampingFactor >= 1:
		return fmt.Errorf("%w: damping_factor must be in (0,1), got %f", engine.ErrInvalidOperation, c.DampingFactor)
	case c.CentralityIterations < 1:
		return fmt.Errorf("%w: centrality_iterations must be >= 1, got %d", engine.ErrInvalidOperation, c.CentralityIterations)
	}
	return nil
}
