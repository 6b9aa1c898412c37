// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tot

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// Strategy selects which active node is expanded next.
type Strategy string

const (
	StrategyDepthFirst   Strategy = "depth-first"
	StrategyBreadthFirst Strategy = "breadth-first"
	StrategyBestFirst    Strategy = "best-first"
)

const (
	// ExpansionWidth caps the children created by one Expand call.
	ExpansionWidth = 3

	// SolutionThreshold is the score a node must exceed to be a solution.
	SolutionThreshold = 0.8
)

// Config bounds a tree session.
type Config struct {
	// MaxDepth is the deepest level a node may be created at.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxBranchingFactor caps the children of any node.
	MaxBranchingFactor int `json:"max_branching_factor" yaml:"max_branching_factor"`

	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// PruningThreshold prunes freshly expanded children scoring below it.
	PruningThreshold float64 `json:"pruning_threshold" yaml:"pruning_threshold"`

	// MaxNodesExplored is the exploration budget for RunIteration.
	MaxNodesExplored int `json:"max_nodes_explored" yaml:"max_nodes_explored"`

	// TimeLimit bounds cumulative iteration time. Zero disables it.
	TimeLimit engine.Duration `json:"time_limit" yaml:"time_limit"`

	// Seed fixes the session random source. Zero picks one at random.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfig returns the tree defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:           5,
		MaxBranchingFactor: 3,
		Strategy:           StrategyBestFirst,
		PruningThreshold:   0.3,
		MaxNodesExplored:   100,
		TimeLimit:          engine.Duration(30 * time.Second),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxDepth < 1:
		return fmt.Errorf("%w: max_depth must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxDepth)
	case c.MaxBranchingFactor < 1:
		return fmt.Errorf("%w: max_branching_factor must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxBranchingFactor)
	case c.PruningThreshold < 0 || c.PruningThreshold > 1:
		return fmt.Errorf("%w: pruning_threshold must be in [0,1], got %f", engine.ErrInvalidOperation, c.PruningThreshold)
	case c.MaxNodesExplored < 1:
		return fmt.Errorf("%w: max_nodes_explored must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxNodesExplored)
	case c.TimeLimit < 0:
		return fmt.Errorf("%w: time_limit must not be negative", engine.ErrInvalidOperation)
	}
	switch c.Strategy {
	case StrategyDepthFirst, StrategyBreadthFirst, StrategyBestFirst:
	default:
		return fmt.Errorf("%w: unknown strategy %q", engine.ErrInvalidOperation, c.Strategy)
	}
	return nil
}
