// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package beam

import (
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// ScoringMethod aggregates node scores into a path score.
type ScoringMethod string

const (
	ScoringSum      ScoringMethod = "sum"
	ScoringAverage  ScoringMethod = "average"
	ScoringMax      ScoringMethod = "max"
	ScoringWeighted ScoringMethod = "weighted"
)

// PruningStrategy decides the score floor applied when pruning.
type PruningStrategy string

const (
	PruneAbsolute PruningStrategy = "absolute"
	PruneRelative PruningStrategy = "relative"
	PruneAdaptive PruningStrategy = "adaptive"
)

const (
	// AbsoluteThreshold is the floor used by PruneAbsolute.
	AbsoluteThreshold = 0.3

	// AdaptiveFactor scales the mean score for PruneAdaptive.
	AdaptiveFactor = 0.8

	// RecencyDecay weights each step back from the end of a path.
	RecencyDecay = 0.9

	// ImprovementWindow is the number of generation bests compared when
	// checking for a plateau.
	ImprovementWindow = 3
)

// Config bounds a beam session.
type Config struct {
	BeamWidth       int             `json:"beam_width" yaml:"beam_width"`
	BranchingFactor int             `json:"branching_factor" yaml:"branching_factor"`
	MaxGenerations  int             `json:"max_generations" yaml:"max_generations"`
	ScoringMethod   ScoringMethod   `json:"scoring_method" yaml:"scoring_method"`
	PruningStrategy PruningStrategy `json:"pruning_strategy" yaml:"pruning_strategy"`

	// DiversityWeight scales the bonus for paths unlike their peers.
	DiversityWeight float64 `json:"diversity_weight" yaml:"diversity_weight"`

	// LengthWeight is added per node in a path.
	LengthWeight float64 `json:"length_weight" yaml:"length_weight"`

	// RetainPruned keeps pruned paths in the session instead of deleting them.
	RetainPruned bool `json:"retain_pruned" yaml:"retain_pruned"`

	EnableMerging  bool    `json:"enable_merging" yaml:"enable_merging"`
	MergeThreshold float64 `json:"merge_threshold" yaml:"merge_threshold"`

	ConsensusThreshold float64 `json:"consensus_threshold" yaml:"consensus_threshold"`
	TargetScore        float64 `json:"target_score" yaml:"target_score"`
	MinImprovement     float64 `json:"min_improvement" yaml:"min_improvement"`

	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfig returns the beam defaults.
func DefaultConfig() Config {
	return Config{
		BeamWidth:          5,
		BranchingFactor:    3,
		MaxGenerations:     10,
		ScoringMethod:      ScoringAverage,
		PruningStrategy:    PruneRelative,
		DiversityWeight:    0.1,
		LengthWeight:       0.01,
		EnableMerging:      true,
		MergeThreshold:     0.85,
		ConsensusThreshold: 0.95,
		TargetScore:        0.95,
		MinImprovement:     0.001,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.BeamWidth < 1:
		return fmt.Errorf("%w: beam_width must be >= 1, got %d", engine.ErrInvalidOperation, c.BeamWidth)
	case c.BranchingFactor < 1:
		return fmt.Errorf("%w: branching_factor must be >= 1, got %d", engine.ErrInvalidOperation, c.BranchingFactor)
	case c.MaxGenerations < 1:
		return fmt.Errorf("%w: max_generations must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxGenerations)
	case c.DiversityWeight < 0 || c.LengthWeight < 0:
		return fmt.Errorf("%w: weights must not be negative", engine.ErrInvalidOperation)
	case c.MergeThreshold < 0 || c.MergeThreshold > 1:
		return fmt.Errorf("%w: merge_threshold must be in [0,1]", engine.ErrInvalidOperation)
	case c.ConsensusThreshold < 0 || c.ConsensusThreshold > 1:
		return fmt.Errorf("%w: consensus_threshold must be in [0,1]", engine.ErrInvalidOperation)
	case c.MinImprovement < 0:
		return fmt.Errorf("%w: min_improvement must not be negative", engine.ErrInvalidOperation)
	}
	switch c.ScoringMethod {
	case ScoringSum, ScoringAverage, ScoringMax, ScoringWeighted:
	default:
		return fmt.Errorf("%w: unknown scoring_method %q", engine.ErrInvalidOperation, c.ScoringMethod)
	}
	switch c.PruningStrategy {
	case PruneAbsolute, PruneRelative, PruneAdaptive:
	default:
		return fmt.Errorf("%w: unknown pruning_strategy %q", engine.ErrInvalidOperation, c.PruningStrategy)
	}
	return nil
}
