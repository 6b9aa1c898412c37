// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// Variant selects the UCB formula used during selection.
type Variant string

const (
	VariantUCB1      Variant = "ucb1"
	VariantUCB1Tuned Variant = "ucb1-tuned"
	VariantPUCT      Variant = "puct"
)

// RolloutPolicy selects the default simulation strategy.
type RolloutPolicy string

const (
	RolloutRandom    RolloutPolicy = "random"
	RolloutHeuristic RolloutPolicy = "heuristic"
	RolloutNeural    RolloutPolicy = "neural"
	RolloutHybrid    RolloutPolicy = "hybrid"
)

const (
	// WinThreshold and LossThreshold bucket backpropagated values.
	WinThreshold  = 0.6
	LossThreshold = 0.4

	// ConfidenceMinVisits is the root child visit total needed before the
	// confidence criterion is applied.
	ConfidenceMinVisits = 20
)

// Config bounds an MCTS session.
type Config struct {
	ExplorationConstant float64 `json:"exploration_constant" yaml:"exploration_constant"`
	Variant             Variant `json:"variant" yaml:"variant"`

	// PriorWeight scales the PUCT prior bias term.
	PriorWeight float64 `json:"prior_weight" yaml:"prior_weight"`

	UseRAVE  bool    `json:"use_rave" yaml:"use_rave"`
	RAVEBias float64 `json:"rave_bias" yaml:"rave_bias"`

	RolloutPolicy   RolloutPolicy `json:"rollout_policy" yaml:"rollout_policy"`
	SimulationDepth int           `json:"simulation_depth" yaml:"simulation_depth"`

	MaxSimulations int             `json:"max_simulations" yaml:"max_simulations"`
	TimeLimit      engine.Duration `json:"time_limit" yaml:"time_limit"`

	// ConfidenceThreshold stops the search once one root action holds this
	// share of root child visits.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// MinVisitsBestAction stops the search once the best action has this
	// many visits. Zero disables it.
	MinVisitsBestAction int `json:"min_visits_best_action" yaml:"min_visits_best_action"`

	// DefaultActions seeds the root when the caller supplies none.
	DefaultActions []string `json:"default_actions" yaml:"default_actions"`

	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfig returns the MCTS defaults.
func DefaultConfig() Config {
	return Config{
		ExplorationConstant: math.Sqrt2,
		Variant:             VariantUCB1,
		PriorWeight:         0.1,
		RAVEBias:            300,
		RolloutPolicy:       RolloutRandom,
		SimulationDepth:     10,
		MaxSimulations:      1000,
		TimeLimit:           engine.Duration(30 * time.Second),
		ConfidenceThreshold: 0.95,
		DefaultActions:      []string{"analyze", "decompose", "hypothesize", "verify"},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.ExplorationConstant < 0:
		return fmt.Errorf("%w: exploration_constant must not be negative", engine.ErrInvalidOperation)
	case c.PriorWeight < 0:
		return fmt.Errorf("%w: prior_weight must not be negative", engine.ErrInvalidOperation)
	case c.UseRAVE && c.RAVEBias <= 0:
		return fmt.Errorf("%w: rave_bias must be > 0 when RAVE is enabled", engine.ErrInvalidOperation)
	case c.SimulationDepth < 1:
		return fmt.Errorf("%w: simulation_depth must be >= 1, got %d", engine.ErrInvalidOperation, c.SimulationDepth)
	case c.MaxSimulations < 1:
		return fmt.Errorf("%w: max_simulations must be >= 1, got %d", engine.ErrInvalidOperation, c.MaxSimulations)
	case c.TimeLimit < 0:
		return fmt.Errorf("%w: time_limit must not be negative", engine.ErrInvalidOperation)
	case c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: confidence_threshold must be in (0,1]", engine.ErrInvalidOperation)
	case c.MinVisitsBestAction < 0:
		return fmt.Errorf("%w: min_visits_best_action must not be negative", engine.ErrInvalidOperation)
	}
	switch c.Variant {
	case VariantUCB1, VariantUCB1Tuned, VariantPUCT:
	default:
		return fmt.Errorf("%w: unknown variant %q", engine.ErrInvalidOperation, c.Variant)
	}
	switch c.RolloutPolicy {
	case RolloutRandom, RolloutHeuristic, RolloutNeural, RolloutHybrid:
	default:
		return fmt.Errorf("%w: unknown rollout_policy %q", engine.ErrInvalidOperation, c.RolloutPolicy)
	}
	for _, a := range c.DefaultActions {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: default_actions contains an empty action", engine.ErrInvalidOperation)
		}
	}
	return nil
}

// IsTerminalAction reports whether taking action ends the episode.
func IsTerminalAction(action string) bool {
	a := strings.ToLower(strings.TrimSpace(action))
	switch a {
	case "end", "stop", "terminal":
		return true
	}
	return strings.HasPrefix(a, "terminal:")
}
