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
	"math/rand/v2"
	"slices"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var (
	ErrNodeNotFound = fmt.Errorf("mcts node %w", engine.ErrNotFound)

	// ErrNoUntriedActions is returned when expanding an exhausted or
	// terminal node.
	ErrNoUntriedActions = fmt.Errorf("%w: no untried actions", engine.ErrInvalidOperation)

	// ErrUnknownAction is returned when a requested action is not untried.
	ErrUnknownAction = fmt.Errorf("%w: action is not untried", engine.ErrInvalidOperation)

	// ErrNoChildren is returned by BestAction before the root is expanded.
	ErrNoChildren = fmt.Errorf("%w: root has no children", engine.ErrInvalidOperation)
)

// Node is a state in the search tree.
//
// AverageValue is nil until the node has been visited.
type Node struct {
	ID             string   `json:"id"`
	Content        string   `json:"content"`
	Action         string   `json:"action,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	Children       []string `json:"children"`
	Visits         int      `json:"visits"`
	TotalValue     float64  `json:"total_value"`
	SumSquares     float64  `json:"sum_squares"`
	AverageValue   *float64 `json:"average_value,omitempty"`
	UntriedActions []string `json:"untried_actions"`
	Terminal       bool     `json:"terminal"`
	Depth          int      `json:"depth"`
	Prior          float64  `json:"prior"`
	Wins           int      `json:"wins"`
	Losses         int      `json:"losses"`
	Draws          int      `json:"draws"`
}

// Clone returns a copy that shares no memory with the session.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = slices.Clone(n.Children)
	c.UntriedActions = slices.Clone(n.UntriedActions)
	if n.AverageValue != nil {
		avg := *n.AverageValue
		c.AverageValue = &avg
	}
	return &c
}

// Mean returns TotalValue/Visits, or 0 for an unvisited node.
func (n *Node) Mean() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.TotalValue / float64(n.Visits)
}

// Expandable reports whether the node has untried actions and is not terminal.
func (n *Node) Expandable() bool {
	return !n.Terminal && len(n.UntriedActions) > 0
}

// RAVEStat accumulates the value seen for one action anywhere in the tree.
type RAVEStat struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Stats summarizes an MCTS session.
type Stats struct {
	TotalSimulations     int             `json:"total_simulations"`
	NodesCreated         int             `json:"nodes_created"`
	MaxDepthReached      int             `json:"max_depth_reached"`
	SimulationsPerSecond float64         `json:"simulations_per_second"`
	AverageBranching     float64         `json:"average_branching"`
	ExplorationRatio     float64         `json:"exploration_ratio"`
	BestAction           string          `json:"best_action,omitempty"`
	BestActionShare      float64         `json:"best_action_share"`
	Elapsed              engine.Duration `json:"elapsed"`
}

// Session is the mutable state of one MCTS search.
type Session struct {
	engine.Header
	Config Config              `json:"config"`
	Stats  Stats               `json:"stats"`
	RootID string              `json:"root_id"`
	Nodes  map[string]*Node    `json:"nodes"`
	Order  []string            `json:"order"`
	RAVE   map[string]RAVEStat `json:"rave,omitempty"`

	rng *rand.Rand
}

// SessionHeader implements engine.Session.
func (s *Session) SessionHeader() *engine.Header { return &s.Header }

// Rand returns the session random source.
func (s *Session) Rand() *rand.Rand { return s.rng }

// Node returns the node with the given id.
func (s *Session) Node(id string) (*Node, error) {
	n, ok := s.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Root returns the root node.
func (s *Session) Root() *Node { return s.Nodes[s.RootID] }

// Contents maps ids to their contents.
func (s *Session) Contents(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.Nodes[id]; ok {
			out = append(out, n.Content)
		}
	}
	return out
}
