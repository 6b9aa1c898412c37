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
	"math/rand/v2"
	"slices"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// Status is the lifecycle state of a tree node.
type Status string

const (
	StatusActive   Status = "active"
	StatusExplored Status = "explored"
	StatusPruned   Status = "pruned"
	StatusSolution Status = "solution"
)

// Node is one thought in the tree.
//
// Children holds ids in creation order. A root has an empty ParentID.
type Node struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	ParentID    string   `json:"parent_id,omitempty"`
	Children    []string `json:"children"`
	Depth       int      `json:"depth"`
	Status      Status   `json:"status"`
	Score       *float64 `json:"score,omitempty"`
	PruneReason string   `json:"prune_reason,omitempty"`
}

// Clone returns a copy that shares no memory with the session.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Children = slices.Clone(n.Children)
	if n.Score != nil {
		score := *n.Score
		c.Score = &score
	}
	return &c
}

// Scored reports whether the node has been evaluated.
func (n *Node) Scored() bool { return n.Score != nil }

// ScoreOr returns the score, or fallback when unscored.
func (n *Node) ScoreOr(fallback float64) float64 {
	if n.Score == nil {
		return fallback
	}
	return *n.Score
}

// Stats summarizes a tree session.
type Stats struct {
	NodesCreated    int             `json:"nodes_created"`
	NodesExplored   int             `json:"nodes_explored"`
	NodesPruned     int             `json:"nodes_pruned"`
	SolutionsFound  int             `json:"solutions_found"`
	MaxDepthReached int             `json:"max_depth_reached"`
	BestScore       float64         `json:"best_score"`
	ActiveNodes     int             `json:"active_nodes"`
	Elapsed         engine.Duration `json:"elapsed"`
}

// Session is the mutable state of one tree exploration.
//
// Nodes is an arena keyed by id; Order records discovery order and is used
// to break ties.
type Session struct {
	engine.Header
	Config Config           `json:"config"`
	Stats  Stats            `json:"stats"`
	RootID string           `json:"root_id"`
	Nodes  map[string]*Node `json:"nodes"`
	Order  []string         `json:"order"`

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
