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

	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Import builds a session whose tree is a single chain, one node per
// record, rooted at the first record.
//
// SimulationDepth is raised so no imported node is terminal. Only the
// tail keeps untried actions, seeded from DefaultActions.
func (e *Engine) Import(cfg Config, seq thought.Sequence) (*Session, error) {
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("import mcts: %w", err)
	}
	if cfg.SimulationDepth < len(seq) {
		cfg.SimulationDepth = len(seq)
	}

	actions := make([]string, len(seq)-1)
	for i := range actions {
		actions[i] = fmt.Sprintf("step %d", i+2)
	}
	s, err := e.Initialize(cfg, seq[0].Text, actions...)
	if err != nil {
		return nil, err
	}

	parent := s.Root()
	for i, t := range seq[1:] {
		child, err := e.ExpandNode(s, parent.ID, actions[i], t.Text)
		if err != nil {
			return nil, fmt.Errorf("import mcts: %w", err)
		}
		parent.UntriedActions = parent.UntriedActions[:0]
		parent = child
	}
	parent.UntriedActions = append(parent.UntriedActions[:0], cfg.DefaultActions...)
	return s, nil
}

// Export serializes the most visited path from the root. Ties go to the
// earlier child.
func (e *Engine) Export(s *Session) thought.Sequence {
	return thought.FromTexts(s.Contents(e.MostVisitedPath(s)))
}

// MostVisitedPath follows the most visited child from the root to a leaf.
func (e *Engine) MostVisitedPath(s *Session) []string {
	var path []string
	for cur := s.Root(); cur != nil; {
		path = append(path, cur.ID)
		var next *Node
		for _, id := range cur.Children {
			child := s.Nodes[id]
			if child != nil && (next == nil || child.Visits > next.Visits) {
				next = child
			}
		}
		cur = next
	}
	return path
}
