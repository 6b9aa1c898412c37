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

	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Import builds a session whose tree is a single chain, one node per
// record, rooted at the first record.
//
// MaxDepth is raised to fit the chain. Every node except the last is
// marked explored, leaving the tail as the only active node.
func (e *Engine) Import(cfg Config, seq thought.Sequence) (*Session, error) {
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("import tree: %w", err)
	}
	if cfg.MaxDepth < len(seq)-1 {
		cfg.MaxDepth = len(seq) - 1
	}

	s, err := e.Initialize(cfg, seq[0].Text)
	if err != nil {
		return nil, err
	}
	parent := s.Root()
	for _, t := range seq[1:] {
		child, err := e.CreateNode(s, parent.ID, t.Text)
		if err != nil {
			return nil, fmt.Errorf("import tree: %w", err)
		}
		e.markExplored(s, parent)
		parent = child
	}
	return s, nil
}

// Export serializes the best path from root to leaf.
func (e *Engine) Export(s *Session) thought.Sequence {
	return thought.FromTexts(s.Contents(e.BestPath(s)))
}
