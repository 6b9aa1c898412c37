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

	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Import builds a session holding one active path with a node per record.
func (e *Engine) Import(cfg Config, seq thought.Sequence) (*Session, error) {
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("import beam: %w", err)
	}
	s, err := e.Initialize(cfg, seq[0].Text)
	if err != nil {
		return nil, err
	}

	path := s.ActivePaths()[0]
	for _, t := range seq[1:] {
		last := s.Nodes[path.NodeIDs[len(path.NodeIDs)-1]]
		n := e.newNode(s, t.Text, len(path.NodeIDs)+1, last.CumulativeScore)
		n.PathIDs = append(n.PathIDs, path.ID)
		path.NodeIDs = append(path.NodeIDs, n.ID)
		path.Generation = len(path.NodeIDs)
	}
	return s, nil
}

// Export serializes the best path's node sequence.
func (e *Engine) Export(s *Session) thought.Sequence {
	best := e.BestPath(s)
	if best == nil {
		return thought.Sequence{}
	}
	return thought.FromTexts(s.Contents(best))
}
