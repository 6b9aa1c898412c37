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

	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Import builds a chain of nodes joined by leads-to edges of weight 1.
//
// The caps are raised to fit the sequence. The first node is a hypothesis,
// the last a conclusion and the rest evidence.
func (e *Engine) Import(cfg Config, seq thought.Sequence) (*Session, error) {
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	cfg.MaxNodes = max(cfg.MaxNodes, len(seq))
	cfg.MaxEdges = max(cfg.MaxEdges, len(seq)-1)

	s, err := e.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	var prev *Node
	for i, t := range seq {
		typ := NodeEvidence
		switch {
		case i == 0:
			typ = NodeHypothesis
		case i == len(seq)-1:
			typ = NodeConclusion
		}
		n, err := e.AddNode(s, t.Text, typ, DefaultStrength)
		if err != nil {
			return nil, fmt.Errorf("import graph: %w", err)
		}
		if prev != nil {
			if _, err := e.Connect(s, prev.ID, n.ID, EdgeLeadsTo, 1); err != nil {
				return nil, fmt.Errorf("import graph: %w", err)
			}
		}
		prev = n
	}
	return s, nil
}

// Export serializes the graph in dependency order.
//
// Kahn's algorithm starts from nodes without incoming edges and breaks ties
// by insertion order. Nodes left on cycles are appended in insertion order.
func (e *Engine) Export(s *Session) thought.Sequence {
	return thought.FromTexts(s.Contents(e.TopologicalOrder(s)))
}

// TopologicalOrder returns node ids in dependency order. See Export.
func (e *Engine) TopologicalOrder(s *Session) []string {
	indegree := make(map[string]int, len(s.Nodes))
	for _, edge := range s.Edges {
		indegree[edge.Target]++
	}

	emitted := make(map[string]bool, len(s.Nodes))
	order := make([]string, 0, len(s.Nodes))
	for {
		next := ""
		for _, id := range s.NodeOrder {
			if !emitted[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			break
		}
		emitted[next] = true
		order = append(order, next)
		for _, target := range s.successors(next) {
			indegree[target]--
		}
	}

	for _, id := range s.NodeOrder {
		if !emitted[id] {
			order = append(order, id)
		}
	}
	return order
}
