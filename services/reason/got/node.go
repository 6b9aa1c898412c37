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
	"maps"
	"slices"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// NodeType classifies a thought in the graph.
type NodeType string

const (
	NodeHypothesis      NodeType = "hypothesis"
	NodeEvidence        NodeType = "evidence"
	NodeConclusion      NodeType = "conclusion"
	NodeQuestion        NodeType = "question"
	NodeInsight         NodeType = "insight"
	NodeAssumption      NodeType = "assumption"
	NodeCounterargument NodeType = "counterargument"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeHypothesis, NodeEvidence, NodeConclusion, NodeQuestion,
		NodeInsight, NodeAssumption, NodeCounterargument:
		return true
	}
	return false
}

// EdgeType classifies the relation between two thoughts.
type EdgeType string

const (
	EdgeSupports     EdgeType = "supports"
	EdgeContradicts  EdgeType = "contradicts"
	EdgeRefines      EdgeType = "refines"
	EdgeQuestions    EdgeType = "questions"
	EdgeLeadsTo      EdgeType = "leads-to"
	EdgeDependsOn    EdgeType = "depends-on"
	EdgeAlternatives EdgeType = "alternatives"
	EdgeElaborates   EdgeType = "elaborates"
)

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeSupports, EdgeContradicts, EdgeRefines, EdgeQuestions,
		EdgeLeadsTo, EdgeDependsOn, EdgeAlternatives, EdgeElaborates:
		return true
	}
	return false
}

// Direction selects which edges Neighbors follows.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Node is a thought in the graph. Incoming and Outgoing hold edge ids.
type Node struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Type     NodeType `json:"type"`
	Strength float64  `json:"strength"`
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

// Clone returns a copy that shares no memory with the session.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Incoming = slices.Clone(n.Incoming)
	c.Outgoing = slices.Clone(n.Outgoing)
	return &c
}

// Edge is a directed, weighted relation.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
}

// Community is a connected component of the undirected view.
type Community struct {
	ID       int      `json:"id"`
	Members  []string `json:"members"`
	Cohesion float64  `json:"cohesion"`
	Centroid string   `json:"centroid"`
}

// CloneCommunities deep-copies a community list.
func CloneCommunities(in []Community) []Community {
	if in == nil {
		return nil
	}
	out := make([]Community, len(in))
	for i, c := range in {
		c.Members = slices.Clone(c.Members)
		out[i] = c
	}
	return out
}

// ContradictionKind distinguishes explicit contradictions from cycles.
type ContradictionKind string

const (
	ContradictionEdge  ContradictionKind = "contradicts"
	ContradictionCycle ContradictionKind = "cycle"
)

// Contradiction is a detected conflict in the reasoning graph.
type Contradiction struct {
	Kind        ContradictionKind `json:"kind"`
	EdgeID      string            `json:"edge_id,omitempty"`
	Nodes       []string          `json:"nodes"`
	Description string            `json:"description"`
}

// CloneContradictions deep-copies a contradiction list.
func CloneContradictions(in []Contradiction) []Contradiction {
	if in == nil {
		return nil
	}
	out := make([]Contradiction, len(in))
	for i, c := range in {
		c.Nodes = slices.Clone(c.Nodes)
		out[i] = c
	}
	return out
}

// Metrics holds the results of the latest analysis pass.
type Metrics struct {
	Centrality     map[string]float64 `json:"centrality,omitempty"`
	Communities    []Community        `json:"communities,omitempty"`
	Contradictions []Contradiction    `json:"contradictions,omitempty"`
}

// Stats summarizes a graph session.
type Stats struct {
	NodeCount      int              `json:"node_count"`
	EdgeCount      int              `json:"edge_count"`
	NodesByType    map[NodeType]int `json:"nodes_by_type"`
	EdgesByType    map[EdgeType]int `json:"edges_by_type"`
	Density        float64          `json:"density"`
	AverageDegree  float64          `json:"average_degree"`
	Merges         int              `json:"merges"`
	Contradictions int              `json:"contradictions"`
	OpenQuestions  int              `json:"open_questions"`
}

// Clone returns a copy whose maps are not shared with the session.
func (s Stats) Clone() Stats {
	s.NodesByType = maps.Clone(s.NodesByType)
	s.EdgesByType = maps.Clone(s.EdgesByType)
	return s
}

// Session is the mutable state of one graph exploration.
//
// Nodes and Edges are arenas keyed by id. NodeOrder and EdgeOrder keep
// insertion order for deterministic traversal.
type Session struct {
	engine.Header
	Config    Config           `json:"config"`
	Stats     Stats            `json:"stats"`
	Metrics   Metrics          `json:"metrics"`
	Nodes     map[string]*Node `json:"nodes"`
	Edges     map[string]*Edge `json:"edges"`
	NodeOrder []string         `json:"node_order"`
	EdgeOrder []string         `json:"edge_order"`
}

// SessionHeader implements engine.Session.
func (s *Session) SessionHeader() *engine.Header { return &s.Header }

// Node returns the node with the given id.
func (s *Session) Node(id string) (*Node, error) {
	n, ok := s.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

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

// successors returns outgoing neighbor ids in edge order, with repeats.
func (s *Session) successors(id string) []string {
	n := s.Nodes[id]
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Outgoing))
	for _, eid := range n.Outgoing {
		if e, ok := s.Edges[eid]; ok {
			out = append(out, e.Target)
		}
	}
	return out
}

// reachable reports whether to can be reached from from along directed edges.
func (s *Session) reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range s.successors(cur) {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
