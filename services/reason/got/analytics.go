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
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// CalculateCentrality computes PageRank over edge weights.
//
// Description:
//
//	Power iteration with the session damping factor. Each node passes
//	rank[src] * weight / outDegree(src) along every outgoing edge. Rank
//	held by sink nodes is spread evenly over all nodes so a graph with
//	unit weights keeps a total near 1. Iteration stops early once the
//	largest change falls below CentralityConvergence.
//
// Outputs:
//
//	map[string]float64 - Non-negative score per node id, also stored in
//	                     s.Metrics.Centrality.
func (e *Engine) CalculateCentrality(ctx context.Context, s *Session) map[string]float64 {
	_, span := tracer.Start(ctx, "got.Engine.CalculateCentrality")
	defer span.End()

	n := len(s.Nodes)
	ranks := make(map[string]float64, n)
	if n == 0 {
		s.Metrics.Centrality = ranks
		return ranks
	}

	N := float64(n)
	d := s.Config.DampingFactor
	for _, id := range s.NodeOrder {
		ranks[id] = 1 / N
	}

	iterations := 0
	for iterations < s.Config.CentralityIterations {
		iterations++
		if ctx.Err() != nil {
			break
		}

		sink := 0.0
		for _, id := range s.NodeOrder {
			if len(s.Nodes[id].Outgoing) == 0 {
				sink += ranks[id]
			}
		}
		base := (1-d)/N + d*sink/N

		next := make(map[string]float64, n)
		for _, id := range s.NodeOrder {
			next[id] = base
		}
		for _, eid := range s.EdgeOrder {
			edge := s.Edges[eid]
			outDeg := float64(len(s.Nodes[edge.Source].Outgoing))
			next[edge.Target] += d * ranks[edge.Source] * edge.Weight / outDeg
		}

		delta := 0.0
		for id, v := range next {
			delta = math.Max(delta, math.Abs(v-ranks[id]))
		}
		ranks = next
		if delta < CentralityConvergence {
			break
		}
	}

	s.Metrics.Centrality = ranks
	e.logger.Debug("graph centrality computed",
		slog.String("session_id", s.ID),
		slog.Int("nodes", n),
		slog.Int("iterations", iterations),
	)
	span.SetAttributes(
		attribute.Int("node_count", n),
		attribute.Int("iterations", iterations),
	)
	return ranks
}

// DetectCommunities groups nodes into connected components of the
// undirected view.
//
// Cohesion is internal edges over n(n-1)/2, capped at 1, and 0 for a
// single node. The centroid is the member with the highest centrality,
// computing centrality first if it is missing.
func (e *Engine) DetectCommunities(ctx context.Context, s *Session) []Community {
	if len(s.Metrics.Centrality) != len(s.Nodes) {
		e.CalculateCentrality(ctx, s)
	}

	adj := make(map[string][]string, len(s.Nodes))
	for _, eid := range s.EdgeOrder {
		edge := s.Edges[eid]
		adj[edge.Source] = append(adj[edge.Source], edge.Target)
		adj[edge.Target] = append(adj[edge.Target], edge.Source)
	}

	assigned := map[string]int{}
	var communities []Community
	for _, start := range s.NodeOrder {
		if _, ok := assigned[start]; ok {
			continue
		}
		c := Community{ID: len(communities)}
		assigned[start] = c.ID
		queue := []string{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			c.Members = append(c.Members, cur)
			for _, next := range adj[cur] {
				if _, ok := assigned[next]; !ok {
					assigned[next] = c.ID
					queue = append(queue, next)
				}
			}
		}
		communities = append(communities, c)
	}

	internal := make([]int, len(communities))
	for _, edge := range s.Edges {
		internal[assigned[edge.Source]]++
	}
	for i := range communities {
		c := &communities[i]
		size := len(c.Members)
		if size > 1 {
			c.Cohesion = math.Min(1, float64(internal[i])/(float64(size*(size-1))/2))
		}
		best := -1.0
		for _, id := range c.Members {
			if v := s.Metrics.Centrality[id]; v > best {
				best, c.Centroid = v, id
			}
		}
	}

	s.Metrics.Communities = communities
	return communities
}

// FindContradictions reports every contradicts edge plus each directed
// cycle longer than two nodes as potential circular reasoning.
//
// Cycles are found by depth first search with a recursion stack and are
// reported once per rotation.
func (e *Engine) FindContradictions(s *Session) []Contradiction {
	var out []Contradiction
	for _, eid := range s.EdgeOrder {
		edge := s.Edges[eid]
		if edge.Type != EdgeContradicts {
			continue
		}
		out = append(out, Contradiction{
			Kind:        ContradictionEdge,
			EdgeID:      edge.ID,
			Nodes:       []string{edge.Source, edge.Target},
			Description: fmt.Sprintf("%q contradicts %q", s.Nodes[edge.Source].Content, s.Nodes[edge.Target].Content),
		})
	}

	for _, cycle := range e.findCycles(s) {
		if len(cycle) <= 2 {
			continue
		}
		out = append(out, Contradiction{
			Kind:        ContradictionCycle,
			Nodes:       cycle,
			Description: fmt.Sprintf("potential circular reasoning across %d thoughts", len(cycle)),
		})
	}

	s.Metrics.Contradictions = out
	s.Stats.Contradictions = len(out)
	return out
}

// findCycles returns the cycles closed by back edges during DFS.
func (e *Engine) findCycles(s *Session) [][]string {
	position := make(map[string]int, len(s.NodeOrder))
	for i, id := range s.NodeOrder {
		position[id] = i
	}

	visited := map[string]bool{}
	onStack := map[string]int{}
	var stack []string
	seen := map[string]bool{}
	var cycles [][]string

	var visit func(string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, next := range s.successors(id) {
			if at, ok := onStack[next]; ok {
				cycle := canonicalRotation(stack[at:], position)
				key := strings.Join(cycle, ",")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
	}

	for _, id := range s.NodeOrder {
		if !visited[id] {
			visit(id)
		}
	}
	return cycles
}

// canonicalRotation rotates a cycle to start at its earliest inserted node.
func canonicalRotation(cycle []string, position map[string]int) []string {
	start := 0
	for i, id := range cycle {
		if position[id] < position[cycle[start]] {
			start = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[start:]...)
	return append(out, cycle[:start]...)
}

// Analysis is the result of one graph iteration.
type Analysis struct {
	Iteration      int                `json:"iteration"`
	Centrality     map[string]float64 `json:"centrality"`
	Communities    []Community        `json:"communities"`
	Contradictions []Contradiction    `json:"contradictions"`
	OpenQuestions  []string           `json:"open_questions"`
	Stats          Stats              `json:"stats"`
}

// Clone returns a copy that shares no memory with the session.
func (a Analysis) Clone() Analysis {
	a.Centrality = maps.Clone(a.Centrality)
	a.Communities = CloneCommunities(a.Communities)
	a.Contradictions = CloneContradictions(a.Contradictions)
	a.OpenQuestions = slices.Clone(a.OpenQuestions)
	a.Stats = a.Stats.Clone()
	return a
}

// RunIteration runs a full analysis pass.
//
// NeedsMoreWork stays set while contradictions or open questions (question
// nodes with nothing following them) remain, or while the graph is empty.
func (e *Engine) RunIteration(ctx context.Context, s *Session) (Analysis, error) {
	ctx, span := tracer.Start(ctx, "got.Engine.RunIteration")
	defer span.End()

	s.Iteration++
	centrality := e.CalculateCentrality(ctx, s)
	communities := e.DetectCommunities(ctx, s)
	contradictions := e.FindContradictions(s)
	e.refreshStats(s)
	questions := openQuestions(s)

	s.NeedsMoreWork = len(s.Nodes) == 0 || len(contradictions) > 0 || len(questions) > 0
	s.Touch(e.now())

	span.SetAttributes(
		attribute.String("session_id", s.ID),
		attribute.Int("communities", len(communities)),
		attribute.Int("contradictions", len(contradictions)),
	)
	return Analysis{
		Iteration:      s.Iteration,
		Centrality:     centrality,
		Communities:    communities,
		Contradictions: contradictions,
		OpenQuestions:  questions,
		Stats:          s.Stats,
	}, nil
}
