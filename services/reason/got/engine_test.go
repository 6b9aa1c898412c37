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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

func newSession(t *testing.T, cfg Config) (*Engine, *Session) {
	t.Helper()
	e := New()
	s, err := e.Initialize(cfg)
	require.NoError(t, err)
	return e, s
}

func addNodes(t *testing.T, e *Engine, s *Session, contents ...string) []*Node {
	t.Helper()
	nodes := make([]*Node, len(contents))
	for i, c := range contents {
		n, err := e.AddNode(s, c, NodeHypothesis, 0.5)
		require.NoError(t, err)
		nodes[i] = n
	}
	return nodes
}

func connect(t *testing.T, e *Engine, s *Session, a, b *Node, typ EdgeType) *Edge {
	t.Helper()
	edge, err := e.Connect(s, a.ID, b.ID, typ, 1)
	require.NoError(t, err)
	return edge
}

func assertConsistent(t *testing.T, s *Session) {
	t.Helper()
	referenced := map[string]int{}
	for id, n := range s.Nodes {
		for _, eid := range n.Outgoing {
			edge, ok := s.Edges[eid]
			require.True(t, ok, "outgoing edge %s of %s missing", eid, id)
			assert.Equal(t, id, edge.Source)
			referenced[eid]++
		}
		for _, eid := range n.Incoming {
			edge, ok := s.Edges[eid]
			require.True(t, ok, "incoming edge %s of %s missing", eid, id)
			assert.Equal(t, id, edge.Target)
			referenced[eid]++
		}
	}
	for eid, edge := range s.Edges {
		_, srcOK := s.Nodes[edge.Source]
		_, dstOK := s.Nodes[edge.Target]
		assert.True(t, srcOK && dstOK, "edge %s has dangling endpoint", eid)
		assert.Equal(t, 2, referenced[eid], "edge %s referenced %d times", eid, referenced[eid])
	}
	assert.Len(t, s.NodeOrder, len(s.Nodes))
	assert.Len(t, s.EdgeOrder, len(s.Edges))
}

func TestAddNode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 2
	e, s := newSession(t, cfg)

	n, err := e.AddNode(s, "the cache is stale", NodeEvidence, 0.8)
	require.NoError(t, err)
	assert.Equal(t, NodeEvidence, n.Type)
	assert.Equal(t, 1, s.Stats.NodeCount)

	_, err = e.AddNode(s, "x", NodeType("guess"), 0.5)
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)

	_, err = e.AddNode(s, "x", NodeInsight, 1.5)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.AddNode(s, "second", NodeInsight, 0.1)
	require.NoError(t, err)

	_, err = e.AddNode(s, "third", NodeInsight, 0.1)
	assert.ErrorIs(t, err, engine.ErrCapacityExceeded)
	assert.Len(t, s.Nodes, 2)
}

func TestConnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 1
	e, s := newSession(t, cfg)
	nodes := addNodes(t, e, s, "a", "b")

	edge := connect(t, e, s, nodes[0], nodes[1], EdgeSupports)
	assert.Equal(t, []string{edge.ID}, nodes[0].Outgoing)
	assert.Equal(t, []string{edge.ID}, nodes[1].Incoming)

	_, err := e.Connect(s, nodes[1].ID, nodes[0].ID, EdgeSupports, 1)
	assert.ErrorIs(t, err, engine.ErrCapacityExceeded)

	_, err = e.Connect(s, "missing", nodes[0].ID, EdgeSupports, 1)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = e.Connect(s, nodes[0].ID, nodes[1].ID, EdgeType("causes"), 1)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = e.Connect(s, nodes[0].ID, nodes[1].ID, EdgeSupports, -0.1)
	assert.ErrorIs(t, err, ErrInvalidRange)

	assertConsistent(t, s)
}

func TestConnect_CycleRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowCycles = false
	e, s := newSession(t, cfg)
	nodes := addNodes(t, e, s, "a", "b", "c")

	connect(t, e, s, nodes[0], nodes[1], EdgeLeadsTo)
	connect(t, e, s, nodes[1], nodes[2], EdgeLeadsTo)

	nodeCount, edgeCount := len(s.Nodes), len(s.Edges)
	_, err := e.Connect(s, nodes[2].ID, nodes[0].ID, EdgeLeadsTo, 1)
	assert.ErrorIs(t, err, engine.ErrCycleRejected)
	assert.Equal(t, nodeCount, len(s.Nodes))
	assert.Equal(t, edgeCount, len(s.Edges))
	assert.Empty(t, nodes[2].Outgoing)
	assert.Len(t, nodes[0].Incoming, 0)

	_, err = e.Connect(s, nodes[1].ID, nodes[1].ID, EdgeRefines, 1)
	assert.ErrorIs(t, err, engine.ErrCycleRejected)

	// Forward edges are still fine.
	_, err = e.Connect(s, nodes[0].ID, nodes[2].ID, EdgeSupports, 1)
	assert.NoError(t, err)
	assertConsistent(t, s)
}

func TestConnect_CyclesAllowedByDefault(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	nodes := addNodes(t, e, s, "a", "b")
	connect(t, e, s, nodes[0], nodes[1], EdgeLeadsTo)
	_, err := e.Connect(s, nodes[1].ID, nodes[0].ID, EdgeLeadsTo, 1)
	assert.NoError(t, err)
}

func TestFindPaths(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "c", "d")
	connect(t, e, s, n[0], n[1], EdgeLeadsTo)
	connect(t, e, s, n[0], n[2], EdgeLeadsTo)
	connect(t, e, s, n[1], n[3], EdgeLeadsTo)
	connect(t, e, s, n[2], n[3], EdgeLeadsTo)
	connect(t, e, s, n[3], n[0], EdgeLeadsTo)

	paths, err := e.FindPaths(s, n[0].ID, n[3].ID, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"a", "b", "d"}, s.Contents(paths[0]))
	assert.Equal(t, []string{"a", "c", "d"}, s.Contents(paths[1]))

	capped, err := e.FindPaths(s, n[0].ID, n[3].ID, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	viaCycle, err := e.FindPaths(s, n[1].ID, n[2].ID, 5)
	require.NoError(t, err)
	require.Len(t, viaCycle, 1)
	assert.Equal(t, []string{"b", "d", "a", "c"}, s.Contents(viaCycle[0]))

	_, err = e.FindPaths(s, "missing", n[0].ID, 1)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestNeighbors(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "c")
	connect(t, e, s, n[0], n[1], EdgeSupports)
	connect(t, e, s, n[0], n[1], EdgeRefines)
	connect(t, e, s, n[2], n[0], EdgeQuestions)

	out, err := e.Neighbors(s, n[0].ID, DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, []string{n[1].ID}, out)

	in, err := e.Neighbors(s, n[0].ID, DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, []string{n[2].ID}, in)

	both, err := e.Neighbors(s, n[0].ID, DirectionBoth)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{n[1].ID, n[2].ID}, both)

	_, err = e.Neighbors(s, n[0].ID, Direction("sideways"))
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)
}

func TestCalculateCentrality_SumsToOne(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "c", "d")
	connect(t, e, s, n[0], n[1], EdgeLeadsTo)
	connect(t, e, s, n[1], n[2], EdgeLeadsTo)
	connect(t, e, s, n[2], n[0], EdgeLeadsTo)
	connect(t, e, s, n[2], n[3], EdgeLeadsTo)
	connect(t, e, s, n[3], n[0], EdgeLeadsTo)

	ranks := e.CalculateCentrality(context.Background(), s)
	require.Len(t, ranks, 4)

	sum := 0.0
	for _, v := range ranks {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, ranks[n[0].ID], ranks[n[3].ID], "a has two in-links")
	assert.Equal(t, ranks, s.Metrics.Centrality)
}

func TestCalculateCentrality_SinksAndEmpty(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	assert.Empty(t, e.CalculateCentrality(context.Background(), s))

	n := addNodes(t, e, s, "a", "b", "c")
	connect(t, e, s, n[0], n[1], EdgeLeadsTo)

	ranks := e.CalculateCentrality(context.Background(), s)
	sum := 0.0
	for _, v := range ranks {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, ranks[n[1].ID], ranks[n[2].ID])
}

func TestDetectCommunities(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "c", "d", "e")
	connect(t, e, s, n[0], n[1], EdgeSupports)
	connect(t, e, s, n[1], n[2], EdgeSupports)
	connect(t, e, s, n[2], n[0], EdgeSupports)
	connect(t, e, s, n[3], n[4], EdgeRefines)

	communities := e.DetectCommunities(context.Background(), s)
	require.Len(t, communities, 2)

	assert.ElementsMatch(t, []string{n[0].ID, n[1].ID, n[2].ID}, communities[0].Members)
	assert.InDelta(t, 1.0, communities[0].Cohesion, 1e-9)
	assert.Contains(t, communities[0].Members, communities[0].Centroid)

	assert.ElementsMatch(t, []string{n[3].ID, n[4].ID}, communities[1].Members)
	assert.InDelta(t, 1.0, communities[1].Cohesion, 1e-9)
	assert.Equal(t, n[4].ID, communities[1].Centroid)

	_, err := e.AddNode(s, "loner", NodeQuestion, 0.2)
	require.NoError(t, err)
	communities = e.DetectCommunities(context.Background(), s)
	require.Len(t, communities, 3)
	assert.Equal(t, 0.0, communities[2].Cohesion)
}

func TestFindContradictions(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "c", "d", "e")
	connect(t, e, s, n[0], n[1], EdgeLeadsTo)
	connect(t, e, s, n[1], n[2], EdgeLeadsTo)
	connect(t, e, s, n[2], n[0], EdgeLeadsTo)
	contra := connect(t, e, s, n[3], n[4], EdgeContradicts)
	// Two-node cycle is not reported as circular reasoning.
	connect(t, e, s, n[4], n[3], EdgeSupports)

	found := e.FindContradictions(s)
	require.Len(t, found, 2)

	assert.Equal(t, ContradictionEdge, found[0].Kind)
	assert.Equal(t, contra.ID, found[0].EdgeID)
	assert.Equal(t, []string{n[3].ID, n[4].ID}, found[0].Nodes)

	assert.Equal(t, ContradictionCycle, found[1].Kind)
	assert.Equal(t, []string{n[0].ID, n[1].ID, n[2].ID}, found[1].Nodes)
	assert.Contains(t, found[1].Description, "circular reasoning")
	assert.Equal(t, 2, s.Stats.Contradictions)
}

func TestMergeNodes(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b", "x", "y")
	n[1].Strength = 0.9
	connect(t, e, s, n[2], n[0], EdgeSupports)
	connect(t, e, s, n[2], n[1], EdgeSupports)
	connect(t, e, s, n[0], n[1], EdgeRefines)
	connect(t, e, s, n[1], n[3], EdgeLeadsTo)

	merged, err := e.MergeNodes(s, []string{n[0].ID, n[1].ID}, "")
	require.NoError(t, err)

	assert.Equal(t, "a | b", merged.Content)
	assert.InDelta(t, 0.7, merged.Strength, 1e-9)
	assert.Equal(t, NodeHypothesis, merged.Type)
	assert.NotContains(t, s.Nodes, n[0].ID)
	assert.NotContains(t, s.Nodes, n[1].ID)
	assert.Len(t, s.Nodes, 3)
	// x->a and x->b collapse to one supports edge; a->b is dropped.
	assert.Len(t, s.Edges, 2)
	assert.Len(t, merged.Incoming, 1)
	assert.Len(t, merged.Outgoing, 1)
	assert.Equal(t, 1, s.Stats.Merges)
	assertConsistent(t, s)
}

func TestMergeNodes_Invalid(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "a", "b")

	_, err := e.MergeNodes(s, []string{n[0].ID}, "")
	assert.ErrorIs(t, err, ErrInvalidMerge)

	_, err = e.MergeNodes(s, []string{n[0].ID, n[0].ID}, "")
	assert.ErrorIs(t, err, ErrInvalidMerge)

	_, err = e.MergeNodes(s, []string{n[0].ID, "missing"}, "")
	assert.ErrorIs(t, err, ErrInvalidMerge)
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)
	assert.Len(t, s.Nodes, 2)
}

func TestMergeNodes_RejectsCycleWhenAcyclic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowCycles = false
	e, s := newSession(t, cfg)
	n := addNodes(t, e, s, "a", "m", "b")
	connect(t, e, s, n[0], n[1], EdgeLeadsTo)
	connect(t, e, s, n[1], n[2], EdgeLeadsTo)

	// Merging a and b gives ab->m and m->ab.
	_, err := e.MergeNodes(s, []string{n[0].ID, n[2].ID}, "ab")
	assert.ErrorIs(t, err, engine.ErrCycleRejected)
	assert.Len(t, s.Nodes, 3)
	assert.Len(t, s.Edges, 2)
	assertConsistent(t, s)
}

func TestRunIteration(t *testing.T) {
	e, s := newSession(t, DefaultConfig())

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iteration)
	assert.True(t, s.NeedsMoreWork, "empty graph needs work")

	hyp, _ := e.AddNode(s, "latency comes from DNS", NodeHypothesis, 0.6)
	q, _ := e.AddNode(s, "is the resolver cached?", NodeQuestion, 0.5)
	_, err = e.Connect(s, hyp.ID, q.ID, EdgeQuestions, 0.5)
	require.NoError(t, err)

	res, err = e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, res.OpenQuestions)
	assert.True(t, s.NeedsMoreWork)
	assert.Len(t, res.Centrality, 2)
	assert.Len(t, res.Communities, 1)

	ev, _ := e.AddNode(s, "resolver cache hit rate is 99%", NodeEvidence, 0.9)
	_, err = e.Connect(s, q.ID, ev.ID, EdgeLeadsTo, 1)
	require.NoError(t, err)

	res, err = e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, res.OpenQuestions)
	assert.Empty(t, res.Contradictions)
	assert.False(t, s.NeedsMoreWork)
	assert.Equal(t, 3, res.Iteration)
}

func TestImportExport_RoundTrip(t *testing.T) {
	e := New()
	seq := thought.FromTexts([]string{"observe", "hypothesize", "test", "conclude"})

	cfg := DefaultConfig()
	cfg.MaxNodes = 2
	cfg.AllowCycles = false
	s, err := e.Import(cfg, seq)
	require.NoError(t, err)
	assert.Len(t, s.Nodes, 4)
	assert.Len(t, s.Edges, 3)
	for _, edge := range s.Edges {
		assert.Equal(t, EdgeLeadsTo, edge.Type)
	}

	assert.Equal(t, seq, e.Export(s))
}

func TestExport_TopologicalWithCycle(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	n := addNodes(t, e, s, "late", "root", "mid", "c1", "c2")
	connect(t, e, s, n[1], n[2], EdgeLeadsTo)
	connect(t, e, s, n[2], n[0], EdgeLeadsTo)
	connect(t, e, s, n[3], n[4], EdgeLeadsTo)
	connect(t, e, s, n[4], n[3], EdgeLeadsTo)

	out := e.Export(s)
	assert.Equal(t, []string{"root", "mid", "late", "c1", "c2"}, out.Texts())
	assert.False(t, out[len(out)-1].HasMore)
}

func TestAnalysisClone(t *testing.T) {
	e, s := newSession(t, DefaultConfig())
	nodes := addNodes(t, e, s, "a", "b")
	_, err := e.Connect(s, nodes[0].ID, nodes[1].ID, EdgeContradicts, 1)
	require.NoError(t, err)

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	c := res.Clone()

	c.Centrality[nodes[0].ID] = 42
	c.Communities[0].Members[0] = "x"
	c.Contradictions[0].Nodes[0] = "x"
	c.Stats.NodesByType[NodeHypothesis] = 42

	assert.NotEqual(t, 42.0, s.Metrics.Centrality[nodes[0].ID])
	assert.Equal(t, nodes[0].ID, s.Metrics.Communities[0].Members[0])
	assert.Equal(t, nodes[0].ID, res.Contradictions[0].Nodes[0])
	assert.Equal(t, 2, s.Stats.NodesByType[NodeHypothesis])

	n := nodes[0].Clone()
	n.Outgoing[0] = "x"
	assert.NotEqual(t, "x", nodes[0].Outgoing[0])
}
