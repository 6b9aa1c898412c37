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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

func constScore(v float64) Evaluator {
	return func(*Session, *Node) float64 { return v }
}

func testConfig(maxDepth, branching int) Config {
	cfg := DefaultConfig()
	cfg.MaxDepth = maxDepth
	cfg.MaxBranchingFactor = branching
	cfg.Seed = 7
	return cfg
}

func TestInitialize(t *testing.T) {
	e := New()
	s, err := e.Initialize(DefaultConfig(), "root thought")
	require.NoError(t, err)

	root := s.Root()
	require.NotNil(t, root)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, StatusActive, root.Status)
	assert.Empty(t, root.ParentID)
	assert.True(t, s.NeedsMoreWork)
	assert.Equal(t, 1, s.Stats.NodesCreated)
}

func TestInitialize_InvalidConfig(t *testing.T) {
	e := New()
	cfg := DefaultConfig()
	cfg.Strategy = "random-walk"
	_, err := e.Initialize(cfg, "root")
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)

	cfg = DefaultConfig()
	cfg.MaxDepth = 0
	_, err = e.Initialize(cfg, "root")
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)
}

func TestExpand_DepthAndBranchingScenario(t *testing.T) {
	e := New()
	s, err := e.Initialize(testConfig(2, 2), "root")
	require.NoError(t, err)

	children, err := e.Expand(s, s.RootID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		assert.Equal(t, 1, c.Depth)
		assert.Equal(t, StatusActive, c.Status)
	}
	assert.Equal(t, StatusExplored, s.Root().Status)

	grandchildren, err := e.Expand(s, children[0].ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(grandchildren), 2)
	require.NotEmpty(t, grandchildren)

	before := len(s.Nodes)
	for _, gc := range grandchildren {
		assert.Equal(t, 2, gc.Depth)
		_, err := e.Expand(s, gc.ID)
		assert.ErrorIs(t, err, engine.ErrCapacityExceeded)
		assert.ErrorIs(t, err, ErrDepthExceeded)
		assert.Equal(t, StatusActive, gc.Status)
	}
	assert.Equal(t, before, len(s.Nodes))
}

func TestExpand_NonActiveIsNoop(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(3, 3), "root")

	_, err := e.Expand(s, s.RootID)
	require.NoError(t, err)

	again, err := e.Expand(s, s.RootID)
	assert.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, s.Root().Children, 3)
}

func TestExpand_CallerContents(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(3, 2), "root")

	children, err := e.Expand(s, s.RootID, "alpha", "beta", "gamma")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "alpha", children[0].Content)
	assert.Equal(t, "beta", children[1].Content)
}

func TestExpand_CallerContentsCappedAtWidth(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(3, 5), "root")

	children, err := e.Expand(s, s.RootID, "a", "b", "c", "d", "e")
	require.NoError(t, err)
	assert.Len(t, children, ExpansionWidth)
	assert.Len(t, s.Root().Children, ExpansionWidth)
	assert.Equal(t, "c", children[ExpansionWidth-1].Content)
}

func TestExpand_UnknownNode(t *testing.T) {
	e := New()
	s, _ := e.Initialize(DefaultConfig(), "root")
	_, err := e.Expand(s, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestCreateNode(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(1, 2), "root")

	a, err := e.CreateNode(s, s.RootID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Depth)
	assert.Equal(t, s.RootID, a.ParentID)
	assert.Equal(t, StatusActive, s.Root().Status, "parent status untouched")

	_, err = e.CreateNode(s, s.RootID, "b")
	require.NoError(t, err)

	t.Run("branching exceeded", func(t *testing.T) {
		before := len(s.Nodes)
		_, err := e.CreateNode(s, s.RootID, "c")
		assert.ErrorIs(t, err, ErrBranchingExceeded)
		assert.Equal(t, before, len(s.Nodes))
		assert.Len(t, s.Root().Children, 2)
	})

	t.Run("depth exceeded", func(t *testing.T) {
		_, err := e.CreateNode(s, a.ID, "too deep")
		assert.ErrorIs(t, err, ErrDepthExceeded)
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := e.CreateNode(s, "nope", "x")
		assert.ErrorIs(t, err, engine.ErrNotFound)
	})

	t.Run("pruned parent", func(t *testing.T) {
		s2, _ := e.Initialize(testConfig(3, 3), "root")
		require.NoError(t, e.Prune(s2, s2.RootID, "dead end"))
		_, err := e.CreateNode(s2, s2.RootID, "x")
		assert.ErrorIs(t, err, engine.ErrInvalidOperation)
	})
}

func TestPrune_Cascades(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(3, 2), "root")

	children, _ := e.Expand(s, s.RootID)
	grandchildren, _ := e.Expand(s, children[0].ID)

	require.NoError(t, e.Prune(s, children[0].ID, "weak"))

	assert.Equal(t, StatusPruned, children[0].Status)
	assert.Equal(t, "weak", children[0].PruneReason)
	for _, gc := range grandchildren {
		assert.Equal(t, StatusPruned, gc.Status)
		assert.Equal(t, "ancestor pruned: weak", gc.PruneReason)
	}
	assert.Equal(t, StatusActive, children[1].Status)
	assert.Equal(t, 1+len(grandchildren), s.Stats.NodesPruned)

	assert.ErrorIs(t, e.Prune(s, "missing", "x"), engine.ErrNotFound)
}

func TestIsSolution(t *testing.T) {
	t.Run("above threshold", func(t *testing.T) {
		e := New(WithEvaluator(constScore(0.9)))
		s, _ := e.Initialize(DefaultConfig(), "root")

		ok, err := e.IsSolution(s, s.RootID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, StatusSolution, s.Root().Status)

		ok, _ = e.IsSolution(s, s.RootID)
		assert.True(t, ok)
		assert.Equal(t, 1, s.Stats.SolutionsFound)
	})

	t.Run("at threshold", func(t *testing.T) {
		e := New(WithEvaluator(constScore(SolutionThreshold)))
		s, _ := e.Initialize(DefaultConfig(), "root")
		ok, err := e.IsSolution(s, s.RootID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StatusActive, s.Root().Status)
	})

	t.Run("pruned never solution", func(t *testing.T) {
		e := New(WithEvaluator(constScore(1)))
		s, _ := e.Initialize(DefaultConfig(), "root")
		require.NoError(t, e.Prune(s, s.RootID, "x"))
		ok, err := e.IsSolution(s, s.RootID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEvaluate_Clamped(t *testing.T) {
	e := New(WithEvaluator(constScore(4)))
	s, _ := e.Initialize(DefaultConfig(), "root")
	v, err := e.Evaluate(s, s.RootID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, *s.Root().Score)
}

func TestHeuristicScore_InRange(t *testing.T) {
	e := New()
	s, _ := e.Initialize(testConfig(5, 3), strings.Repeat("x", 500))
	for i := 0; i < 50; i++ {
		v, err := e.Evaluate(s, s.RootID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSelectNext(t *testing.T) {
	build := func(strategy Strategy, eval Evaluator) (*Engine, *Session, []*Node) {
		e := New(WithEvaluator(eval))
		cfg := testConfig(3, 3)
		cfg.Strategy = strategy
		s, _ := e.Initialize(cfg, "root")
		children, _ := e.Expand(s, s.RootID, "a", "b")
		_, _ = e.Expand(s, children[1].ID, "b1")
		return e, s, children
	}

	t.Run("depth-first picks deepest", func(t *testing.T) {
		e, s, _ := build(StrategyDepthFirst, constScore(0.5))
		assert.Equal(t, "b1", e.SelectNext(s).Content)
	})

	t.Run("breadth-first picks shallowest in discovery order", func(t *testing.T) {
		e, s, _ := build(StrategyBreadthFirst, constScore(0.5))
		assert.Equal(t, "a", e.SelectNext(s).Content)
	})

	t.Run("best-first picks highest score", func(t *testing.T) {
		e, s, _ := build(StrategyBestFirst, func(_ *Session, n *Node) float64 {
			if n.Content == "b1" {
				return 0.7
			}
			return 0.4
		})
		got := e.SelectNext(s)
		assert.Equal(t, "b1", got.Content)
		assert.True(t, s.Nodes[s.Order[1]].Scored(), "unscored candidates are evaluated")
	})

	t.Run("none active", func(t *testing.T) {
		e := New()
		s, _ := e.Initialize(DefaultConfig(), "root")
		require.NoError(t, e.Prune(s, s.RootID, "x"))
		assert.Nil(t, e.SelectNext(s))
	})
}

func TestBestPath(t *testing.T) {
	scores := map[string]float64{"root": 0.5, "a": 0.2, "b": 0.6, "a1": 0.9, "b1": 0.1}
	e := New(WithEvaluator(func(_ *Session, n *Node) float64 { return scores[n.Content] }))
	s, _ := e.Initialize(testConfig(3, 3), "root")

	children, _ := e.Expand(s, s.RootID, "a", "b")
	_, _ = e.Expand(s, children[0].ID, "a1")
	_, _ = e.Expand(s, children[1].ID, "b1")
	for _, id := range s.Order {
		_, _ = e.Evaluate(s, id)
	}

	assert.Equal(t, []string{"root", "a", "a1"}, s.Contents(e.BestPath(s)))

	require.NoError(t, e.Prune(s, children[0].ID, "x"))
	assert.Equal(t, []string{"root", "b", "b1"}, s.Contents(e.BestPath(s)))

	require.NoError(t, e.Prune(s, s.RootID, "x"))
	assert.Empty(t, e.BestPath(s))
}

func TestRunIteration_ExploresWholeTree(t *testing.T) {
	e := New(WithEvaluator(constScore(0.5)))
	s, _ := e.Initialize(testConfig(2, 2), "root")

	iterations := 0
	for s.NeedsMoreWork && iterations < 50 {
		_, err := e.RunIteration(context.Background(), s)
		require.NoError(t, err)
		iterations++
	}

	assert.Equal(t, 7, iterations)
	assert.Equal(t, 7, s.Stats.NodesCreated)
	assert.Equal(t, 7, s.Stats.NodesExplored)
	assert.Equal(t, 0, s.Stats.ActiveNodes)
	assert.False(t, s.NeedsMoreWork)
	assertTreeInvariants(t, s)
}

func TestRunIteration_PrunesLowScores(t *testing.T) {
	e := New(WithEvaluator(func(_ *Session, n *Node) float64 {
		if strings.HasPrefix(n.Content, "Branch 1 ") {
			return 0.1
		}
		return 0.5
	}))
	s, _ := e.Initialize(testConfig(3, 3), "root")

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iteration)
	assert.Equal(t, s.RootID, res.SelectedID)
	assert.Len(t, res.Created, 3)
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, StatusPruned, s.Nodes[res.Pruned[0]].Status)
	assert.Contains(t, s.Nodes[res.Pruned[0]].PruneReason, "below threshold")
	assert.True(t, s.NeedsMoreWork)
}

func TestRunIteration_StopsOnSolution(t *testing.T) {
	e := New(WithEvaluator(func(_ *Session, n *Node) float64 {
		if n.Depth == 1 {
			return 0.95
		}
		return 0.5
	}))
	s, _ := e.Initialize(DefaultConfig(), "root")

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, "solution found", res.Reason)
	assert.Len(t, res.Solutions, 3)
	assert.Equal(t, 3, s.Stats.SolutionsFound)
	assert.False(t, s.NeedsMoreWork)
}

func TestRunIteration_Budget(t *testing.T) {
	e := New(WithEvaluator(constScore(0.5)))
	cfg := DefaultConfig()
	cfg.MaxNodesExplored = 1
	s, _ := e.Initialize(cfg, "root")

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "exploration budget exhausted", res.Reason)
}

func TestRunIteration_TimeLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	e := New(WithEvaluator(constScore(0.5)), WithClock(clock))
	cfg := DefaultConfig()
	cfg.TimeLimit = engine.Duration(time.Millisecond)
	s, _ := e.Initialize(cfg, "root")

	res, err := e.RunIteration(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "time limit reached", res.Reason)
	assert.False(t, s.NeedsMoreWork)
}

func TestRunIteration_DefaultHeuristicKeepsInvariants(t *testing.T) {
	e := New()
	cfg := testConfig(4, 3)
	cfg.Strategy = StrategyBreadthFirst
	s, _ := e.Initialize(cfg, "investigate the failing deploy")

	for i := 0; i < 40 && s.NeedsMoreWork; i++ {
		_, err := e.RunIteration(context.Background(), s)
		require.NoError(t, err)
	}
	assertTreeInvariants(t, s)
}

func TestImportExport_RoundTrip(t *testing.T) {
	e := New()
	seq := thought.FromTexts([]string{"frame", "gather", "analyze", "conclude"})

	s, err := e.Import(testConfig(2, 2), seq)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Config.MaxDepth)
	assert.Len(t, s.Nodes, 4)
	assertTreeInvariants(t, s)

	out := e.Export(s)
	assert.Equal(t, seq.Texts(), out.Texts())
	assert.Equal(t, seq, out)
}

func TestImport_Invalid(t *testing.T) {
	e := New()
	_, err := e.Import(DefaultConfig(), nil)
	assert.ErrorIs(t, err, thought.ErrInvalidSequence)
}

func assertTreeInvariants(t *testing.T, s *Session) {
	t.Helper()
	for _, n := range s.Nodes {
		assert.LessOrEqual(t, len(n.Children), s.Config.MaxBranchingFactor, "branching of %s", n.ID)
		for _, childID := range n.Children {
			child := s.Nodes[childID]
			require.NotNil(t, child)
			assert.Equal(t, n.Depth+1, child.Depth)
			assert.Equal(t, n.ID, child.ParentID)
			if n.Status == StatusPruned {
				assert.Equal(t, StatusPruned, child.Status, "descendant of pruned %s", n.ID)
			}
		}
	}
}
