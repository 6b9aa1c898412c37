// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tot implements Tree-of-Thought exploration.
//
// A session is a single-rooted tree of thoughts with depth and branching
// limits. Nodes move from active to explored once expanded, may be marked
// as solutions, and pruning cascades irreversibly to every descendant.
//
// Thread Safety: Engine is safe for concurrent use across sessions. A
// Session must be used by one caller at a time.
package tot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var tracer = otel.Tracer("aleutian.reason.tot")

// Evaluator scores a node in [0,1]. Results outside the range are clamped.
type Evaluator func(s *Session, n *Node) float64

// Generator produces the content of the i-th child created under parent.
type Generator func(s *Session, parent *Node, i int) string

// Engine runs tree operations against sessions passed in by the caller.
type Engine struct {
	evaluate Evaluator
	generate Generator
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the default heuristic scorer.
func WithEvaluator(fn Evaluator) Option {
	return func(e *Engine) {
		if fn != nil {
			e.evaluate = fn
		}
	}
}

// WithGenerator replaces the default child content generator.
func WithGenerator(fn Generator) Option {
	return func(e *Engine) {
		if fn != nil {
			e.generate = fn
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a tree engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		evaluate: HeuristicScore,
		generate: DefaultContent,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HeuristicScore is the default evaluator.
//
// Deeper nodes are penalized relative to MaxDepth, longer content earns up
// to 0.3, and the session random source adds a perturbation of +/-0.1.
func HeuristicScore(s *Session, n *Node) float64 {
	depthRatio := float64(n.Depth) / float64(s.Config.MaxDepth)
	sizeFactor := math.Min(1, float64(len(n.Content))/200)
	jitter := (s.Rand().Float64() - 0.5) * 0.2
	return 0.6*(1-0.5*depthRatio) + 0.3*sizeFactor + jitter
}

// DefaultContent labels generated children by branch number.
func DefaultContent(_ *Session, parent *Node, i int) string {
	return fmt.Sprintf("Branch %d of: %s", i+1, parent.Content)
}

// Initialize creates a session whose single active root holds rootContent.
func (e *Engine) Initialize(cfg Config, rootContent string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := e.now()
	s := &Session{
		Header: engine.NewHeader(now),
		Config: cfg,
		Nodes:  make(map[string]*Node),
		rng:    engine.NewRand(cfg.Seed),
	}
	root := &Node{
		ID:       engine.NewID(),
		Content:  rootContent,
		Children: []string{},
		Status:   StatusActive,
	}
	s.RootID = root.ID
	s.Nodes[root.ID] = root
	s.Order = append(s.Order, root.ID)
	s.Stats.NodesCreated = 1
	s.Stats.ActiveNodes = 1

	e.logger.Debug("tree session initialized",
		slog.String("session_id", s.ID),
		slog.Int("max_depth", cfg.MaxDepth),
		slog.Int("max_branching", cfg.MaxBranchingFactor),
		slog.String("strategy", string(cfg.Strategy)),
	)
	return s, nil
}

// CreateNode appends an active child under parentID.
//
// Outputs:
//
//	*Node - The new child.
//	error - ErrNodeNotFound, ErrParentPruned, ErrDepthExceeded or
//	        ErrBranchingExceeded. The session is unchanged on error.
func (e *Engine) CreateNode(s *Session, parentID, content string) (*Node, error) {
	parent, err := s.Node(parentID)
	if err != nil {
		return nil, err
	}
	if err := e.checkCapacity(s, parent); err != nil {
		return nil, err
	}
	child := e.appendChild(s, parent, content)
	s.Touch(e.now())
	return child, nil
}

func (e *Engine) checkCapacity(s *Session, parent *Node) error {
	switch {
	case parent.Status == StatusPruned:
		return fmt.Errorf("%w: %s", ErrParentPruned, parent.ID)
	case parent.Depth >= s.Config.MaxDepth:
		return fmt.Errorf("%w: node %s at depth %d, max %d", ErrDepthExceeded, parent.ID, parent.Depth, s.Config.MaxDepth)
	case len(parent.Children) >= s.Config.MaxBranchingFactor:
		return fmt.Errorf("%w: node %s has %d children, max %d", ErrBranchingExceeded, parent.ID, len(parent.Children), s.Config.MaxBranchingFactor)
	}
	return nil
}

func (e *Engine) appendChild(s *Session, parent *Node, content string) *Node {
	child := &Node{
		ID:       engine.NewID(),
		Content:  content,
		ParentID: parent.ID,
		Children: []string{},
		Depth:    parent.Depth + 1,
		Status:   StatusActive,
	}
	parent.Children = append(parent.Children, child.ID)
	s.Nodes[child.ID] = child
	s.Order = append(s.Order, child.ID)
	s.Stats.NodesCreated++
	s.Stats.ActiveNodes++
	if child.Depth > s.Stats.MaxDepthReached {
		s.Stats.MaxDepthReached = child.Depth
	}
	return child
}

// Expand creates children under an active node and marks it explored.
//
// Description:
//
//	Non-active nodes are left alone and nil is returned. Otherwise up to
//	ExpansionWidth children are created, bounded by the remaining branching
//	capacity. Caller supplied contents are used in order; when none are
//	given the generator fills in content.
//
// Outputs:
//
//	[]*Node - The created children, in order.
//	error - ErrNodeNotFound, ErrDepthExceeded or ErrBranchingExceeded.
//	        The session is unchanged on error.
func (e *Engine) Expand(s *Session, nodeID string, contents ...string) ([]*Node, error) {
	node, err := s.Node(nodeID)
	if err != nil {
		return nil, err
	}
	if node.Status != StatusActive {
		return nil, nil
	}
	if err := e.checkCapacity(s, node); err != nil {
		return nil, err
	}

	count := min(ExpansionWidth, s.Config.MaxBranchingFactor-len(node.Children))
	if len(contents) > 0 {
		count = min(count, len(contents))
	}

	children := make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		content := ""
		if i < len(contents) {
			content = contents[i]
		} else {
			content = e.generate(s, node, len(node.Children))
		}
		children = append(children, e.appendChild(s, node, content))
	}
	e.markExplored(s, node)
	s.Touch(e.now())

	e.logger.Debug("tree node expanded",
		slog.String("session_id", s.ID),
		slog.String("node_id", node.ID),
		slog.Int("depth", node.Depth),
		slog.Int("children", len(children)),
	)
	return children, nil
}

func (e *Engine) markExplored(s *Session, n *Node) {
	if n.Status != StatusActive {
		return
	}
	n.Status = StatusExplored
	s.Stats.NodesExplored++
	s.Stats.ActiveNodes--
}

// Evaluate scores a node with the configured evaluator and stores it.
func (e *Engine) Evaluate(s *Session, nodeID string) (float64, error) {
	node, err := s.Node(nodeID)
	if err != nil {
		return 0, err
	}
	return e.score(s, node), nil
}

func (e *Engine) score(s *Session, n *Node) float64 {
	v := engine.Clamp01(e.evaluate(s, n))
	n.Score = &v
	if v > s.Stats.BestScore {
		s.Stats.BestScore = v
	}
	return v
}

// SelectNext returns the next active node to expand, or nil if none.
//
// Depth-first takes the deepest node, breadth-first the shallowest and
// best-first the highest score, evaluating unscored candidates first.
// Ties go to the node discovered first.
func (e *Engine) SelectNext(s *Session) *Node {
	var best *Node
	bestKey := math.Inf(-1)

	for _, id := range s.Order {
		n := s.Nodes[id]
		if n == nil || n.Status != StatusActive {
			continue
		}
		var key float64
		switch s.Config.Strategy {
		case StrategyDepthFirst:
			key = float64(n.Depth)
		case StrategyBreadthFirst:
			key = -float64(n.Depth)
		default:
			if !n.Scored() {
				e.score(s, n)
			}
			key = *n.Score
		}
		if best == nil || key > bestKey {
			best, bestKey = n, key
		}
	}
	return best
}

// Prune marks a node and all of its descendants pruned.
//
// Descendants record the reason prefixed with "ancestor pruned: ".
func (e *Engine) Prune(s *Session, nodeID, reason string) error {
	node, err := s.Node(nodeID)
	if err != nil {
		return err
	}
	pruned := e.pruneSubtree(s, node, reason)
	s.Touch(e.now())

	e.logger.Debug("tree subtree pruned",
		slog.String("session_id", s.ID),
		slog.String("node_id", nodeID),
		slog.Int("pruned", pruned),
		slog.String("reason", reason),
	)
	return nil
}

func (e *Engine) pruneSubtree(s *Session, n *Node, reason string) int {
	count := 0
	if n.Status != StatusPruned {
		if n.Status == StatusActive {
			s.Stats.ActiveNodes--
		}
		n.Status = StatusPruned
		n.PruneReason = reason
		s.Stats.NodesPruned++
		count++
	}
	for _, childID := range n.Children {
		if child, ok := s.Nodes[childID]; ok {
			count += e.pruneSubtree(s, child, "ancestor pruned: "+reason)
		}
	}
	return count
}

// IsSolution reports whether the node scores above SolutionThreshold.
//
// Unscored nodes are evaluated first. A qualifying node is marked as a
// solution and counted once. Pruned nodes are never solutions.
func (e *Engine) IsSolution(s *Session, nodeID string) (bool, error) {
	node, err := s.Node(nodeID)
	if err != nil {
		return false, err
	}
	switch node.Status {
	case StatusPruned:
		return false, nil
	case StatusSolution:
		return true, nil
	}
	if !node.Scored() {
		e.score(s, node)
	}
	if *node.Score <= SolutionThreshold {
		return false, nil
	}
	if node.Status == StatusActive {
		s.Stats.ActiveNodes--
	}
	node.Status = StatusSolution
	s.Stats.SolutionsFound++
	s.Touch(e.now())
	return true, nil
}

// BestPath returns the root-to-leaf path with the highest score sum.
//
// Only non-pruned leaves are considered and unscored nodes count as zero.
// The result is empty when no such leaf exists.
func (e *Engine) BestPath(s *Session) []string {
	var best []string
	bestSum := math.Inf(-1)

	for _, id := range s.Order {
		n := s.Nodes[id]
		if n == nil || n.Status == StatusPruned || len(n.Children) > 0 {
			continue
		}
		path, sum := s.pathTo(n)
		if sum > bestSum {
			best, bestSum = path, sum
		}
	}
	return best
}

// pathTo returns root..n and the score sum along it.
func (s *Session) pathTo(n *Node) ([]string, float64) {
	var rev []string
	sum := 0.0
	for cur := n; cur != nil; cur = s.Nodes[cur.ParentID] {
		rev = append(rev, cur.ID)
		sum += cur.ScoreOr(0)
	}
	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path, sum
}

// IterationResult reports what one RunIteration call did.
type IterationResult struct {
	Iteration  int      `json:"iteration"`
	SelectedID string   `json:"selected_id,omitempty"`
	Created    []string `json:"created,omitempty"`
	Pruned     []string `json:"pruned,omitempty"`
	Solutions  []string `json:"solutions,omitempty"`
	Done       bool     `json:"done"`
	Reason     string   `json:"reason,omitempty"`
}

// RunIteration performs one select, expand and evaluate step.
//
// Description:
//
//	Selects the next active node and expands it. Each new child is
//	evaluated and solution-checked; children scoring below the pruning
//	threshold are pruned. A node that can no longer grow is evaluated,
//	solution-checked and marked explored instead. NeedsMoreWork is
//	cleared once a solution exists, the exploration budget is spent, the
//	time limit is reached, or no active node remains.
//
// Thread Safety: Not safe for concurrent use on the same session.
func (e *Engine) RunIteration(ctx context.Context, s *Session) (IterationResult, error) {
	_, span := tracer.Start(ctx, "tot.Engine.RunIteration")
	defer span.End()

	start := e.now()
	s.Iteration++
	res := IterationResult{Iteration: s.Iteration}

	node := e.SelectNext(s)
	if node == nil {
		e.finish(s, &res, "no active nodes")
		return res, nil
	}
	res.SelectedID = node.ID

	children, err := e.Expand(s, node.ID)
	switch {
	case errors.Is(err, engine.ErrCapacityExceeded):
		if ok, _ := e.IsSolution(s, node.ID); ok {
			res.Solutions = append(res.Solutions, node.ID)
		}
		e.markExplored(s, node)
	case err != nil:
		return res, err
	}

	for _, child := range children {
		res.Created = append(res.Created, child.ID)
		score := e.score(s, child)
		if ok, _ := e.IsSolution(s, child.ID); ok {
			res.Solutions = append(res.Solutions, child.ID)
			continue
		}
		if score < s.Config.PruningThreshold {
			e.pruneSubtree(s, child, fmt.Sprintf("score %.3f below threshold %.3f", score, s.Config.PruningThreshold))
			res.Pruned = append(res.Pruned, child.ID)
		}
	}

	s.Stats.Elapsed += engine.Duration(e.now().Sub(start))
	s.Touch(e.now())

	switch {
	case s.Stats.SolutionsFound > 0:
		e.finish(s, &res, "solution found")
	case s.Stats.NodesExplored >= s.Config.MaxNodesExplored:
		e.finish(s, &res, "exploration budget exhausted")
	case s.Config.TimeLimit > 0 && s.Stats.Elapsed >= s.Config.TimeLimit:
		e.finish(s, &res, "time limit reached")
	case s.Stats.ActiveNodes == 0:
		e.finish(s, &res, "no active nodes")
	}

	span.SetAttributes(
		attribute.String("session_id", s.ID),
		attribute.Int("iteration", s.Iteration),
		attribute.Int("created", len(res.Created)),
		attribute.Bool("done", res.Done),
	)
	return res, nil
}

func (e *Engine) finish(s *Session, res *IterationResult, reason string) {
	res.Done = true
	res.Reason = reason
	if s.NeedsMoreWork {
		e.logger.Info("tree exploration finished",
			slog.String("session_id", s.ID),
			slog.String("reason", reason),
			slog.Int("iterations", s.Iteration),
			slog.Int("nodes", len(s.Nodes)),
			slog.Int("solutions", s.Stats.SolutionsFound),
		)
	}
	s.NeedsMoreWork = false
}
