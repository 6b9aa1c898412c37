// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcts implements Monte Carlo Tree Search over thought nodes.
//
// Each iteration selects a leaf by UCB, expands one untried action,
// simulates a rollout from the new node and backpropagates the value to
// the root. Domain scoring plugs in through a Simulator.
//
// Thread Safety: Engine is safe for concurrent use across sessions. A
// Session must be used by one caller at a time.
package mcts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var tracer = otel.Tracer("aleutian.reason.mcts")

// Simulator returns the rollout value of a node.
type Simulator func(s *Session, n *Node) float64

// Engine runs MCTS operations against sessions passed in by the caller.
type Engine struct {
	simulate Simulator
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSimulator replaces the configured rollout policy.
func WithSimulator(fn Simulator) Option {
	return func(e *Engine) {
		if fn != nil {
			e.simulate = fn
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

// New creates an MCTS engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		simulate: Rollout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rollout is the default simulator. It dispatches on the session's
// RolloutPolicy and averages one draw per remaining step.
//
// The neural policy has no model behind it and blends the node prior with
// noise.
func Rollout(s *Session, n *Node) float64 {
	steps := max(1, s.Config.SimulationDepth-n.Depth)
	rng := s.Rand()
	depthRatio := math.Min(1, float64(n.Depth)/float64(s.Config.SimulationDepth))

	total := 0.0
	for range steps {
		random := rng.Float64()
		heuristic := 0.6*rng.Float64() + 0.4*(1-depthRatio)
		switch s.Config.RolloutPolicy {
		case RolloutHeuristic:
			total += heuristic
		case RolloutNeural:
			total += 0.5*n.Prior + 0.5*random
		case RolloutHybrid:
			total += (random + heuristic) / 2
		default:
			total += random
		}
	}
	return total / float64(steps)
}

// Initialize creates a session with a single root holding rootContent.
//
// The root's untried actions are actions, or DefaultActions when none are
// given.
func (e *Engine) Initialize(cfg Config, rootContent string, actions ...string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		actions = cfg.DefaultActions
	}
	now := e.now()
	s := &Session{
		Header: engine.NewHeader(now),
		Config: cfg,
		Nodes:  make(map[string]*Node),
		RAVE:   make(map[string]RAVEStat),
		rng:    engine.NewRand(cfg.Seed),
	}
	root := &Node{
		ID:             engine.NewID(),
		Content:        rootContent,
		Children:       []string{},
		UntriedActions: slices.Clone(actions),
		Prior:          1,
	}
	s.RootID = root.ID
	s.Nodes[root.ID] = root
	s.Order = append(s.Order, root.ID)
	s.Stats.NodesCreated = 1

	e.logger.Debug("mcts session initialized",
		slog.String("session_id", s.ID),
		slog.String("variant", string(cfg.Variant)),
		slog.String("rollout", string(cfg.RolloutPolicy)),
		slog.Int("actions", len(actions)),
	)
	return s, nil
}

// CalculateUCB scores n for selection under a parent with parentVisits.
//
// Unvisited nodes score +Inf. With RAVE enabled the exploitation term is
// blended with the action's tree-wide average using
// beta = sqrt(bias / (3*visits + bias)).
func (e *Engine) CalculateUCB(s *Session, n *Node, parentVisits int) float64 {
	if n.Visits == 0 {
		return math.Inf(1)
	}
	pv := float64(max(parentVisits, 1))
	v := float64(n.Visits)
	c := s.Config.ExplorationConstant

	exploit := n.Mean()
	if s.Config.UseRAVE {
		if stat, ok := s.RAVE[n.Action]; ok && stat.Count > 0 {
			beta := math.Sqrt(s.Config.RAVEBias / (3*v + s.Config.RAVEBias))
			exploit = (1-beta)*exploit + beta*(stat.Total/float64(stat.Count))
		}
	}

	var explore float64
	switch s.Config.Variant {
	case VariantUCB1Tuned:
		mean := n.Mean()
		variance := n.SumSquares/v - mean*mean + math.Sqrt(2*math.Log(pv)/v)
		explore = c * math.Sqrt(math.Log(pv)/v*math.Min(0.25, variance))
	case VariantPUCT:
		explore = c*n.Prior*math.Sqrt(pv)/(1+v) + s.Config.PriorWeight*n.Prior/(1+v)
	default:
		explore = c * math.Sqrt(math.Log(pv)/v)
	}
	return exploit + explore
}

// SelectLeaf descends from the root by maximum UCB until it reaches a node
// with untried actions or without children. Ties go to the earlier child.
func (e *Engine) SelectLeaf(s *Session) *Node {
	cur := s.Root()
	for cur != nil && len(cur.UntriedActions) == 0 && len(cur.Children) > 0 {
		var best *Node
		bestScore := math.Inf(-1)
		for _, id := range cur.Children {
			child := s.Nodes[id]
			if child == nil {
				continue
			}
			score := e.CalculateUCB(s, child, cur.Visits)
			if best == nil || score > bestScore {
				best, bestScore = child, score
			}
		}
		if best == nil {
			break
		}
		cur = best
	}
	return cur
}

// ExpandNode removes one untried action from nodeID and adds the child it
// leads to.
//
// Description:
//
//	An empty action pops one untried action at random. The child inherits
//	the remaining untried actions and is terminal when the action signals
//	termination or the child reaches SimulationDepth. Content defaults to
//	the action itself.
//
// Outputs:
//
//	*Node - The new child.
//	error - ErrNodeNotFound, ErrNoUntriedActions or ErrUnknownAction. The
//	        session is unchanged on error.
func (e *Engine) ExpandNode(s *Session, nodeID, action, content string) (*Node, error) {
	parent, err := s.Node(nodeID)
	if err != nil {
		return nil, err
	}
	if !parent.Expandable() {
		return nil, fmt.Errorf("%w: %s", ErrNoUntriedActions, nodeID)
	}

	var idx int
	if action == "" {
		idx = s.Rand().IntN(len(parent.UntriedActions))
	} else {
		idx = slices.Index(parent.UntriedActions, action)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q on %s", ErrUnknownAction, action, nodeID)
		}
	}
	action = parent.UntriedActions[idx]
	prior := 1 / float64(len(parent.UntriedActions)+len(parent.Children))
	parent.UntriedActions = slices.Delete(parent.UntriedActions, idx, idx+1)

	if content == "" {
		content = action
	}
	child := &Node{
		ID:       engine.NewID(),
		Content:  content,
		Action:   action,
		ParentID: parent.ID,
		Children: []string{},
		Depth:    parent.Depth + 1,
		Prior:    prior,
	}
	child.Terminal = IsTerminalAction(action) || child.Depth >= s.Config.SimulationDepth
	if child.Terminal {
		child.UntriedActions = []string{}
	} else {
		child.UntriedActions = slices.Clone(parent.UntriedActions)
	}

	parent.Children = append(parent.Children, child.ID)
	s.Nodes[child.ID] = child
	s.Order = append(s.Order, child.ID)
	s.Stats.NodesCreated++
	if child.Depth > s.Stats.MaxDepthReached {
		s.Stats.MaxDepthReached = child.Depth
	}
	s.Touch(e.now())

	e.logger.Debug("mcts node expanded",
		slog.String("session_id", s.ID),
		slog.String("parent_id", parent.ID),
		slog.String("action", action),
		slog.Int("depth", child.Depth),
		slog.Bool("terminal", child.Terminal),
	)
	return child, nil
}

// Simulate runs one rollout from nodeID and counts it.
func (e *Engine) Simulate(s *Session, nodeID string) (float64, error) {
	n, err := s.Node(nodeID)
	if err != nil {
		return 0, err
	}
	v := e.simulate(s, n)
	s.Stats.TotalSimulations++
	return v, nil
}

// Backpropagate adds value to every node from leafID up to the root.
//
// Description:
//
//	Each node on the path gains one visit, value and value squared, and a
//	win, loss or draw by WinThreshold and LossThreshold. RAVE statistics
//	are updated once per distinct action on the path.
//
// Outputs:
//
//	[]string - The updated node ids, leaf first.
//	error - ErrNodeNotFound. The session is unchanged on error.
func (e *Engine) Backpropagate(s *Session, leafID string, value float64) ([]string, error) {
	leaf, err := s.Node(leafID)
	if err != nil {
		return nil, err
	}

	var path []string
	seen := make(map[string]bool)
	for cur := leaf; cur != nil; cur = s.Nodes[cur.ParentID] {
		path = append(path, cur.ID)
		cur.Visits++
		cur.TotalValue += value
		cur.SumSquares += value * value
		avg := cur.TotalValue / float64(cur.Visits)
		cur.AverageValue = &avg

		switch {
		case value > WinThreshold:
			cur.Wins++
		case value < LossThreshold:
			cur.Losses++
		default:
			cur.Draws++
		}

		if cur.Action != "" && !seen[cur.Action] {
			seen[cur.Action] = true
			stat := s.RAVE[cur.Action]
			stat.Total += value
			stat.Count++
			s.RAVE[cur.Action] = stat
		}
	}
	s.Touch(e.now())
	return path, nil
}

// BestAction returns the root child with the most visits. Ties go to the
// earlier child.
func (e *Engine) BestAction(s *Session) (*Node, error) {
	root := s.Root()
	var best *Node
	for _, id := range root.Children {
		child := s.Nodes[id]
		if child == nil {
			continue
		}
		if best == nil || child.Visits > best.Visits {
			best = child
		}
	}
	if best == nil {
		return nil, ErrNoChildren
	}
	return best, nil
}

// ActionProbability is one root child's share of the root child visits.
type ActionProbability struct {
	NodeID       string  `json:"node_id"`
	Action       string  `json:"action"`
	Visits       int     `json:"visits"`
	Probability  float64 `json:"probability"`
	AverageValue float64 `json:"average_value"`
}

// ActionProbabilities returns the visit share of each root child in child
// order. Shares are zero before any child has been visited.
func (e *Engine) ActionProbabilities(s *Session) []ActionProbability {
	root := s.Root()
	total := 0
	for _, id := range root.Children {
		if child := s.Nodes[id]; child != nil {
			total += child.Visits
		}
	}
	out := make([]ActionProbability, 0, len(root.Children))
	for _, id := range root.Children {
		child := s.Nodes[id]
		if child == nil {
			continue
		}
		p := ActionProbability{
			NodeID:       child.ID,
			Action:       child.Action,
			Visits:       child.Visits,
			AverageValue: child.Mean(),
		}
		if total > 0 {
			p.Probability = float64(child.Visits) / float64(total)
		}
		out = append(out, p)
	}
	return out
}

// IterationResult reports what one RunIteration call did.
type IterationResult struct {
	Iteration  int     `json:"iteration"`
	SelectedID string  `json:"selected_id"`
	ExpandedID string  `json:"expanded_id,omitempty"`
	Value      float64 `json:"value"`
	Done       bool    `json:"done"`
	Reason     string  `json:"reason,omitempty"`
}

// RunIteration performs one selection, expansion, simulation and
// backpropagation cycle.
//
// Description:
//
//	Every call simulates exactly once. The selected leaf is expanded when
//	it is expandable and the rollout starts from the new child. Afterwards
//	derived statistics are refreshed and NeedsMoreWork is cleared when the
//	simulation budget, time limit, confidence threshold or best action
//	visit minimum is reached.
//
// Thread Safety: Not safe for concurrent use on the same session.
func (e *Engine) RunIteration(ctx context.Context, s *Session) (IterationResult, error) {
	_, span := tracer.Start(ctx, "mcts.Engine.RunIteration")
	defer span.End()

	start := e.now()
	s.Iteration++
	res := IterationResult{Iteration: s.Iteration}

	leaf := e.SelectLeaf(s)
	res.SelectedID = leaf.ID
	if leaf.Expandable() {
		child, err := e.ExpandNode(s, leaf.ID, "", "")
		if err != nil {
			return res, err
		}
		leaf = child
		res.ExpandedID = child.ID
	}

	value, err := e.Simulate(s, leaf.ID)
	if err != nil {
		return res, err
	}
	res.Value = value
	if _, err := e.Backpropagate(s, leaf.ID, value); err != nil {
		return res, err
	}

	s.Stats.Elapsed += engine.Duration(e.now().Sub(start))
	e.refreshStats(s)
	s.Touch(e.now())

	if reason := e.checkTermination(s); reason != "" {
		res.Done = true
		res.Reason = reason
		if s.NeedsMoreWork {
			e.logger.Info("mcts search finished",
				slog.String("session_id", s.ID),
				slog.String("reason", reason),
				slog.Int("simulations", s.Stats.TotalSimulations),
				slog.String("best_action", s.Stats.BestAction),
			)
		}
		s.NeedsMoreWork = false
	}

	span.SetAttributes(
		attribute.String("session_id", s.ID),
		attribute.Int("iteration", s.Iteration),
		attribute.Float64("value", value),
		attribute.Bool("done", res.Done),
	)
	return res, nil
}

func (e *Engine) checkTermination(s *Session) string {
	cfg := s.Config
	switch {
	case s.Stats.TotalSimulations >= cfg.MaxSimulations:
		return "max simulations reached"
	case cfg.TimeLimit > 0 && s.Stats.Elapsed >= cfg.TimeLimit:
		return "time limit reached"
	}

	root := s.Root()
	total := 0
	for _, id := range root.Children {
		if child := s.Nodes[id]; child != nil {
			total += child.Visits
		}
	}
	best, err := e.BestAction(s)
	if err != nil {
		return ""
	}
	if total >= ConfidenceMinVisits && float64(best.Visits)/float64(total) >= cfg.ConfidenceThreshold {
		return "confidence threshold reached"
	}
	if cfg.MinVisitsBestAction > 0 && best.Visits >= cfg.MinVisitsBestAction {
		return "best action visit minimum reached"
	}
	return ""
}

func (e *Engine) refreshStats(s *Session) {
	if secs := s.Stats.Elapsed.Std().Seconds(); secs > 0 {
		s.Stats.SimulationsPerSecond = float64(s.Stats.TotalSimulations) / secs
	}

	parents, children := 0, 0
	for _, n := range s.Nodes {
		if len(n.Children) > 0 {
			parents++
			children += len(n.Children)
		}
	}
	s.Stats.AverageBranching = 0
	if parents > 0 {
		s.Stats.AverageBranching = float64(children) / float64(parents)
	}

	root := s.Root()
	s.Stats.ExplorationRatio = 0
	if all := len(root.Children) + len(root.UntriedActions); all > 0 {
		s.Stats.ExplorationRatio = float64(len(root.Children)) / float64(all)
	}

	s.Stats.BestAction, s.Stats.BestActionShare = "", 0
	for _, p := range e.ActionProbabilities(s) {
		if s.Stats.BestAction == "" || p.Probability > s.Stats.BestActionShare {
			s.Stats.BestAction, s.Stats.BestActionShare = p.Action, p.Probability
		}
	}
}
