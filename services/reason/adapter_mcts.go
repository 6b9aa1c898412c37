// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reason

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/mcts"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

type mctsAdapter struct {
	eng      *mcts.Engine
	defaults mcts.Config
}

// SimulationResult is the rollout value from one node.
type SimulationResult struct {
	NodeID string  `json:"node_id"`
	Value  float64 `json:"value"`
}

// BackpropagationResult lists the updated path, leaf first.
type BackpropagationResult struct {
	Path []string `json:"path"`
}

// ProbabilitiesResult is the visit distribution over root actions.
type ProbabilitiesResult struct {
	Actions []mcts.ActionProbability `json:"actions"`
}

func (a *mctsAdapter) pattern() engine.Pattern { return engine.PatternMCTS }

func (a *mctsAdapter) verbs() []string {
	return []string{"select", "expand_node", "simulate", "backpropagate", "best_action", "probabilities"}
}

func (a *mctsAdapter) initialize(req *OperationRequest) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	if err := requireField("content", req.Content); err != nil {
		return nil, err
	}
	return a.eng.Initialize(cfg, req.Content, req.Actions...)
}

func (a *mctsAdapter) importSequence(req *OperationRequest, seq thought.Sequence) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	return a.eng.Import(cfg, seq)
}

func (a *mctsAdapter) export(s engine.Session) (thought.Sequence, error) {
	ms, err := sessionAs[*mcts.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.Export(ms), nil
}

func (a *mctsAdapter) iterate(ctx context.Context, s engine.Session) (any, error) {
	ms, err := sessionAs[*mcts.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.RunIteration(ctx, ms)
}

func (a *mctsAdapter) apply(_ context.Context, s engine.Session, req *OperationRequest) (any, error) {
	ms, err := sessionAs[*mcts.Session](s)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case "select":
		return NodeResult{Node: a.eng.SelectLeaf(ms).Clone()}, nil

	case "expand_node":
		nodeID := req.NodeID
		if nodeID == "" {
			nodeID = a.eng.SelectLeaf(ms).ID
		}
		child, err := a.eng.ExpandNode(ms, nodeID, req.Action, req.Content)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: child.Clone()}, nil

	case "simulate":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		value, err := a.eng.Simulate(ms, req.NodeID)
		if err != nil {
			return nil, err
		}
		return SimulationResult{NodeID: req.NodeID, Value: value}, nil

	case "backpropagate":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		if req.Value == nil {
			return nil, fmt.Errorf("%w: value is required", engine.ErrInvalidOperation)
		}
		path, err := a.eng.Backpropagate(ms, req.NodeID, *req.Value)
		if err != nil {
			return nil, err
		}
		return BackpropagationResult{Path: path}, nil

	case "best_action":
		best, err := a.eng.BestAction(ms)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: best.Clone()}, nil

	case "probabilities":
		return ProbabilitiesResult{Actions: a.eng.ActionProbabilities(ms)}, nil
	}
	return nil, unsupported(a.pattern(), req.Operation)
}

func (a *mctsAdapter) stats(s engine.Session) any {
	if ms, ok := s.(*mcts.Session); ok {
		return ms.Stats
	}
	return nil
}

func (a *mctsAdapter) counters(s engine.Session) counters {
	if ms, ok := s.(*mcts.Session); ok {
		return counters{nodes: ms.Stats.NodesCreated, simulations: ms.Stats.TotalSimulations}
	}
	return counters{}
}
