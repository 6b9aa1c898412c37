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

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
	"github.com/AleutianAI/AleutianReason/services/reason/tot"
)

type treeAdapter struct {
	eng      *tot.Engine
	defaults tot.Config
}

// SolutionResult reports whether a node satisfies the solution check.
type SolutionResult struct {
	NodeID   string `json:"node_id"`
	Solution bool   `json:"solution"`
}

func (a *treeAdapter) pattern() engine.Pattern { return engine.PatternTree }

func (a *treeAdapter) verbs() []string {
	return []string{"create_node", "expand", "evaluate", "select_next", "prune", "is_solution", "best_path"}
}

func (a *treeAdapter) initialize(req *OperationRequest) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	if err := requireField("content", req.Content); err != nil {
		return nil, err
	}
	return a.eng.Initialize(cfg, req.Content)
}

func (a *treeAdapter) importSequence(req *OperationRequest, seq thought.Sequence) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	return a.eng.Import(cfg, seq)
}

func (a *treeAdapter) export(s engine.Session) (thought.Sequence, error) {
	ts, err := sessionAs[*tot.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.Export(ts), nil
}

func (a *treeAdapter) iterate(ctx context.Context, s engine.Session) (any, error) {
	ts, err := sessionAs[*tot.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.RunIteration(ctx, ts)
}

func (a *treeAdapter) apply(_ context.Context, s engine.Session, req *OperationRequest) (any, error) {
	ts, err := sessionAs[*tot.Session](s)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case "create_node":
		if err := requireField("content", req.Content); err != nil {
			return nil, err
		}
		parent := req.ParentID
		if parent == "" {
			parent = ts.RootID
		}
		node, err := a.eng.CreateNode(ts, parent, req.Content)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: node.Clone()}, nil

	case "expand":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		children, err := a.eng.Expand(ts, req.NodeID, req.Contents...)
		if err != nil {
			return nil, err
		}
		copies := make([]*tot.Node, len(children))
		for i, c := range children {
			copies[i] = c.Clone()
		}
		return NodesResult{Nodes: copies}, nil

	case "evaluate":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		score, err := a.eng.Evaluate(ts, req.NodeID)
		if err != nil {
			return nil, err
		}
		return ScoreResult{ID: req.NodeID, Score: score}, nil

	case "select_next":
		if node := a.eng.SelectNext(ts); node != nil {
			return NodeResult{Node: node.Clone()}, nil
		}
		return NodeResult{}, nil

	case "prune":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		reason := req.Reason
		if reason == "" {
			reason = "pruned by caller"
		}
		if err := a.eng.Prune(ts, req.NodeID, reason); err != nil {
			return nil, err
		}
		node, err := ts.Node(req.NodeID)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: node.Clone()}, nil

	case "is_solution":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		ok, err := a.eng.IsSolution(ts, req.NodeID)
		if err != nil {
			return nil, err
		}
		return SolutionResult{NodeID: req.NodeID, Solution: ok}, nil

	case "best_path":
		ids := a.eng.BestPath(ts)
		return PathResult{NodeIDs: ids, Contents: ts.Contents(ids)}, nil
	}
	return nil, unsupported(a.pattern(), req.Operation)
}

func (a *treeAdapter) stats(s engine.Session) any {
	if ts, ok := s.(*tot.Session); ok {
		return ts.Stats
	}
	return nil
}

func (a *treeAdapter) counters(s engine.Session) counters {
	if ts, ok := s.(*tot.Session); ok {
		return counters{nodes: ts.Stats.NodesCreated}
	}
	return counters{}
}
