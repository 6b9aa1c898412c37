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
	"maps"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/got"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

type graphAdapter struct {
	eng      *got.Engine
	defaults got.Config
}

// EdgeResult wraps a newly created edge.
type EdgeResult struct {
	Edge *got.Edge `json:"edge"`
}

// PathsResult lists the simple paths between two nodes.
type PathsResult struct {
	Paths [][]string `json:"paths"`
	Count int        `json:"count"`
}

// NeighborsResult lists adjacent node ids.
type NeighborsResult struct {
	NodeID    string   `json:"node_id"`
	Direction string   `json:"direction"`
	Neighbors []string `json:"neighbors"`
}

func (a *graphAdapter) pattern() engine.Pattern { return engine.PatternGraph }

func (a *graphAdapter) verbs() []string {
	return []string{"add_node", "connect", "find_paths", "neighbors", "centrality", "communities", "contradictions", "merge"}
}

// initialize creates an empty graph, seeded with one node when content is
// given.
func (a *graphAdapter) initialize(req *OperationRequest) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	gs, err := a.eng.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	if req.Content != "" {
		if _, err := a.addNode(gs, req); err != nil {
			return nil, err
		}
	}
	return gs, nil
}

func (a *graphAdapter) importSequence(req *OperationRequest, seq thought.Sequence) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	return a.eng.Import(cfg, seq)
}

func (a *graphAdapter) export(s engine.Session) (thought.Sequence, error) {
	gs, err := sessionAs[*got.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.Export(gs), nil
}

func (a *graphAdapter) iterate(ctx context.Context, s engine.Session) (any, error) {
	gs, err := sessionAs[*got.Session](s)
	if err != nil {
		return nil, err
	}
	analysis, err := a.eng.RunIteration(ctx, gs)
	if err != nil {
		return nil, err
	}
	return analysis.Clone(), nil
}

func (a *graphAdapter) addNode(gs *got.Session, req *OperationRequest) (*got.Node, error) {
	typ := got.NodeHypothesis
	if req.Type != "" {
		typ = got.NodeType(req.Type)
	}
	strength := got.DefaultStrength
	if req.Strength != nil {
		strength = *req.Strength
	}
	return a.eng.AddNode(gs, req.Content, typ, strength)
}

func (a *graphAdapter) apply(ctx context.Context, s engine.Session, req *OperationRequest) (any, error) {
	gs, err := sessionAs[*got.Session](s)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case "add_node":
		if err := requireField("content", req.Content); err != nil {
			return nil, err
		}
		node, err := a.addNode(gs, req)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: node.Clone()}, nil

	case "connect":
		if err := requireField("source", req.Source); err != nil {
			return nil, err
		}
		if err := requireField("target", req.Target); err != nil {
			return nil, err
		}
		typ := got.EdgeSupports
		if req.Type != "" {
			typ = got.EdgeType(req.Type)
		}
		weight := got.DefaultStrength
		if req.Weight != nil {
			weight = *req.Weight
		}
		edge, err := a.eng.Connect(gs, req.Source, req.Target, typ, weight)
		if err != nil {
			return nil, err
		}
		copied := *edge
		return EdgeResult{Edge: &copied}, nil

	case "find_paths":
		if err := requireField("source", req.Source); err != nil {
			return nil, err
		}
		if err := requireField("target", req.Target); err != nil {
			return nil, err
		}
		paths, err := a.eng.FindPaths(gs, req.Source, req.Target, req.MaxPaths)
		if err != nil {
			return nil, err
		}
		return PathsResult{Paths: paths, Count: len(paths)}, nil

	case "neighbors":
		if err := requireField("node_id", req.NodeID); err != nil {
			return nil, err
		}
		dir := got.DirectionBoth
		if req.Direction != "" {
			dir = got.Direction(req.Direction)
		}
		ids, err := a.eng.Neighbors(gs, req.NodeID, dir)
		if err != nil {
			return nil, err
		}
		return NeighborsResult{NodeID: req.NodeID, Direction: string(dir), Neighbors: ids}, nil

	case "centrality":
		return maps.Clone(a.eng.CalculateCentrality(ctx, gs)), nil

	case "communities":
		return got.CloneCommunities(a.eng.DetectCommunities(ctx, gs)), nil

	case "contradictions":
		return got.CloneContradictions(a.eng.FindContradictions(gs)), nil

	case "merge":
		node, err := a.eng.MergeNodes(gs, req.NodeIDs, req.Content)
		if err != nil {
			return nil, err
		}
		return NodeResult{Node: node.Clone()}, nil
	}
	return nil, unsupported(a.pattern(), req.Operation)
}

func (a *graphAdapter) stats(s engine.Session) any {
	if gs, ok := s.(*got.Session); ok {
		return gs.Stats.Clone()
	}
	return nil
}

// counters reports the node count. Merges shrink it, so the service only
// records positive differences.
func (a *graphAdapter) counters(s engine.Session) counters {
	if gs, ok := s.(*got.Session); ok {
		return counters{nodes: len(gs.Nodes)}
	}
	return counters{}
}
