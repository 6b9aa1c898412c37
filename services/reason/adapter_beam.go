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
	"slices"

	"github.com/AleutianAI/AleutianReason/services/reason/beam"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

type beamAdapter struct {
	eng      *beam.Engine
	defaults beam.Config
}

// PathIDsResult lists path ids touched by an operation.
type PathIDsResult struct {
	PathIDs []string `json:"path_ids"`
}

// ScoresResult maps path ids to scores.
type ScoresResult struct {
	Scores map[string]float64 `json:"scores"`
}

// ConvergenceResult reports the stop decision.
type ConvergenceResult struct {
	Converged bool   `json:"converged"`
	Reason    string `json:"reason,omitempty"`
}

func (a *beamAdapter) pattern() engine.Pattern { return engine.PatternBeam }

func (a *beamAdapter) verbs() []string {
	return []string{"generate", "evaluate", "prune", "merge", "convergence", "best_path"}
}

func (a *beamAdapter) initialize(req *OperationRequest) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	if err := requireField("content", req.Content); err != nil {
		return nil, err
	}
	return a.eng.Initialize(cfg, req.Content)
}

func (a *beamAdapter) importSequence(req *OperationRequest, seq thought.Sequence) (engine.Session, error) {
	cfg, err := decodeConfig(a.defaults, req.Config)
	if err != nil {
		return nil, err
	}
	return a.eng.Import(cfg, seq)
}

func (a *beamAdapter) export(s engine.Session) (thought.Sequence, error) {
	bs, err := sessionAs[*beam.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.Export(bs), nil
}

func (a *beamAdapter) iterate(ctx context.Context, s engine.Session) (any, error) {
	bs, err := sessionAs[*beam.Session](s)
	if err != nil {
		return nil, err
	}
	return a.eng.RunIteration(ctx, bs)
}

func pathResult(s *beam.Session, p *beam.Path) PathResult {
	score := p.Score
	return PathResult{ID: p.ID, NodeIDs: slices.Clone(p.NodeIDs), Contents: s.Contents(p), Score: &score}
}

func (a *beamAdapter) apply(_ context.Context, s engine.Session, req *OperationRequest) (any, error) {
	bs, err := sessionAs[*beam.Session](s)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case "generate":
		created := a.eng.GenerateNextGeneration(bs)
		ids := make([]string, len(created))
		for i, p := range created {
			ids[i] = p.ID
		}
		return PathIDsResult{PathIDs: ids}, nil

	case "evaluate":
		return ScoresResult{Scores: a.eng.EvaluatePaths(bs)}, nil

	case "prune":
		return PathIDsResult{PathIDs: a.eng.PrunePaths(bs)}, nil

	case "merge":
		merged, err := a.eng.MergePaths(bs, req.NodeIDs)
		if err != nil {
			return nil, err
		}
		return pathResult(bs, merged), nil

	case "convergence":
		done, reason := a.eng.CheckConvergence(bs)
		return ConvergenceResult{Converged: done, Reason: reason}, nil

	case "best_path":
		best := a.eng.BestPath(bs)
		if best == nil {
			return PathResult{}, nil
		}
		return pathResult(bs, best), nil
	}
	return nil, unsupported(a.pattern(), req.Operation)
}

func (a *beamAdapter) stats(s engine.Session) any {
	if bs, ok := s.(*beam.Session); ok {
		return bs.Stats
	}
	return nil
}

func (a *beamAdapter) counters(s engine.Session) counters {
	if bs, ok := s.(*beam.Session); ok {
		return counters{nodes: bs.Stats.NodesCreated}
	}
	return counters{}
}
