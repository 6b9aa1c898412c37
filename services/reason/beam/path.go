// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package beam

import (
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var (
	ErrPathNotFound = fmt.Errorf("beam path %w", engine.ErrNotFound)

	// ErrInvalidMerge is returned for a merge with fewer than two paths.
	ErrInvalidMerge = fmt.Errorf("%w: invalid path merge", engine.ErrInvalidOperation)
)

// PathStatus is the lifecycle state of a path.
type PathStatus string

const (
	PathActive    PathStatus = "active"
	PathCompleted PathStatus = "completed"
	PathPruned    PathStatus = "pruned"
	PathMerged    PathStatus = "merged"
)

// Node is one thought in the beam. PathIDs lists the paths containing it.
type Node struct {
	ID              string   `json:"id"`
	Content         string   `json:"content"`
	Generation      int      `json:"generation"`
	Score           float64  `json:"score"`
	CumulativeScore float64  `json:"cumulative_score"`
	PathIDs         []string `json:"path_ids"`
}

// Path is an ordered candidate chain of thoughts.
//
// Generation always equals len(NodeIDs).
type Path struct {
	ID           string     `json:"id"`
	NodeIDs      []string   `json:"node_ids"`
	Generation   int        `json:"generation"`
	Score        float64    `json:"score"`
	Status       PathStatus `json:"status"`
	ScoreHistory []float64  `json:"score_history"`
}

// Stats summarizes a beam session.
type Stats struct {
	Generation     int     `json:"generation"`
	NodesCreated   int     `json:"nodes_created"`
	PathsCreated   int     `json:"paths_created"`
	PathsPruned    int     `json:"paths_pruned"`
	Merges         int     `json:"merges"`
	ActivePaths    int     `json:"active_paths"`
	BestScore      float64 `json:"best_score"`
	BestGeneration int     `json:"best_generation"`
	AverageScore   float64 `json:"average_score"`
}

// Session is the mutable state of one beam search.
type Session struct {
	engine.Header
	Config         Config           `json:"config"`
	Stats          Stats            `json:"stats"`
	Nodes          map[string]*Node `json:"nodes"`
	Paths          map[string]*Path `json:"paths"`
	PathOrder      []string         `json:"path_order"`
	BestPathID     string           `json:"best_path_id,omitempty"`
	GenerationBest []float64        `json:"generation_best"`

	rng *rand.Rand
}

// SessionHeader implements engine.Session.
func (s *Session) SessionHeader() *engine.Header { return &s.Header }

// Rand returns the session random source.
func (s *Session) Rand() *rand.Rand { return s.rng }

// Path returns the path with the given id.
func (s *Session) Path(id string) (*Path, error) {
	p, ok := s.Paths[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, id)
	}
	return p, nil
}

// ActivePaths returns active paths in creation order.
func (s *Session) ActivePaths() []*Path {
	var out []*Path
	for _, id := range s.PathOrder {
		if p := s.Paths[id]; p != nil && p.Status == PathActive {
			out = append(out, p)
		}
	}
	return out
}

// Contents maps a path to its node contents.
func (s *Session) Contents(p *Path) []string {
	out := make([]string, 0, len(p.NodeIDs))
	for _, id := range p.NodeIDs {
		if n, ok := s.Nodes[id]; ok {
			out = append(out, n.Content)
		}
	}
	return out
}

// Jaccard returns |A∩B| / |A∪B| over the node id sets of two paths.
func Jaccard(a, b *Path) float64 {
	setA := make(map[string]struct{}, len(a.NodeIDs))
	for _, id := range a.NodeIDs {
		setA[id] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b.NodeIDs))
	for _, id := range b.NodeIDs {
		setB[id] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for id := range setA {
		if _, ok := setB[id]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
