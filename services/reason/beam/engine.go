// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package beam implements generation-based beam search over thought paths.
//
// Each generation extends every active path by BranchingFactor new nodes.
// Paths are scored by an aggregate of node scores plus a diversity bonus,
// pruned back to BeamWidth, and near-identical paths may be merged by a
// per-position majority vote.
package beam

import (
	"cmp"
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

var tracer = otel.Tracer("aleutian.reason.beam")

// Scorer assigns a local score in [0,1] to a new node.
type Scorer func(s *Session, n *Node) float64

// Generator produces the content of the i-th extension of path.
type Generator func(s *Session, path *Path, i int) string

// Engine runs beam operations against sessions passed in by the caller.
type Engine struct {
	score    Scorer
	generate Generator
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the default node scorer.
func WithScorer(fn Scorer) Option {
	return func(e *Engine) {
		if fn != nil {
			e.score = fn
		}
	}
}

// WithGenerator replaces the default content generator.
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

// New creates a beam engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		score:    RandomScore,
		generate: DefaultContent,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RandomScore is the default scorer: a draw in [0.4,1) nudged down for
// very short content.
func RandomScore(s *Session, n *Node) float64 {
	size := math.Min(1, float64(len(n.Content))/200)
	return 0.4 + 0.4*s.Rand().Float64() + 0.2*size
}

// DefaultContent labels extensions by generation and option number.
func DefaultContent(s *Session, p *Path, i int) string {
	last := ""
	if len(p.NodeIDs) > 0 {
		last = s.Nodes[p.NodeIDs[len(p.NodeIDs)-1]].Content
	}
	if len(last) > 80 {
		last = last[:80] + "..."
	}
	return fmt.Sprintf("Generation %d option %d after: %s", p.Generation+1, i+1, last)
}

// Initialize creates a session with one active single-node path.
func (e *Engine) Initialize(cfg Config, initial string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		Header: engine.NewHeader(e.now()),
		Config: cfg,
		Nodes:  make(map[string]*Node),
		Paths:  make(map[string]*Path),
		rng:    engine.NewRand(cfg.Seed),
	}
	root := e.newNode(s, initial, 1, 0)
	e.newPath(s, []string{root.ID}, PathActive)
	e.refreshStats(s)

	e.logger.Debug("beam session initialized",
		slog.String("session_id", s.ID),
		slog.Int("beam_width", cfg.BeamWidth),
		slog.Int("branching_factor", cfg.BranchingFactor),
	)
	return s, nil
}

func (e *Engine) newNode(s *Session, content string, generation int, parentCumulative float64) *Node {
	n := &Node{
		ID:         engine.NewID(),
		Content:    content,
		Generation: generation,
		PathIDs:    []string{},
	}
	n.Score = engine.Clamp01(e.score(s, n))
	n.CumulativeScore = parentCumulative + n.Score
	s.Nodes[n.ID] = n
	s.Stats.NodesCreated++
	return n
}

func (e *Engine) newPath(s *Session, nodeIDs []string, status PathStatus) *Path {
	p := &Path{
		ID:           engine.NewID(),
		NodeIDs:      nodeIDs,
		Generation:   len(nodeIDs),
		Status:       status,
		ScoreHistory: []float64{},
	}
	s.Paths[p.ID] = p
	s.PathOrder = append(s.PathOrder, p.ID)
	s.Stats.PathsCreated++
	for _, id := range nodeIDs {
		if n, ok := s.Nodes[id]; ok && !slices.Contains(n.PathIDs, p.ID) {
			n.PathIDs = append(n.PathIDs, p.ID)
		}
	}
	return p
}

// GenerateNextGeneration extends every active path.
//
// Each active path yields BranchingFactor new paths, each its parent's
// nodes plus one new node, and then becomes completed. Returns the new
// paths; nil when nothing was active.
func (e *Engine) GenerateNextGeneration(s *Session) []*Path {
	active := s.ActivePaths()
	if len(active) == 0 {
		return nil
	}

	created := make([]*Path, 0, len(active)*s.Config.BranchingFactor)
	for _, parent := range active {
		last := s.Nodes[parent.NodeIDs[len(parent.NodeIDs)-1]]
		for i := 0; i < s.Config.BranchingFactor; i++ {
			content := e.generate(s, parent, i)
			n := e.newNode(s, content, parent.Generation+1, last.CumulativeScore)
			ids := append(slices.Clone(parent.NodeIDs), n.ID)
			created = append(created, e.newPath(s, ids, PathActive))
		}
		parent.Status = PathCompleted
	}
	s.Stats.Generation++
	e.refreshStats(s)
	s.Touch(e.now())

	e.logger.Debug("beam generation created",
		slog.String("session_id", s.ID),
		slog.Int("generation", s.Stats.Generation),
		slog.Int("paths", len(created)),
	)
	return created
}

// aggregate combines node scores by the configured method.
func (e *Engine) aggregate(s *Session, p *Path) float64 {
	if len(p.NodeIDs) == 0 {
		return 0
	}
	scores := make([]float64, 0, len(p.NodeIDs))
	for _, id := range p.NodeIDs {
		if n, ok := s.Nodes[id]; ok {
			scores = append(scores, n.Score)
		}
	}
	if len(scores) == 0 {
		return 0
	}

	switch s.Config.ScoringMethod {
	case ScoringSum:
		total := 0.0
		for _, v := range scores {
			total += v
		}
		return total
	case ScoringMax:
		return slices.Max(scores)
	case ScoringWeighted:
		total, weights := 0.0, 0.0
		w := 1.0
		for i := len(scores) - 1; i >= 0; i-- {
			total += w * scores[i]
			weights += w
			w *= RecencyDecay
		}
		return total / weights
	default:
		total := 0.0
		for _, v := range scores {
			total += v
		}
		return total / float64(len(scores))
	}
}

// EvaluatePaths scores every active path.
//
// Description:
//
//	score = aggregate(node scores)
//	      + DiversityWeight * (1 - mean Jaccard similarity to other active paths)
//	      + LengthWeight * len(path)
//
//	A lone active path gets no diversity bonus. Scores are appended to each
//	path's history and the session best is updated when beaten. Callers
//	evaluate once per generation so the history holds one entry each.
//
// Outputs:
//
//	map[string]float64 - Score per active path id.
func (e *Engine) EvaluatePaths(s *Session) map[string]float64 {
	return e.scorePaths(s, true)
}

// scorePaths sets the score of every active path, appending to the score
// history only when record is set.
func (e *Engine) scorePaths(s *Session, record bool) map[string]float64 {
	active := s.ActivePaths()
	scores := make(map[string]float64, len(active))

	for _, p := range active {
		score := e.aggregate(s, p)
		if len(active) > 1 {
			sim := 0.0
			for _, other := range active {
				if other.ID != p.ID {
					sim += Jaccard(p, other)
				}
			}
			sim /= float64(len(active) - 1)
			score += s.Config.DiversityWeight * (1 - sim)
		}
		score += s.Config.LengthWeight * float64(len(p.NodeIDs))

		p.Score = score
		if record {
			p.ScoreHistory = append(p.ScoreHistory, score)
		}
		scores[p.ID] = score

		if s.Stats.BestGeneration == 0 || score > s.Stats.BestScore {
			s.Stats.BestScore = score
			s.Stats.BestGeneration = p.Generation
			s.BestPathID = p.ID
		}
	}
	e.refreshStats(s)
	return scores
}

// PrunePaths trims the active set to at most BeamWidth paths.
//
// Description:
//
//	No-op while the active count is within the beam. Otherwise paths are
//	re-scored and sorted by score (creation order breaks ties). The top
//	BeamWidth paths survive if they also clear the strategy floor: 0.3 for
//	absolute, the BeamWidth-th score for relative, 0.8x the mean for
//	adaptive. Losers are marked pruned and, unless RetainPruned is set,
//	deleted together with nodes no longer on any path.
//
// Outputs:
//
//	[]string - Ids of pruned paths.
func (e *Engine) PrunePaths(s *Session) []string {
	active := s.ActivePaths()
	width := s.Config.BeamWidth
	if len(active) <= width {
		return nil
	}

	e.scorePaths(s, false)
	ranked := slices.Clone(active)
	slices.SortStableFunc(ranked, func(a, b *Path) int {
		return cmp.Compare(b.Score, a.Score)
	})

	var floor float64
	switch s.Config.PruningStrategy {
	case PruneAbsolute:
		floor = AbsoluteThreshold
	case PruneAdaptive:
		mean := 0.0
		for _, p := range ranked {
			mean += p.Score
		}
		floor = AdaptiveFactor * mean / float64(len(ranked))
	default:
		floor = ranked[width-1].Score
	}

	var pruned []string
	for i, p := range ranked {
		if i < width && p.Score >= floor {
			continue
		}
		p.Status = PathPruned
		pruned = append(pruned, p.ID)
		s.Stats.PathsPruned++
		if !s.Config.RetainPruned {
			e.deletePath(s, p)
		}
	}
	e.refreshStats(s)
	s.Touch(e.now())

	e.logger.Debug("beam paths pruned",
		slog.String("session_id", s.ID),
		slog.Int("pruned", len(pruned)),
		slog.Int("remaining", s.Stats.ActivePaths),
		slog.Float64("floor", floor),
	)
	return pruned
}

func (e *Engine) deletePath(s *Session, p *Path) {
	for _, id := range p.NodeIDs {
		n, ok := s.Nodes[id]
		if !ok {
			continue
		}
		n.PathIDs = slices.DeleteFunc(n.PathIDs, func(pid string) bool { return pid == p.ID })
		if len(n.PathIDs) == 0 {
			delete(s.Nodes, id)
		}
	}
	delete(s.Paths, p.ID)
	s.PathOrder = slices.DeleteFunc(s.PathOrder, func(pid string) bool { return pid == p.ID })
	if s.BestPathID == p.ID {
		s.BestPathID = ""
		if best := e.BestPath(s); best != nil {
			s.BestPathID = best.ID
		}
	}
}

// MergePaths combines paths by majority vote at each position.
//
// Description:
//
//	For each index up to the longest input, the node id occurring most
//	often at that index wins; ties go to the earliest input. The new path
//	is active and scored with the mean of the inputs; the inputs become
//	merged.
//
// Outputs:
//
//	*Path - The merged path.
//	error - ErrInvalidMerge with fewer than two distinct paths,
//	        ErrPathNotFound for an unknown id. The session is unchanged
//	        on error.
func (e *Engine) MergePaths(s *Session, ids []string) (*Path, error) {
	var inputs []*Path
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		p, err := s.Path(id)
		if err != nil {
			return nil, err
		}
		seen[id] = true
		inputs = append(inputs, p)
	}
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct paths, got %d", ErrInvalidMerge, len(inputs))
	}

	maxLen := 0
	for _, p := range inputs {
		maxLen = max(maxLen, len(p.NodeIDs))
	}

	merged := make([]string, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		counts := map[string]int{}
		var order []string
		for _, p := range inputs {
			if i >= len(p.NodeIDs) {
				continue
			}
			id := p.NodeIDs[i]
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
		}
		winner := order[0]
		for _, id := range order[1:] {
			if counts[id] > counts[winner] {
				winner = id
			}
		}
		merged = append(merged, winner)
	}

	score := 0.0
	for _, p := range inputs {
		score += p.Score
		p.Status = PathMerged
	}
	out := e.newPath(s, merged, PathActive)
	out.Score = score / float64(len(inputs))
	s.Stats.Merges++
	e.refreshStats(s)
	s.Touch(e.now())
	return out, nil
}

// CheckConvergence reports whether the search should stop and why.
//
// Stops on max generations, best score at or above TargetScore, mean
// pairwise similarity of active paths at or above ConsensusThreshold,
// improvement across the last ImprovementWindow generation bests below
// MinImprovement, or no active paths.
func (e *Engine) CheckConvergence(s *Session) (bool, string) {
	active := s.ActivePaths()
	switch {
	case s.Stats.Generation >= s.Config.MaxGenerations:
		return true, "max generations reached"
	case s.Stats.BestGeneration > 0 && s.Stats.BestScore >= s.Config.TargetScore:
		return true, "target score reached"
	case len(active) == 0:
		return true, "no active paths"
	}

	if len(active) > 1 {
		sim, pairs := 0.0, 0
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				sim += Jaccard(active[i], active[j])
				pairs++
			}
		}
		if sim/float64(pairs) >= s.Config.ConsensusThreshold {
			return true, "consensus reached"
		}
	}

	if h := s.GenerationBest; len(h) >= ImprovementWindow {
		if h[len(h)-1]-h[len(h)-ImprovementWindow] < s.Config.MinImprovement {
			return true, "score improvement below threshold"
		}
	}
	return false, ""
}

// BestPath returns the highest scoring active or completed path, or nil.
//
// Ties prefer the longer path, then the earlier one.
func (e *Engine) BestPath(s *Session) *Path {
	var best *Path
	for _, id := range s.PathOrder {
		p := s.Paths[id]
		if p == nil || (p.Status != PathActive && p.Status != PathCompleted) {
			continue
		}
		if best == nil || p.Score > best.Score ||
			(p.Score == best.Score && len(p.NodeIDs) > len(best.NodeIDs)) {
			best = p
		}
	}
	return best
}

// IterationResult reports what one RunIteration call did.
type IterationResult struct {
	Iteration  int      `json:"iteration"`
	Generation int      `json:"generation"`
	Created    []string `json:"created,omitempty"`
	Pruned     []string `json:"pruned,omitempty"`
	Merged     []string `json:"merged,omitempty"`
	BestScore  float64  `json:"best_score"`
	Converged  bool     `json:"converged"`
	Reason     string   `json:"reason,omitempty"`
}

// RunIteration generates, evaluates, prunes and optionally merges one
// generation, then checks convergence.
//
// With merging enabled, each pair of active paths at or above
// MergeThreshold similarity is merged once per iteration.
func (e *Engine) RunIteration(ctx context.Context, s *Session) (IterationResult, error) {
	_, span := tracer.Start(ctx, "beam.Engine.RunIteration")
	defer span.End()

	s.Iteration++
	res := IterationResult{Iteration: s.Iteration}

	switch {
	case s.Stats.Generation >= s.Config.MaxGenerations:
		e.finish(s, &res, "max generations reached")
		return res, nil
	case len(s.ActivePaths()) == 0:
		e.finish(s, &res, "no active paths")
		return res, nil
	}

	for _, p := range e.GenerateNextGeneration(s) {
		res.Created = append(res.Created, p.ID)
	}
	e.EvaluatePaths(s)
	res.Pruned = e.PrunePaths(s)

	if s.Config.EnableMerging {
		used := map[string]bool{}
		active := s.ActivePaths()
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				a, b := active[i], active[j]
				if used[a.ID] || used[b.ID] || Jaccard(a, b) < s.Config.MergeThreshold {
					continue
				}
				merged, err := e.MergePaths(s, []string{a.ID, b.ID})
				if err != nil {
					return res, err
				}
				used[a.ID], used[b.ID] = true, true
				res.Merged = append(res.Merged, merged.ID)
			}
		}
		if len(res.Merged) > 0 {
			e.scorePaths(s, false)
		}
	}

	genBest := 0.0
	for _, p := range s.ActivePaths() {
		genBest = math.Max(genBest, p.Score)
	}
	s.GenerationBest = append(s.GenerationBest, genBest)
	res.Generation = s.Stats.Generation
	res.BestScore = s.Stats.BestScore
	s.Touch(e.now())

	if done, reason := e.CheckConvergence(s); done {
		e.finish(s, &res, reason)
	}

	span.SetAttributes(
		attribute.String("session_id", s.ID),
		attribute.Int("generation", s.Stats.Generation),
		attribute.Int("active_paths", s.Stats.ActivePaths),
		attribute.Bool("converged", res.Converged),
	)
	return res, nil
}

func (e *Engine) finish(s *Session, res *IterationResult, reason string) {
	res.Converged = true
	res.Reason = reason
	res.Generation = s.Stats.Generation
	res.BestScore = s.Stats.BestScore
	if s.NeedsMoreWork {
		e.logger.Info("beam search converged",
			slog.String("session_id", s.ID),
			slog.String("reason", reason),
			slog.Int("generations", s.Stats.Generation),
			slog.Float64("best_score", s.Stats.BestScore),
		)
	}
	s.NeedsMoreWork = false
}

func (e *Engine) refreshStats(s *Session) {
	active := s.ActivePaths()
	s.Stats.ActivePaths = len(active)
	s.Stats.AverageScore = 0
	if len(active) > 0 {
		total := 0.0
		for _, p := range active {
			total += p.Score
		}
		s.Stats.AverageScore = total / float64(len(active))
	}
}
