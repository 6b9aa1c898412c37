// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package got implements Graph-of-Thought reasoning.
//
// Thoughts are typed nodes joined by typed, weighted, directed edges. The
// graph may be cyclic unless the session forbids it. Analysis covers
// PageRank centrality, connected communities, contradiction and circular
// reasoning detection, and node merging.
//
// Nodes and edges live in flat tables addressed by id, so cycles are plain
// data. Every rejected mutation leaves the session unchanged.
package got

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var tracer = otel.Tracer("aleutian.reason.got")

// DefaultMaxPaths caps FindPaths when the caller passes no limit.
const DefaultMaxPaths = 10

// Engine runs graph operations against sessions passed in by the caller.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

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

// New creates a graph engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize creates an empty graph session.
func (e *Engine) Initialize(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		Header: engine.NewHeader(e.now()),
		Config: cfg,
		Nodes:  make(map[string]*Node),
		Edges:  make(map[string]*Edge),
	}
	e.refreshStats(s)
	e.logger.Debug("graph session initialized",
		slog.String("session_id", s.ID),
		slog.Bool("allow_cycles", cfg.AllowCycles),
	)
	return s, nil
}

// AddNode inserts a typed thought.
//
// Outputs:
//
//	*Node - The new node.
//	error - ErrNodeLimit, ErrInvalidType or ErrInvalidRange.
func (e *Engine) AddNode(s *Session, content string, typ NodeType, strength float64) (*Node, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: node type %q", ErrInvalidType, typ)
	}
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("%w: strength %f", ErrInvalidRange, strength)
	}
	if len(s.Nodes) >= s.Config.MaxNodes {
		return nil, fmt.Errorf("%w: %d", ErrNodeLimit, s.Config.MaxNodes)
	}
	n := e.insertNode(s, content, typ, strength)
	e.mutated(s)
	return n, nil
}

func (e *Engine) insertNode(s *Session, content string, typ NodeType, strength float64) *Node {
	n := &Node{
		ID:       engine.NewID(),
		Content:  content,
		Type:     typ,
		Strength: strength,
		Incoming: []string{},
		Outgoing: []string{},
	}
	s.Nodes[n.ID] = n
	s.NodeOrder = append(s.NodeOrder, n.ID)
	return n
}

// Connect adds a directed edge from source to target.
//
// Description:
//
//	When AllowCycles is false, a self loop or an edge whose target can
//	already reach its source is rejected with ErrCycle.
//
// Outputs:
//
//	*Edge - The new edge.
//	error - ErrNodeNotFound, ErrEdgeLimit, ErrCycle, ErrInvalidType or
//	        ErrInvalidRange. The session is unchanged on error.
func (e *Engine) Connect(s *Session, source, target string, typ EdgeType, weight float64) (*Edge, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: edge type %q", ErrInvalidType, typ)
	}
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: weight %f", ErrInvalidRange, weight)
	}
	if _, err := s.Node(source); err != nil {
		return nil, fmt.Errorf("connect source: %w", err)
	}
	if _, err := s.Node(target); err != nil {
		return nil, fmt.Errorf("connect target: %w", err)
	}
	if len(s.Edges) >= s.Config.MaxEdges {
		return nil, fmt.Errorf("%w: %d", ErrEdgeLimit, s.Config.MaxEdges)
	}
	if !s.Config.AllowCycles && s.reachable(target, source) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCycle, source, target)
	}

	edge := e.insertEdge(s, source, target, typ, weight)
	e.mutated(s)
	return edge, nil
}

func (e *Engine) insertEdge(s *Session, source, target string, typ EdgeType, weight float64) *Edge {
	edge := &Edge{
		ID:     engine.NewID(),
		Source: source,
		Target: target,
		Type:   typ,
		Weight: weight,
	}
	s.Edges[edge.ID] = edge
	s.EdgeOrder = append(s.EdgeOrder, edge.ID)
	s.Nodes[source].Outgoing = append(s.Nodes[source].Outgoing, edge.ID)
	s.Nodes[target].Incoming = append(s.Nodes[target].Incoming, edge.ID)
	return edge
}

func (e *Engine) deleteEdge(s *Session, id string) {
	edge, ok := s.Edges[id]
	if !ok {
		return
	}
	if src, ok := s.Nodes[edge.Source]; ok {
		src.Outgoing = removeID(src.Outgoing, id)
	}
	if dst, ok := s.Nodes[edge.Target]; ok {
		dst.Incoming = removeID(dst.Incoming, id)
	}
	delete(s.Edges, id)
	s.EdgeOrder = removeID(s.EdgeOrder, id)
}

// mutated invalidates analysis results after a structural change.
func (e *Engine) mutated(s *Session) {
	s.Metrics = Metrics{}
	e.refreshStats(s)
	s.Touch(e.now())
}

// FindPaths enumerates simple directed paths from start to end.
//
// Paths are found depth first following edges in insertion order and are
// capped at maxPaths (DefaultMaxPaths when maxPaths <= 0).
func (e *Engine) FindPaths(s *Session, start, end string, maxPaths int) ([][]string, error) {
	if _, err := s.Node(start); err != nil {
		return nil, err
	}
	if _, err := s.Node(end); err != nil {
		return nil, err
	}
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	var paths [][]string
	onPath := map[string]bool{}
	var path []string

	var walk func(id string)
	walk = func(id string) {
		if len(paths) >= maxPaths {
			return
		}
		path = append(path, id)
		onPath[id] = true
		defer func() {
			path = path[:len(path)-1]
			onPath[id] = false
		}()

		if id == end {
			paths = append(paths, append([]string(nil), path...))
			return
		}
		for _, next := range s.successors(id) {
			if !onPath[next] {
				walk(next)
			}
		}
	}
	walk(start)
	return paths, nil
}

// Neighbors returns the distinct ids one hop away in the given direction.
func (e *Engine) Neighbors(s *Session, nodeID string, dir Direction) ([]string, error) {
	n, err := s.Node(nodeID)
	if err != nil {
		return nil, err
	}

	var edgeIDs []string
	switch dir {
	case DirectionOut:
		edgeIDs = n.Outgoing
	case DirectionIn:
		edgeIDs = n.Incoming
	case DirectionBoth, "":
		edgeIDs = append(append([]string{}, n.Outgoing...), n.Incoming...)
	default:
		return nil, fmt.Errorf("%w: direction %q", engine.ErrInvalidOperation, dir)
	}

	seen := map[string]bool{}
	out := []string{}
	for _, eid := range edgeIDs {
		edge, ok := s.Edges[eid]
		if !ok {
			continue
		}
		other := edge.Target
		if edge.Target == nodeID {
			other = edge.Source
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out, nil
}

// MergeNodes replaces several nodes with one.
//
// Description:
//
//	The merged node takes the first input's type, the mean strength and,
//	unless content is given, the inputs' contents joined with " | ".
//	Edges touching exactly one input are re-created against the merged
//	node; edges between inputs are dropped. Duplicate re-created edges of
//	the same type and direction collapse to the heaviest one. Inputs and
//	their edges are removed.
//
// Outputs:
//
//	*Node - The merged node.
//	error - ErrInvalidMerge for fewer than two distinct existing ids, or
//	        ErrCycle when the result would be cyclic while cycles are
//	        disallowed. The session is unchanged on error.
func (e *Engine) MergeNodes(s *Session, ids []string, content string) (*Node, error) {
	inputs := make([]*Node, 0, len(ids))
	merging := map[string]bool{}
	for _, id := range ids {
		if merging[id] {
			continue
		}
		n, ok := s.Nodes[id]
		if !ok {
			return nil, fmt.Errorf("%w: node %s not found", ErrInvalidMerge, id)
		}
		merging[id] = true
		inputs = append(inputs, n)
	}
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct nodes, got %d", ErrInvalidMerge, len(inputs))
	}

	type rewired struct {
		source, target string
		typ            EdgeType
		weight         float64
	}
	const mergedID = ""
	var touched []string
	var planned []rewired
	index := map[string]int{}
	for _, eid := range s.EdgeOrder {
		edge := s.Edges[eid]
		srcIn, dstIn := merging[edge.Source], merging[edge.Target]
		if !srcIn && !dstIn {
			continue
		}
		touched = append(touched, eid)
		if srcIn && dstIn {
			continue
		}
		r := rewired{source: edge.Source, target: edge.Target, typ: edge.Type, weight: edge.Weight}
		if srcIn {
			r.source = mergedID
		} else {
			r.target = mergedID
		}
		key := r.source + "\x00" + r.target + "\x00" + string(r.typ)
		if i, ok := index[key]; ok {
			planned[i].weight = max(planned[i].weight, r.weight)
			continue
		}
		index[key] = len(planned)
		planned = append(planned, r)
	}

	if !s.Config.AllowCycles {
		adj := map[string][]string{}
		for _, eid := range s.EdgeOrder {
			edge := s.Edges[eid]
			if merging[edge.Source] || merging[edge.Target] {
				continue
			}
			adj[edge.Source] = append(adj[edge.Source], edge.Target)
		}
		for _, r := range planned {
			adj[r.source] = append(adj[r.source], r.target)
		}
		if hasCycle(adj) {
			return nil, fmt.Errorf("%w: merging %d nodes", ErrCycle, len(inputs))
		}
	}

	contents := make([]string, len(inputs))
	strength := 0.0
	for i, n := range inputs {
		contents[i] = n.Content
		strength += n.Strength
	}
	if content == "" {
		content = strings.Join(contents, " | ")
	}

	for _, eid := range touched {
		e.deleteEdge(s, eid)
	}
	for _, n := range inputs {
		delete(s.Nodes, n.ID)
		s.NodeOrder = removeID(s.NodeOrder, n.ID)
	}
	merged := e.insertNode(s, content, inputs[0].Type, strength/float64(len(inputs)))
	for _, r := range planned {
		src, dst := r.source, r.target
		if src == mergedID {
			src = merged.ID
		}
		if dst == mergedID {
			dst = merged.ID
		}
		e.insertEdge(s, src, dst, r.typ, r.weight)
	}
	s.Stats.Merges++
	e.mutated(s)

	e.logger.Debug("graph nodes merged",
		slog.String("session_id", s.ID),
		slog.String("merged_id", merged.ID),
		slog.Int("inputs", len(inputs)),
		slog.Int("edges_rewired", len(planned)),
	)
	return merged, nil
}

// hasCycle reports whether the adjacency lists contain a directed cycle.
func hasCycle(adj map[string][]string) bool {
	const (
		unseen = iota
		inStack
		done
	)
	state := map[string]int{}
	var visit func(string) bool
	visit = func(id string) bool {
		state[id] = inStack
		for _, next := range adj[id] {
			switch state[next] {
			case inStack:
				return true
			case unseen:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}
	for id := range adj {
		if state[id] == unseen && visit(id) {
			return true
		}
	}
	return false
}

func (e *Engine) refreshStats(s *Session) {
	st := &s.Stats
	st.NodeCount = len(s.Nodes)
	st.EdgeCount = len(s.Edges)
	st.NodesByType = map[NodeType]int{}
	st.EdgesByType = map[EdgeType]int{}
	for _, n := range s.Nodes {
		st.NodesByType[n.Type]++
	}
	for _, edge := range s.Edges {
		st.EdgesByType[edge.Type]++
	}
	st.Density, st.AverageDegree = 0, 0
	if st.NodeCount > 1 {
		st.Density = float64(st.EdgeCount) / float64(st.NodeCount*(st.NodeCount-1))
	}
	if st.NodeCount > 0 {
		st.AverageDegree = 2 * float64(st.EdgeCount) / float64(st.NodeCount)
	}
	st.OpenQuestions = len(openQuestions(s))
	st.Contradictions = len(s.Metrics.Contradictions)
}

// openQuestions returns question nodes with no outgoing edges.
func openQuestions(s *Session) []string {
	var out []string
	for _, id := range s.NodeOrder {
		n := s.Nodes[id]
		if n.Type == NodeQuestion && len(n.Outgoing) == 0 {
			out = append(out, id)
		}
	}
	return out
}
