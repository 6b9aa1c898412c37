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
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianReason/services/reason/beam"
	"github.com/AleutianAI/AleutianReason/services/reason/config"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/got"
	"github.com/AleutianAI/AleutianReason/services/reason/mcts"
	"github.com/AleutianAI/AleutianReason/services/reason/session"
	"github.com/AleutianAI/AleutianReason/services/reason/telemetry"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
	"github.com/AleutianAI/AleutianReason/services/reason/tot"
)

const tracerName = "aleutian.reason.service"

// Service routes operation requests to the reasoning engines.
//
// Description:
//
//	Sessions live in a session.Store and every operation on one session is
//	serialized through it. The service also owns a sequential thinking log
//	that import reads from when a request names a source session.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	store    *session.Store
	thoughts *thought.Log
	source   thought.Source
	adapters map[engine.Pattern]adapter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	tree  *tot.Engine
	graph *got.Engine
	beam  *beam.Engine
	mcts  *mcts.Engine

	storeOpts []session.Option
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Engines built by the service share it.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records operation metrics. Nil disables them.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithThoughtSource replaces the source import reads from. RecordThought
// still writes to the service's own log.
func WithThoughtSource(src thought.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithClock sets the time source for the session store and latencies.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.storeOpts = append(s.storeOpts, session.WithClock(now))
		}
	}
}

// WithTreeEngine replaces the Tree-of-Thought engine.
func WithTreeEngine(e *tot.Engine) Option { return func(s *Service) { s.tree = e } }

// WithGraphEngine replaces the Graph-of-Thought engine.
func WithGraphEngine(e *got.Engine) Option { return func(s *Service) { s.graph = e } }

// WithBeamEngine replaces the beam search engine.
func WithBeamEngine(e *beam.Engine) Option { return func(s *Service) { s.beam = e } }

// WithMCTSEngine replaces the MCTS engine.
func WithMCTSEngine(e *mcts.Engine) Option { return func(s *Service) { s.mcts = e } }

// NewService builds a service from cfg.
//
// Inputs:
//
//	cfg - Engine defaults and session limits. Only the Sessions and
//	      engine sections are read.
//	opts - Optional overrides.
//
// Outputs:
//
//	*Service - Ready to use.
func NewService(cfg config.Config, opts ...Option) *Service {
	s := &Service{
		thoughts: thought.NewLog(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	s.source = s.thoughts
	for _, opt := range opts {
		opt(s)
	}

	if s.tree == nil {
		s.tree = tot.New(tot.WithLogger(s.logger))
	}
	if s.graph == nil {
		s.graph = got.New(got.WithLogger(s.logger))
	}
	if s.beam == nil {
		s.beam = beam.New(beam.WithLogger(s.logger))
	}
	if s.mcts == nil {
		s.mcts = mcts.New(mcts.WithLogger(s.logger))
	}

	s.adapters = map[engine.Pattern]adapter{
		engine.PatternTree:  &treeAdapter{eng: s.tree, defaults: cfg.Tree},
		engine.PatternGraph: &graphAdapter{eng: s.graph, defaults: cfg.Graph},
		engine.PatternBeam:  &beamAdapter{eng: s.beam, defaults: cfg.Beam},
		engine.PatternMCTS:  &mctsAdapter{eng: s.mcts, defaults: cfg.MCTS},
	}

	storeOpts := append([]session.Option{
		session.WithTTL(cfg.Sessions.TTL.Std()),
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithLogger(s.logger),
		session.WithEvictHook(s.sessionClosed),
	}, s.storeOpts...)
	s.store = session.New(storeOpts...)
	return s
}

func (s *Service) sessionClosed(id string, pattern engine.Pattern) {
	s.metrics.SessionClosed(context.Background(), string(pattern))
	s.logger.Debug("session closed",
		slog.String("session_id", id),
		slog.String("pattern", string(pattern)),
	)
}

// Execute runs one operation against a pattern.
//
// Description:
//
//	init and import create a session. Every other operation needs the
//	session_id of a live session of the same pattern. iterate runs up to
//	Iterations engine iterations (at least one) and stops early once the
//	session no longer needs more work, except for MCTS, which always runs
//	the full batch.
//
// Outputs:
//
//	OperationResponse - Session state after the operation.
//	error - Classified by engine.KindOf.
//
// Thread Safety: Safe for concurrent use.
func (s *Service) Execute(ctx context.Context, patternName string, req OperationRequest) (resp OperationResponse, err error) {
	start := s.now()
	req.Operation = strings.ToLower(strings.TrimSpace(req.Operation))
	opLabel := "unknown"

	ctx, span := telemetry.StartSpan(ctx, tracerName, "reason.Service.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("reason.pattern", patternName),
		attribute.String("reason.operation", req.Operation),
		attribute.String("reason.session_id", req.SessionID),
	)

	defer func() {
		code := engine.KindOf(err).String()
		s.metrics.RecordOperation(ctx, patternName, opLabel, code, s.now().Sub(start))
		if err != nil {
			telemetry.RecordError(span, err, attribute.String("reason.code", code))
			s.logger.DebugContext(ctx, "operation failed",
				slog.String("pattern", patternName),
				slog.String("operation", req.Operation),
				slog.String("session_id", req.SessionID),
				slog.String("code", code),
				slog.String("error", err.Error()),
			)
		}
	}()

	pattern, err := engine.ParsePattern(patternName)
	if err != nil {
		patternName = "unknown"
		return resp, err
	}
	patternName = string(pattern)
	if err := validate.Struct(req); err != nil {
		return resp, fmt.Errorf("%w: %v", engine.ErrInvalidOperation, err)
	}

	a := s.adapters[pattern]
	if !slices.Contains(operations(a), req.Operation) {
		return resp, unsupported(pattern, req.Operation)
	}
	opLabel = req.Operation

	switch req.Operation {
	case OpInit:
		return s.create(ctx, a, &req, func() (engine.Session, error) {
			return a.initialize(&req)
		})
	case OpImport:
		seq, err := s.resolveSequence(ctx, &req)
		if err != nil {
			return resp, err
		}
		return s.create(ctx, a, &req, func() (engine.Session, error) {
			return a.importSequence(&req, seq)
		})
	default:
		return s.operate(ctx, a, &req)
	}
}

// resolveSequence returns the inline thoughts, or the thoughts recorded
// under SourceSessionID.
func (s *Service) resolveSequence(ctx context.Context, req *OperationRequest) (thought.Sequence, error) {
	switch {
	case len(req.Thoughts) > 0 && req.SourceSessionID != "":
		return nil, fmt.Errorf("%w: thoughts and source_session_id are exclusive", engine.ErrInvalidOperation)
	case len(req.Thoughts) > 0:
		return thought.Sequence(req.Thoughts), nil
	case req.SourceSessionID != "":
		seq, err := s.source.Thoughts(ctx, req.SourceSessionID)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceSessionID, err)
		}
		return seq, nil
	}
	return nil, fmt.Errorf("%w: import needs thoughts or source_session_id", engine.ErrInvalidOperation)
}

// create stores a new session. With a caller-chosen id, init is idempotent
// and import into an existing id fails.
func (s *Service) create(ctx context.Context, a adapter, req *OperationRequest, build session.BuildFunc) (OperationResponse, error) {
	var (
		info    session.Info
		created = true
		err     error
	)
	if req.SessionID != "" {
		info, created, err = s.store.GetOrCreate(req.SessionID, a.pattern(), build)
		if err == nil && !created && req.Operation == OpImport {
			err = fmt.Errorf("%w: session %s already exists", engine.ErrInvalidOperation, info.ID)
		}
	} else {
		info, err = s.store.Create(a.pattern(), build)
	}
	if err != nil {
		return OperationResponse{}, err
	}

	if created {
		s.metrics.SessionOpened(ctx, string(a.pattern()))
		s.logger.InfoContext(ctx, "session created",
			slog.String("session_id", info.ID),
			slog.String("pattern", string(a.pattern())),
			slog.String("operation", req.Operation),
		)
	}

	var resp OperationResponse
	err = s.store.With(info.ID, func(sess engine.Session) error {
		if created {
			s.metrics.AddNodes(ctx, string(a.pattern()), a.counters(sess).nodes)
		}
		resp = s.respond(a, req, sess, CreatedResult{Created: created})
		return nil
	})
	return resp, err
}

// operate runs a non-creating operation under the session lock.
func (s *Service) operate(ctx context.Context, a adapter, req *OperationRequest) (OperationResponse, error) {
	if err := requireField("session_id", req.SessionID); err != nil {
		return OperationResponse{}, err
	}
	info, err := s.store.Get(req.SessionID)
	if err != nil {
		return OperationResponse{}, err
	}
	if info.Pattern != a.pattern() {
		return OperationResponse{}, fmt.Errorf("%w: session %s is %s, not %s",
			session.ErrPatternMismatch, info.ID, info.Pattern, a.pattern())
	}

	var resp OperationResponse
	err = s.store.With(info.ID, func(sess engine.Session) error {
		before := a.counters(sess)

		var (
			result any
			seq    thought.Sequence
			err    error
		)
		switch req.Operation {
		case OpExport:
			seq, err = a.export(sess)
		case OpIterate:
			result, err = s.iterate(ctx, a, sess, req.Iterations)
		default:
			result, err = a.apply(ctx, sess, req)
		}
		s.recordDeltas(ctx, a.pattern(), before, a.counters(sess))
		if err != nil {
			return err
		}

		resp = s.respond(a, req, sess, result)
		resp.Sequence = seq
		return nil
	})
	return resp, err
}

func (s *Service) iterate(ctx context.Context, a adapter, sess engine.Session, n int) (IterateResult, error) {
	n = max(1, n)
	res := IterateResult{Results: make([]any, 0, min(n, 64))}
	for i := range n {
		if i > 0 && a.pattern() != engine.PatternMCTS && !sess.SessionHeader().NeedsMoreWork {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := a.iterate(ctx, sess)
		if err != nil {
			return res, err
		}
		res.Ran++
		res.Results = append(res.Results, r)
	}
	s.metrics.AddIterations(ctx, string(a.pattern()), res.Ran)
	return res, nil
}

func (s *Service) recordDeltas(ctx context.Context, p engine.Pattern, before, after counters) {
	if d := after.nodes - before.nodes; d > 0 {
		s.metrics.AddNodes(ctx, string(p), d)
	}
	if d := after.simulations - before.simulations; d > 0 {
		s.metrics.AddSimulations(ctx, d)
	}
}

func (s *Service) respond(a adapter, req *OperationRequest, sess engine.Session, result any) OperationResponse {
	h := sess.SessionHeader()
	return OperationResponse{
		Status:        "ok",
		SessionID:     h.ID,
		Pattern:       a.pattern(),
		Operation:     req.Operation,
		Iteration:     h.Iteration,
		Simulations:   a.counters(sess).simulations,
		NeedsMoreWork: h.NeedsMoreWork,
		Stats:         a.stats(sess),
		Result:        result,
	}
}

// Export returns a live session's interchange sequence.
func (s *Service) Export(ctx context.Context, id string) (ExportResponse, error) {
	info, err := s.store.Get(id)
	if err != nil {
		return ExportResponse{}, err
	}
	resp, err := s.Execute(ctx, string(info.Pattern), OperationRequest{Operation: OpExport, SessionID: id})
	if err != nil {
		return ExportResponse{}, err
	}
	return ExportResponse{SessionID: resp.SessionID, Pattern: resp.Pattern, Sequence: resp.Sequence}, nil
}

// Delete removes a session.
func (s *Service) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Info("session deleted", slog.String("session_id", id))
	return nil
}

// Sessions lists live sessions, oldest first.
func (s *Service) Sessions() SessionsResponse {
	list := s.store.List()
	return SessionsResponse{Sessions: list, Count: len(list)}
}

// Session returns one live session's summary.
func (s *Service) Session(id string) (session.Info, error) {
	return s.store.Get(id)
}

// Patterns describes every engine and its operations.
func (s *Service) Patterns() []PatternInfo {
	out := make([]PatternInfo, 0, len(s.adapters))
	for _, p := range engine.Patterns() {
		if a, ok := s.adapters[p]; ok {
			out = append(out, PatternInfo{Pattern: p, Operations: operations(a)})
		}
	}
	return out
}

// RecordThought appends one record to the sequential thinking log under
// sessionID.
func (s *Service) RecordThought(sessionID string, req RecordThoughtRequest) (RecordThoughtResponse, error) {
	if err := validate.Struct(req); err != nil {
		return RecordThoughtResponse{}, fmt.Errorf("%w: %v", engine.ErrInvalidOperation, err)
	}
	t, count, err := s.thoughts.Record(sessionID, thought.Thought{
		Text:    req.Text,
		Index:   req.Index,
		Total:   req.Total,
		HasMore: req.HasMore,
	})
	if err != nil {
		return RecordThoughtResponse{}, err
	}
	return RecordThoughtResponse{SessionID: sessionID, Thought: t, Count: count, Recorded: s.now()}, nil
}

// Thoughts returns the records under sessionID.
func (s *Service) Thoughts(ctx context.Context, sessionID string) (thought.Sequence, error) {
	return s.thoughts.Thoughts(ctx, sessionID)
}

// ClearThoughts drops the records under sessionID.
func (s *Service) ClearThoughts(sessionID string) {
	s.thoughts.Clear(sessionID)
}

// Health reports liveness and the session count.
func (s *Service) Health() HealthResponse {
	return HealthResponse{Status: "healthy", Version: ServiceVersion, Sessions: s.store.Len()}
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	return s.store.Run(ctx, interval)
}
