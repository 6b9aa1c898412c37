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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianReason/pkg/logging"
	"github.com/AleutianAI/AleutianReason/services/reason/config"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
	"github.com/AleutianAI/AleutianReason/services/reason/got"
	"github.com/AleutianAI/AleutianReason/services/reason/mcts"
	"github.com/AleutianAI/AleutianReason/services/reason/telemetry"
	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewService(config.DefaultConfig(), append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func execute(t *testing.T, svc *Service, pattern string, req OperationRequest) OperationResponse {
	t.Helper()
	resp, err := svc.Execute(context.Background(), pattern, req)
	require.NoError(t, err)
	return resp
}

func assertKind(t *testing.T, want engine.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, engine.KindOf(err), "error: %v", err)
}

func TestService_InitAndOperate(t *testing.T) {
	svc := newTestService(t)

	resp := execute(t, svc, "tree", OperationRequest{
		Operation: "init",
		Content:   "How should the cache be invalidated?",
		Config:    json.RawMessage(`{"seed": 7}`),
	})
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, engine.PatternTree, resp.Pattern)
	assert.NotEmpty(t, resp.SessionID)
	assert.True(t, resp.NeedsMoreWork)
	assert.Equal(t, CreatedResult{Created: true}, resp.Result)

	best := execute(t, svc, "tot", OperationRequest{Operation: "best_path", SessionID: resp.SessionID})
	path, ok := best.Result.(PathResult)
	require.True(t, ok)
	assert.Equal(t, []string{"How should the cache be invalidated?"}, path.Contents)

	assert.Equal(t, 1, svc.Health().Sessions)
}

func TestService_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tree := execute(t, svc, "tree", OperationRequest{Operation: "init", Content: "root"})

	tests := []struct {
		name    string
		pattern string
		req     OperationRequest
		want    engine.Kind
	}{
		{"unknown pattern", "forest", OperationRequest{Operation: "init", Content: "x"}, engine.KindUnsupported},
		{"unknown operation", "tree", OperationRequest{Operation: "simulate", SessionID: tree.SessionID}, engine.KindUnsupported},
		{"missing operation", "tree", OperationRequest{}, engine.KindInvalidOperation},
		{"init without content", "tree", OperationRequest{Operation: "init"}, engine.KindInvalidOperation},
		{"unknown config field", "tree", OperationRequest{Operation: "init", Content: "x", Config: json.RawMessage(`{"max_dpeth": 3}`)}, engine.KindInvalidOperation},
		{"invalid config value", "tree", OperationRequest{Operation: "init", Content: "x", Config: json.RawMessage(`{"max_depth": 0}`)}, engine.KindInvalidOperation},
		{"missing session id", "tree", OperationRequest{Operation: "best_path"}, engine.KindInvalidOperation},
		{"unknown session", "tree", OperationRequest{Operation: "best_path", SessionID: "nope"}, engine.KindNotFound},
		{"pattern mismatch", "graph", OperationRequest{Operation: "add_node", SessionID: tree.SessionID, Content: "x"}, engine.KindInvalidOperation},
		{"unknown node", "tree", OperationRequest{Operation: "evaluate", SessionID: tree.SessionID, NodeID: "missing"}, engine.KindNotFound},
		{"bad direction", "graph", OperationRequest{Operation: "neighbors", SessionID: "x", Direction: "sideways"}, engine.KindInvalidOperation},
		{"too many iterations", "tree", OperationRequest{Operation: "iterate", SessionID: tree.SessionID, Iterations: MaxIterationsPerCall + 1}, engine.KindInvalidOperation},
		{"import without thoughts", "beam", OperationRequest{Operation: "import"}, engine.KindInvalidOperation},
		{"import from unknown log", "beam", OperationRequest{Operation: "import", SourceSessionID: "ghost"}, engine.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Execute(ctx, tt.pattern, tt.req)
			assertKind(t, tt.want, err)
		})
	}
}

func TestService_InitWithIDIsIdempotent(t *testing.T) {
	svc := newTestService(t)

	first := execute(t, svc, "beam", OperationRequest{Operation: "init", SessionID: "plan-1", Content: "start"})
	assert.Equal(t, "plan-1", first.SessionID)
	assert.Equal(t, CreatedResult{Created: true}, first.Result)

	second := execute(t, svc, "beam", OperationRequest{Operation: "init", SessionID: "plan-1", Content: "ignored"})
	assert.Equal(t, CreatedResult{Created: false}, second.Result)
	assert.Equal(t, 1, svc.Sessions().Count)

	_, err := svc.Execute(context.Background(), "beam", OperationRequest{
		Operation: "import",
		SessionID: "plan-1",
		Thoughts:  thought.FromTexts([]string{"a", "b"}),
	})
	assertKind(t, engine.KindInvalidOperation, err)

	_, err = svc.Execute(context.Background(), "mcts", OperationRequest{Operation: "init", SessionID: "plan-1", Content: "x"})
	assertKind(t, engine.KindInvalidOperation, err)
}

func TestService_IterateStopsWhenDone(t *testing.T) {
	svc := newTestService(t)

	created := execute(t, svc, "tree", OperationRequest{
		Operation: "init",
		Content:   "root",
		Config:    json.RawMessage(`{"max_depth": 2, "max_branching_factor": 2, "seed": 3}`),
	})

	resp := execute(t, svc, "tree", OperationRequest{Operation: "iterate", SessionID: created.SessionID, Iterations: 1000})
	res, ok := resp.Result.(IterateResult)
	require.True(t, ok)
	assert.Less(t, res.Ran, 1000)
	assert.Len(t, res.Results, res.Ran)
	assert.False(t, resp.NeedsMoreWork)
	assert.Equal(t, res.Ran, resp.Iteration)
}

func TestService_MCTSIterateRunsFullBatch(t *testing.T) {
	svc := newTestService(t)

	created := execute(t, svc, "mcts", OperationRequest{
		Operation: "init",
		Content:   "choose a plan",
		Actions:   []string{"a", "b", "c"},
		Config:    json.RawMessage(`{"seed": 11}`),
	})
	resp := execute(t, svc, "mcts", OperationRequest{Operation: "iterate", SessionID: created.SessionID, Iterations: 5})

	res := resp.Result.(IterateResult)
	assert.Equal(t, 5, res.Ran)
	assert.Equal(t, 5, resp.Simulations)
	assert.True(t, resp.NeedsMoreWork)

	probs := execute(t, svc, "mcts", OperationRequest{Operation: "probabilities", SessionID: created.SessionID})
	total := 0.0
	for _, p := range probs.Result.(ProbabilitiesResult).Actions {
		total += p.Probability
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestService_MCTSManualCycle(t *testing.T) {
	svc := newTestService(t)
	created := execute(t, svc, "mcts", OperationRequest{Operation: "init", Content: "root", Actions: []string{"left", "right"}})
	id := created.SessionID

	child := execute(t, svc, "mcts", OperationRequest{Operation: "expand_node", SessionID: id, Action: "left"})
	node := child.Result.(NodeResult).Node
	require.NotNil(t, node)

	raw, err := json.Marshal(node)
	require.NoError(t, err)
	var decoded struct {
		ID     string `json:"id"`
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "left", decoded.Action)

	value := 0.9
	back := execute(t, svc, "mcts", OperationRequest{Operation: "backpropagate", SessionID: id, NodeID: decoded.ID, Value: &value})
	assert.Len(t, back.Result.(BackpropagationResult).Path, 2)

	_, err = svc.Execute(context.Background(), "mcts", OperationRequest{Operation: "backpropagate", SessionID: id, NodeID: decoded.ID})
	assertKind(t, engine.KindInvalidOperation, err)

	best := execute(t, svc, "mcts", OperationRequest{Operation: "best_action", SessionID: id})
	assert.NotNil(t, best.Result.(NodeResult).Node)
}

func TestService_GraphOperations(t *testing.T) {
	svc := newTestService(t)
	created := execute(t, svc, "graph", OperationRequest{Operation: "init"})
	id := created.SessionID

	add := func(content, typ string) string {
		resp := execute(t, svc, "graph", OperationRequest{Operation: "add_node", SessionID: id, Content: content, Type: typ})
		return resp.Result.(NodeResult).Node.(*got.Node).ID
	}
	a := add("claim", "hypothesis")
	b := add("data", "evidence")
	c := add("verdict", "conclusion")

	// Unit weights keep the PageRank mass at 1.
	unit := 1.0
	execute(t, svc, "graph", OperationRequest{Operation: "connect", SessionID: id, Source: b, Target: a, Type: "supports", Weight: &unit})
	execute(t, svc, "graph", OperationRequest{Operation: "connect", SessionID: id, Source: a, Target: c, Type: "leads-to", Weight: &unit})

	paths := execute(t, svc, "graph", OperationRequest{Operation: "find_paths", SessionID: id, Source: b, Target: c})
	assert.Equal(t, PathsResult{Paths: [][]string{{b, a, c}}, Count: 1}, paths.Result)

	nb := execute(t, svc, "graph", OperationRequest{Operation: "neighbors", SessionID: id, NodeID: a, Direction: "out"})
	assert.Equal(t, []string{c}, nb.Result.(NeighborsResult).Neighbors)

	_, err := svc.Execute(context.Background(), "graph", OperationRequest{Operation: "add_node", SessionID: id, Content: "x", Type: "rumor"})
	assertKind(t, engine.KindInvalidOperation, err)

	centrality := execute(t, svc, "graph", OperationRequest{Operation: "centrality", SessionID: id})
	sum := 0.0
	for _, v := range centrality.Result.(map[string]float64) {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	exported := execute(t, svc, "graph", OperationRequest{Operation: "export", SessionID: id})
	assert.Equal(t, []string{"data", "claim", "verdict"}, exported.Sequence.Texts())
}

func TestService_InterchangeAcrossPatterns(t *testing.T) {
	svc := newTestService(t)
	texts := []string{"frame the problem", "gather facts", "weigh options", "decide"}

	for i, text := range texts {
		_, err := svc.RecordThought("notes", RecordThoughtRequest{
			Text:    text,
			Index:   i + 1,
			Total:   len(texts),
			HasMore: i < len(texts)-1,
		})
		require.NoError(t, err)
	}

	tree := execute(t, svc, "tree", OperationRequest{Operation: "import", SourceSessionID: "notes"})
	treeOut, err := svc.Export(context.Background(), tree.SessionID)
	require.NoError(t, err)
	assert.Equal(t, texts, treeOut.Sequence.Texts())

	for _, pattern := range []string{"graph", "beam", "mcts"} {
		t.Run(pattern, func(t *testing.T) {
			resp := execute(t, svc, pattern, OperationRequest{Operation: "import", Thoughts: treeOut.Sequence})
			out, err := svc.Export(context.Background(), resp.SessionID)
			require.NoError(t, err)
			assert.Equal(t, texts, out.Sequence.Texts())
			assert.Equal(t, engine.Pattern(pattern), out.Pattern)
		})
	}
}

func TestService_RecordThought(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.RecordThought("s1", RecordThoughtRequest{Text: "first", Index: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 1, resp.Thought.Total)

	_, err = svc.RecordThought("s1", RecordThoughtRequest{Text: "", Index: 2})
	assertKind(t, engine.KindInvalidOperation, err)

	_, err = svc.RecordThought("s1", RecordThoughtRequest{Text: "repeat", Index: 1})
	assertKind(t, engine.KindInvalidOperation, err)

	seq, err := svc.Thoughts(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, seq.Texts())

	svc.ClearThoughts("s1")
	_, err = svc.Thoughts(context.Background(), "s1")
	assertKind(t, engine.KindNotFound, err)
}

func TestService_Delete(t *testing.T) {
	svc := newTestService(t)
	resp := execute(t, svc, "beam", OperationRequest{Operation: "init", Content: "x"})

	require.NoError(t, svc.Delete(resp.SessionID))
	assertKind(t, engine.KindNotFound, svc.Delete(resp.SessionID))

	_, err := svc.Export(context.Background(), resp.SessionID)
	assertKind(t, engine.KindNotFound, err)
}

func TestService_Patterns(t *testing.T) {
	svc := newTestService(t)
	infos := svc.Patterns()
	require.Len(t, infos, 4)
	for _, info := range infos {
		assert.Contains(t, info.Operations, OpInit)
		assert.Contains(t, info.Operations, OpExport)
	}
}

func TestService_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	svc := newTestService(t, WithMetrics(m))
	ctx := context.Background()

	created := execute(t, svc, "mcts", OperationRequest{Operation: "init", Content: "root", Config: json.RawMessage(`{"seed": 5}`)})
	execute(t, svc, "mcts", OperationRequest{Operation: "iterate", SessionID: created.SessionID, Iterations: 3})
	_, err = svc.Execute(ctx, "mcts", OperationRequest{Operation: "best_path", SessionID: created.SessionID})
	require.Error(t, err)
	_, err = svc.Execute(ctx, "mcts", OperationRequest{Operation: "drop_everything_42", SessionID: created.SessionID})
	require.Error(t, err)

	sums := func() map[string]int64 {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		out := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, md := range sm.Metrics {
				if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
					for _, dp := range sum.DataPoints {
						out[md.Name] += dp.Value
					}
				}
			}
		}
		return out
	}

	operationLabels := func() []string {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		var labels []string
		for _, sm := range rm.ScopeMetrics {
			for _, md := range sm.Metrics {
				if md.Name != "reason_operations_total" {
					continue
				}
				for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
					v, _ := dp.Attributes.Value("operation")
					labels = append(labels, v.AsString())
				}
			}
		}
		return labels
	}

	totals := sums()
	assert.Equal(t, int64(4), totals["reason_operations_total"])
	assert.ElementsMatch(t, []string{"init", "iterate", "unknown"}, operationLabels())
	assert.Equal(t, int64(1), totals["reason_sessions_active"])
	assert.Equal(t, int64(3), totals["reason_iterations_total"])
	assert.Equal(t, int64(3), totals["reason_simulations_total"])
	assert.Positive(t, totals["reason_nodes_created_total"])

	require.NoError(t, svc.Delete(created.SessionID))
	assert.Equal(t, int64(0), sums()["reason_sessions_active"])
}

func TestService_ResultsAreDetachedFromSession(t *testing.T) {
	svc := newTestService(t)
	created := execute(t, svc, "mcts", OperationRequest{
		Operation: "init",
		Content:   "root",
		Actions:   []string{"a", "b", "c"},
		Config:    json.RawMessage(`{"seed": 3}`),
	})
	id := created.SessionID

	sel := execute(t, svc, "mcts", OperationRequest{Operation: "select", SessionID: id})
	root := sel.Result.(NodeResult).Node.(*mcts.Node)
	require.Len(t, root.UntriedActions, 3)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			_, _ = svc.Execute(context.Background(), "mcts", OperationRequest{Operation: "iterate", SessionID: id})
		}
	}()
	for range 20 {
		_, err := json.Marshal(sel)
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, root.UntriedActions, 3)
	assert.Zero(t, root.Visits)
	assert.Empty(t, root.Children)

	graph := execute(t, svc, "graph", OperationRequest{Operation: "init", Content: "first"})
	stats := graph.Stats.(got.Stats)
	require.Equal(t, 1, stats.NodesByType[got.NodeHypothesis])
	execute(t, svc, "graph", OperationRequest{Operation: "add_node", SessionID: graph.SessionID, Content: "second"})
	assert.Equal(t, 1, stats.NodesByType[got.NodeHypothesis])
}

func TestService_LogsCarryTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	svc := NewService(config.DefaultConfig(), WithLogger(logger.Slog()))
	execute(t, svc, "tree", OperationRequest{Operation: "init", Content: "root"})
	_, err = svc.Execute(context.Background(), "tree", OperationRequest{Operation: "best_path", SessionID: "missing"})
	require.Error(t, err)

	var sawCreated, sawFailed bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		switch rec["msg"] {
		case "session created":
			sawCreated = true
			assert.NotEmpty(t, rec["trace_id"], line)
		case "operation failed":
			sawFailed = true
			assert.NotEmpty(t, rec["trace_id"], line)
			assert.NotEmpty(t, rec["span_id"], line)
		}
	}
	assert.True(t, sawCreated)
	assert.True(t, sawFailed)
}
