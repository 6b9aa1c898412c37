// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcptools exposes the reasoning service as MCP tools.
package mcptools

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/AleutianReason/services/reason"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// ServerName is advertised during the MCP handshake.
const ServerName = "aleutian-reason"

var toolNames = map[engine.Pattern]string{
	engine.PatternTree:  ToolTree,
	engine.PatternGraph: ToolGraph,
	engine.PatternBeam:  ToolBeam,
	engine.PatternMCTS:  ToolMCTS,
}

var descriptions = map[engine.Pattern]string{
	engine.PatternTree: "Explore a problem as a tree of thoughts. Expand, evaluate and prune " +
		"branches, or iterate to let the engine run best-first search until a solution is found.",
	engine.PatternGraph: "Build a graph of typed thoughts with supports, contradicts and other relations. " +
		"Analyze centrality, communities and contradictions across the graph.",
	engine.PatternBeam: "Keep the best few reasoning paths alive at once. Each generation extends, " +
		"scores and prunes the beam until it converges.",
	engine.PatternMCTS: "Search a space of reasoning actions with Monte Carlo tree search. Iterate to run " +
		"selection, expansion, simulation and backpropagation, then read the best action.",
}

// NewServer creates an MCP server with one tool per reasoning pattern plus
// record_thought.
func NewServer(svc *reason.Service, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		ServerName,
		reason.ServiceVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	for _, info := range svc.Patterns() {
		tool := NewPatternTool(svc, toolNames[info.Pattern], info.Pattern, descriptions[info.Pattern], info.Operations, logger)
		s.AddTool(tool.Definition(), tool.Handle)
	}

	record := NewRecordThoughtTool(svc)
	s.AddTool(record.Definition(), record.Handle)

	return s
}
