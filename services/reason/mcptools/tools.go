// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AleutianAI/AleutianReason/services/reason"
	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// Tool names.
const (
	ToolTree          = "tree_of_thought"
	ToolGraph         = "graph_of_thought"
	ToolBeam          = "beam_search"
	ToolMCTS          = "monte_carlo_tree_search"
	ToolRecordThought = "record_thought"
)

// PatternTool exposes one reasoning engine as an MCP tool.
type PatternTool struct {
	svc         *reason.Service
	name        string
	pattern     engine.Pattern
	description string
	operations  []string
	logger      *slog.Logger
}

// NewPatternTool builds the tool for pattern. operations is the list the
// service accepts for it and becomes the operation enum.
func NewPatternTool(svc *reason.Service, name string, pattern engine.Pattern, description string, operations []string, logger *slog.Logger) *PatternTool {
	return &PatternTool{
		svc:         svc,
		name:        name,
		pattern:     pattern,
		description: description,
		operations:  operations,
		logger:      logger,
	}
}

// Definition returns the MCP tool schema.
func (t *PatternTool) Definition() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription(t.description),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("Operation to run: "+strings.Join(t.operations, ", ")),
			mcp.Enum(t.operations...),
		),
		mcp.WithString("session_id", mcp.Description("Session to operate on. Optional for init and import, required otherwise")),
		mcp.WithObject("config", mcp.Description("Engine settings overlaid on the server defaults (init and import only)")),
		mcp.WithString("content", mcp.Description("Root content on init, or the new node's content")),
		mcp.WithArray("contents", mcp.Description("Child contents for expand"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("thoughts", mcp.Description("Interchange records to import: {text, index, total, has_more}"), mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("source_session_id", mcp.Description("Import the records logged under this record_thought session")),
		mcp.WithString("node_id", mcp.Description("Target node")),
		mcp.WithString("parent_id", mcp.Description("Parent node for create_node")),
		mcp.WithArray("node_ids", mcp.Description("Node or path ids for merge"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("source", mcp.Description("Source node for connect and find_paths")),
		mcp.WithString("target", mcp.Description("Target node for connect and find_paths")),
		mcp.WithString("type", mcp.Description("Node or edge type")),
		mcp.WithNumber("strength", mcp.Description("Node strength in [0,1]")),
		mcp.WithNumber("weight", mcp.Description("Edge weight in [0,1]")),
		mcp.WithString("direction", mcp.Description("Neighbor direction"), mcp.Enum("in", "out", "both")),
		mcp.WithNumber("max_paths", mcp.Description("Path limit for find_paths")),
		mcp.WithString("reason", mcp.Description("Prune reason")),
		mcp.WithString("action", mcp.Description("Action for expand_node")),
		mcp.WithArray("actions", mcp.Description("Root actions on init"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("value", mcp.Description("Reward for backpropagate")),
		mcp.WithNumber("iterations", mcp.Description("Iterations to run for iterate")),
	)
}

// Handle runs the requested operation and returns the response as JSON.
func (t *PatternTool) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req reason.OperationRequest
	if err := decodeArguments(request.GetArguments(), &req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	resp, err := t.svc.Execute(ctx, string(t.pattern), req)
	if err != nil {
		t.logger.Debug("tool call failed",
			slog.String("tool", t.name),
			slog.String("operation", req.Operation),
			slog.String("error", err.Error()),
		)
		return toolError(err), nil
	}
	return jsonResult(resp)
}

// RecordThoughtTool appends to the sequential thinking log.
type RecordThoughtTool struct {
	svc *reason.Service
}

// NewRecordThoughtTool builds the record_thought tool.
func NewRecordThoughtTool(svc *reason.Service) *RecordThoughtTool {
	return &RecordThoughtTool{svc: svc}
}

// Definition returns the MCP tool schema.
func (t *RecordThoughtTool) Definition() mcp.Tool {
	return mcp.NewTool(ToolRecordThought,
		mcp.WithDescription("Record one step of a sequential line of thought. "+
			"The recorded session can be imported into any reasoning tool via source_session_id."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Thinking session to append to")),
		mcp.WithString("thought", mcp.Required(), mcp.Description("The thought text")),
		mcp.WithNumber("thought_number", mcp.Required(), mcp.Description("1-based position of this thought")),
		mcp.WithNumber("total_thoughts", mcp.Description("Expected number of thoughts")),
		mcp.WithBoolean("next_thought_needed", mcp.Description("Whether more thoughts follow")),
	)
}

// Handle records the thought.
func (t *RecordThoughtTool) Handle(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("thought")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.svc.RecordThought(sessionID, reason.RecordThoughtRequest{
		Text:    text,
		Index:   request.GetInt("thought_number", 0),
		Total:   request.GetInt("total_thoughts", 0),
		HasMore: request.GetBool("next_thought_needed", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(resp)
}

// decodeArguments round-trips the loosely typed arguments through JSON so
// the request's own field tags apply.
func decodeArguments(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", engine.KindOf(err), err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
