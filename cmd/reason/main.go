// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command reason runs the Aleutian reasoning engines.
//
// The engines (Tree-of-Thought, Graph-of-Thought, beam search and MCTS)
// are served over HTTP or as MCP tools on stdio.
//
// Usage:
//
//	go run ./cmd/reason serve
//	go run ./cmd/reason serve --addr :9090 --config reason.yaml
//	go run ./cmd/reason mcp
//	go run ./cmd/reason config
//
// Example requests:
//
//	# Start a tree session
//	curl -X POST http://localhost:8090/v1/reason/patterns/tree \
//	  -H "Content-Type: application/json" \
//	  -d '{"operation": "init", "content": "Why is the build slow?"}'
//
//	# Run ten iterations
//	curl -X POST http://localhost:8090/v1/reason/patterns/tree \
//	  -H "Content-Type: application/json" \
//	  -d '{"operation": "iterate", "session_id": "<id>", "iterations": 10}'
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
