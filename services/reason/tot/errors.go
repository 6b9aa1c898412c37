// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tot

import (
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var (
	// ErrDepthExceeded is returned when a child would exceed MaxDepth.
	ErrDepthExceeded = fmt.Errorf("depth exceeded: %w", engine.ErrCapacityExceeded)

	// ErrBranchingExceeded is returned when a parent has no room for children.
	ErrBranchingExceeded = fmt.Errorf("branching factor exceeded: %w", engine.ErrCapacityExceeded)

	// ErrNodeNotFound is returned for an unknown node id.
	ErrNodeNotFound = fmt.Errorf("tree node %w", engine.ErrNotFound)

	// ErrParentPruned is returned when creating a child under a pruned node.
	ErrParentPruned = fmt.Errorf("%w: parent is pruned", engine.ErrInvalidOperation)
)
