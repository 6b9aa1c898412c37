// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package got

import (
	"fmt"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

var (
	ErrNodeNotFound = fmt.Errorf("graph node %w", engine.ErrNotFound)

	ErrNodeLimit = fmt.Errorf("node limit reached: %w", engine.ErrCapacityExceeded)
	ErrEdgeLimit = fmt.Errorf("edge limit reached: %w", engine.ErrCapacityExceeded)

	// ErrCycle is returned when an edge or merge would close a cycle while
	// AllowCycles is false.
	ErrCycle = fmt.Errorf("would create cycle: %w", engine.ErrCycleRejected)

	// ErrInvalidMerge is returned for a merge with fewer than two distinct
	// existing nodes.
	ErrInvalidMerge = fmt.Errorf("%w: invalid merge", engine.ErrInvalidOperation)

	ErrInvalidType  = fmt.Errorf("%w: unknown type", engine.ErrInvalidOperation)
	ErrInvalidRange = fmt.Errorf("%w: value outside [0,1]", engine.ErrInvalidOperation)
)
