// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"

	"github.com/AleutianAI/AleutianReason/services/reason/thought"
)

// Taxonomy sentinels. Engine packages wrap these with %w so callers can
// classify any engine error with errors.Is or KindOf.
var (
	// ErrNotFound means a referenced node, edge, path or session is absent.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded means a node, edge, depth or branching cap was hit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrCycleRejected means an edge would violate an acyclic constraint.
	ErrCycleRejected = errors.New("cycle rejected")

	// ErrInvalidOperation means required arguments are missing or malformed.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnsupported means an unknown pattern or verb was requested.
	ErrUnsupported = errors.New("unsupported")
)

// Kind classifies an engine error for transports.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindCapacityExceeded
	KindCycleRejected
	KindInvalidOperation
	KindUnsupported
	KindInternal
)

// String returns the wire code for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindNotFound:
		return "NOT_FOUND"
	case KindCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case KindCycleRejected:
		return "CYCLE_REJECTED"
	case KindInvalidOperation:
		return "INVALID_OPERATION"
	case KindUnsupported:
		return "UNSUPPORTED"
	default:
		return "INTERNAL"
	}
}

// KindOf returns the taxonomy kind of err.
//
// A malformed interchange sequence counts as an invalid operation and an
// unknown thought session as not found. Errors outside the taxonomy are
// KindInternal; nil is KindNone.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound), errors.Is(err, thought.ErrUnknownSession):
		return KindNotFound
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrCycleRejected):
		return KindCycleRejected
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, thought.ErrInvalidSequence):
		return KindInvalidOperation
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	default:
		return KindInternal
	}
}
