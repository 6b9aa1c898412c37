// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package thought

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSession is returned by a Source that has no thoughts for an id.
var ErrUnknownSession = errors.New("unknown thought session")

// Source supplies the linear thought list of a sequential thinking session.
//
// Engines bridge into the interchange format through this interface
// rather than reading a collaborator's store directly.
type Source interface {
	Thoughts(ctx context.Context, sessionID string) (Sequence, error)
}

// Log is an in-memory sequential thinking store keyed by session id.
//
// Thread Safety: Safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	sessions map[string]Sequence
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{sessions: make(map[string]Sequence)}
}

// Record appends a thought to the named session.
//
// Description:
//
//	Total is raised to Index when the caller underestimated it, matching
//	how sequential thinking grows its plan. HasMore is kept as supplied.
//	Index must follow the last recorded index.
//
// Outputs:
//
//	Thought - The stored record after normalization.
//	int - Number of thoughts now in the session.
//	error - ErrInvalidSequence when the record is malformed.
//
// Thread Safety: Safe for concurrent use.
func (l *Log) Record(sessionID string, t Thought) (Thought, int, error) {
	if sessionID == "" {
		return Thought{}, 0, fmt.Errorf("%w: session id required", ErrInvalidSequence)
	}
	if t.Total < t.Index {
		t.Total = t.Index
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.sessions[sessionID]
	candidate := append(append(Sequence{}, seq...), t)
	if err := candidate.Validate(); err != nil {
		return Thought{}, len(seq), err
	}
	l.sessions[sessionID] = candidate
	return t, len(candidate), nil
}

// Thoughts implements Source.
func (l *Log) Thoughts(_ context.Context, sessionID string) (Sequence, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq, ok := l.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	out := make(Sequence, len(seq))
	copy(out, seq)
	return out, nil
}

// Clear drops a session. Unknown ids are ignored.
func (l *Log) Clear(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}

var _ Source = (*Log)(nil)
