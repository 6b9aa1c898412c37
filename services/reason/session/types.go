// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

var (
	ErrSessionNotFound = fmt.Errorf("session %w", engine.ErrNotFound)
	ErrStoreFull       = fmt.Errorf("session store %w", engine.ErrCapacityExceeded)

	// ErrPatternMismatch is returned when an id is reused for another engine.
	ErrPatternMismatch = fmt.Errorf("%w: session belongs to another pattern", engine.ErrInvalidOperation)
)

// BuildFunc creates the engine session for a new entry.
type BuildFunc func() (engine.Session, error)

// EvictHook is called after an entry leaves the store for any reason.
type EvictHook func(id string, pattern engine.Pattern)

// Options configures a Store.
type Options struct {
	// TTL is the idle time after which a session may be evicted.
	// Zero disables expiry.
	TTL time.Duration

	// MaxSessions caps the number of live sessions. Zero means no cap.
	MaxSessions int

	Logger  *slog.Logger
	Now     func() time.Time
	OnEvict EvictHook
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		TTL:    DefaultTTL,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// Option configures a Store.
type Option func(*Options)

// WithTTL sets the idle expiry.
func WithTTL(d time.Duration) Option {
	return func(o *Options) { o.TTL = d }
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(o *Options) { o.MaxSessions = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithEvictHook registers fn to observe removals.
func WithEvictHook(fn EvictHook) Option {
	return func(o *Options) { o.OnEvict = fn }
}

// Info is a point-in-time view of an entry.
type Info struct {
	ID            string         `json:"id"`
	Pattern       engine.Pattern `json:"pattern"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAccess    time.Time      `json:"last_access"`
	Iteration     int            `json:"iteration"`
	NeedsMoreWork bool           `json:"needs_more_work"`
}

// entry owns one engine session.
//
// mu serializes every operation on the session. lastAccess is read by the
// janitor without holding mu.
type entry struct {
	id         string
	pattern    engine.Pattern
	createdAt  time.Time
	lastAccess atomic.Int64

	mu      sync.Mutex
	session engine.Session
}

func (e *entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixMilli())
}

func (e *entry) expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(time.UnixMilli(e.lastAccess.Load())) > ttl
}

// infoLocked must be called with e.mu held.
func (e *entry) infoLocked() Info {
	h := e.session.SessionHeader()
	return Info{
		ID:            e.id,
		Pattern:       e.pattern,
		CreatedAt:     e.createdAt,
		LastAccess:    time.UnixMilli(e.lastAccess.Load()),
		Iteration:     h.Iteration,
		NeedsMoreWork: h.NeedsMoreWork,
	}
}
