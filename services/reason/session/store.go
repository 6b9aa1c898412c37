// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds live engine sessions for the service layer.
//
// Engines do no locking of their own. The Store serializes all work on a
// session through a per-entry mutex and guards its index with an RWMutex.
// Idle sessions are evicted after a TTL by EvictExpired or the Run janitor.
//
// Thread Safety: Store is safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianReason/services/reason/engine"
)

// Store is an in-memory table of engine sessions keyed by session id.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	flight  singleflight.Group
	options Options
}

// New creates an empty store.
func New(opts ...Option) *Store {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Store{
		entries: make(map[string]*entry),
		options: options,
	}
}

// Create builds a session and stores it under its own header id.
//
// Outputs:
//
//	Info - The new entry.
//	error - ErrStoreFull when MaxSessions live sessions exist after
//	        evicting expired ones, or the build error.
func (s *Store) Create(pattern engine.Pattern, build BuildFunc) (Info, error) {
	if err := s.reserve(); err != nil {
		return Info{}, err
	}
	sess, err := build()
	if err != nil {
		return Info{}, err
	}
	return s.insert(sess.SessionHeader().ID, pattern, sess)
}

// GetOrCreate returns the session stored under id, building it when absent.
//
// Concurrent callers for the same id share a single build. The built
// session's header id is replaced by id.
//
// Outputs:
//
//	Info - The entry.
//	bool - True when this call created the entry.
//	error - ErrPatternMismatch if id holds another engine's session,
//	        ErrStoreFull, or the build error.
func (s *Store) GetOrCreate(id string, pattern engine.Pattern, build BuildFunc) (Info, bool, error) {
	if info, err := s.Get(id); err == nil {
		if info.Pattern != pattern {
			return Info{}, false, fmt.Errorf("%w: %s is %s", ErrPatternMismatch, id, info.Pattern)
		}
		return info, false, nil
	}

	created := false
	v, err, _ := s.flight.Do(id, func() (any, error) {
		if info, err := s.Get(id); err == nil {
			return info, nil
		}
		if err := s.reserve(); err != nil {
			return nil, err
		}
		sess, err := build()
		if err != nil {
			return nil, err
		}
		sess.SessionHeader().ID = id
		info, err := s.insert(id, pattern, sess)
		if err == nil {
			created = true
		}
		return info, err
	})
	if err != nil {
		return Info{}, false, err
	}
	info := v.(Info)
	if info.Pattern != pattern {
		return Info{}, false, fmt.Errorf("%w: %s is %s", ErrPatternMismatch, id, info.Pattern)
	}
	return info, created, nil
}

// reserve fails when the store is at capacity after evicting expired
// entries.
func (s *Store) reserve() error {
	if s.options.MaxSessions <= 0 {
		return nil
	}
	if s.Len() < s.options.MaxSessions {
		return nil
	}
	s.EvictExpired(s.options.Now())
	if n := s.Len(); n >= s.options.MaxSessions {
		return fmt.Errorf("%w: %d of %d sessions in use", ErrStoreFull, n, s.options.MaxSessions)
	}
	return nil
}

func (s *Store) insert(id string, pattern engine.Pattern, sess engine.Session) (Info, error) {
	now := s.options.Now()
	e := &entry{
		id:        id,
		pattern:   pattern,
		createdAt: now,
		session:   sess,
	}
	e.touch(now)

	s.mu.Lock()
	if existing, ok := s.entries[id]; ok {
		s.mu.Unlock()
		return existing.info(), nil
	}
	if s.options.MaxSessions > 0 && len(s.entries) >= s.options.MaxSessions {
		s.mu.Unlock()
		return Info{}, fmt.Errorf("%w: %d of %d sessions in use", ErrStoreFull, s.options.MaxSessions, s.options.MaxSessions)
	}
	s.entries[id] = e
	s.mu.Unlock()

	s.options.Logger.Debug("session created",
		slog.String("session_id", id),
		slog.String("pattern", string(pattern)),
	)
	return e.info(), nil
}

func (e *entry) info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.infoLocked()
}

// Get returns a snapshot of the entry. Expired entries are removed and
// reported as missing.
func (s *Store) Get(id string) (Info, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return e.info(), nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if e.expired(s.options.Now(), s.options.TTL) {
		s.remove(id, e)
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// With runs fn while holding the session's lock and refreshes its idle
// timer. fn must not retain the session after it returns.
func (s *Store) With(id string, fn func(engine.Session) error) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch(s.options.Now())
	return fn(e.session)
}

// Delete removes a session.
func (s *Store) Delete(id string) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !s.remove(id, e) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// remove deletes id if it still maps to e and reports whether it did.
func (s *Store) remove(id string, e *entry) bool {
	s.mu.Lock()
	cur, ok := s.entries[id]
	if !ok || cur != e {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	s.mu.Unlock()

	if s.options.OnEvict != nil {
		s.options.OnEvict(id, e.pattern)
	}
	return true
}

// List returns all live sessions, oldest first.
func (s *Store) List() []Info {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictExpired removes sessions idle for longer than the TTL and returns
// how many were removed. Sessions with an operation in flight are skipped.
func (s *Store) EvictExpired(now time.Time) int {
	if s.options.TTL <= 0 {
		return 0
	}
	s.mu.RLock()
	var stale []*entry
	for _, e := range s.entries {
		if e.expired(now, s.options.TTL) {
			stale = append(stale, e)
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, e := range stale {
		if !e.mu.TryLock() {
			continue
		}
		if s.remove(e.id, e) {
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		s.options.Logger.Info("expired sessions evicted",
			slog.Int("evicted", evicted),
			slog.Int("remaining", s.Len()),
		)
	}
	return evicted
}

// Run evicts expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: janitor interval must be positive", engine.ErrInvalidOperation)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.EvictExpired(s.options.Now())
		}
	}
}
