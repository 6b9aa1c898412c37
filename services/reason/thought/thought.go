// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package thought defines the linear thought sequence that every exploration
// engine imports from and exports to.
//
// A sequence is an ordered list of records {text, index, total, has_more}.
// It is the only integration point between engines and between the engines
// and the sequential thinking log.
package thought

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSequence is returned when a sequence violates the record rules.
var ErrInvalidSequence = errors.New("invalid thought sequence")

// Thought is one step of reasoning in the interchange format.
type Thought struct {
	// Text is the opaque thought payload.
	Text string `json:"text" validate:"required"`

	// Index is the 1-based position of this thought.
	Index int `json:"index" validate:"gte=1"`

	// Total is the expected number of thoughts, at least Index.
	Total int `json:"total" validate:"gtefield=Index"`

	// HasMore reports whether further thoughts follow.
	HasMore bool `json:"has_more"`
}

// Sequence is an ordered list of thoughts.
type Sequence []Thought

// FromTexts builds a well-formed sequence from raw texts.
//
// Description:
//
//	Indexes are assigned 1..n, Total is n for every record and HasMore is
//	true for every record except the last.
//
// Inputs:
//
//	texts - Thought payloads in order.
//
// Outputs:
//
//	Sequence - The interchange records. Empty when texts is empty.
func FromTexts(texts []string) Sequence {
	seq := make(Sequence, len(texts))
	for i, text := range texts {
		seq[i] = Thought{
			Text:    text,
			Index:   i + 1,
			Total:   len(texts),
			HasMore: i+1 < len(texts),
		}
	}
	return seq
}

// Texts returns the payloads in sequence order.
func (s Sequence) Texts() []string {
	texts := make([]string, len(s))
	for i, t := range s {
		texts[i] = t.Text
	}
	return texts
}

// Validate checks the record rules used by import.
//
// Every record needs non-empty text, Index >= 1 and Total >= Index.
// Indexes must be strictly increasing. An empty sequence is invalid.
func (s Sequence) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidSequence)
	}
	prev := 0
	for i, t := range s {
		switch {
		case strings.TrimSpace(t.Text) == "":
			return fmt.Errorf("%w: record %d has empty text", ErrInvalidSequence, i)
		case t.Index < 1:
			return fmt.Errorf("%w: record %d has index %d", ErrInvalidSequence, i, t.Index)
		case t.Total < t.Index:
			return fmt.Errorf("%w: record %d has total %d below index %d", ErrInvalidSequence, i, t.Total, t.Index)
		case t.Index <= prev:
			return fmt.Errorf("%w: record %d index %d is not increasing", ErrInvalidSequence, i, t.Index)
		}
		prev = t.Index
	}
	return nil
}
