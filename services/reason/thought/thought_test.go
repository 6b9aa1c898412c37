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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTexts(t *testing.T) {
	seq := FromTexts([]string{"a", "b", "c"})

	require.Len(t, seq, 3)
	for i, th := range seq {
		assert.Equal(t, i+1, th.Index)
		assert.Equal(t, 3, th.Total)
		assert.Equal(t, i < 2, th.HasMore)
	}
	assert.Equal(t, []string{"a", "b", "c"}, seq.Texts())
	assert.NoError(t, seq.Validate())
}

func TestFromTexts_Empty(t *testing.T) {
	seq := FromTexts(nil)
	assert.Empty(t, seq)
	assert.ErrorIs(t, seq.Validate(), ErrInvalidSequence)
}

func TestSequence_Validate(t *testing.T) {
	tests := []struct {
		name string
		seq  Sequence
		ok   bool
	}{
		{"valid", Sequence{{Text: "x", Index: 1, Total: 2, HasMore: true}, {Text: "y", Index: 2, Total: 2}}, true},
		{"gap in index", Sequence{{Text: "x", Index: 1, Total: 5}, {Text: "y", Index: 3, Total: 5}}, true},
		{"empty text", Sequence{{Text: " ", Index: 1, Total: 1}}, false},
		{"zero index", Sequence{{Text: "x", Index: 0, Total: 1}}, false},
		{"total below index", Sequence{{Text: "x", Index: 2, Total: 1}}, false},
		{"not increasing", Sequence{{Text: "x", Index: 2, Total: 3}, {Text: "y", Index: 2, Total: 3}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seq.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSequence)
			}
		})
	}
}

func TestLog_RecordAndThoughts(t *testing.T) {
	log := NewLog()

	stored, n, err := log.Record("s1", Thought{Text: "first", Index: 1, Total: 1, HasMore: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, stored.Total)

	// Total grows when the caller passes the original estimate.
	stored, n, err = log.Record("s1", Thought{Text: "second", Index: 2, Total: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, stored.Total)

	seq, err := log.Thoughts(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seq.Texts())

	// Returned slice is a copy.
	seq[0].Text = "mutated"
	again, _ := log.Thoughts(context.Background(), "s1")
	assert.Equal(t, "first", again[0].Text)
}

func TestLog_RecordRejectsOutOfOrder(t *testing.T) {
	log := NewLog()
	_, _, err := log.Record("s1", Thought{Text: "a", Index: 2, Total: 2})
	require.NoError(t, err)

	_, n, err := log.Record("s1", Thought{Text: "b", Index: 1, Total: 2})
	assert.ErrorIs(t, err, ErrInvalidSequence)
	assert.Equal(t, 1, n)

	_, _, err = log.Record("", Thought{Text: "c", Index: 1, Total: 1})
	assert.ErrorIs(t, err, ErrInvalidSequence)
}

func TestLog_UnknownSession(t *testing.T) {
	log := NewLog()
	_, err := log.Thoughts(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrUnknownSession))

	_, _, _ = log.Record("gone", Thought{Text: "a", Index: 1, Total: 1})
	log.Clear("gone")
	_, err = log.Thoughts(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrUnknownSession)
}
