// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package sequencereader

import (
	"errors"
)

// ErrEndOfSequence defines that the sequence is exhausted.
var ErrEndOfSequence = errors.New("the sequence is ended")

// SequenceReader defines the simplest reader for sequences.
type SequenceReader[T any] struct {
	s   []T
	idx int
}

// New is a constructor for SequenceReader.
func New[T any](seq []T) *SequenceReader[T] {
	return &SequenceReader[T]{s: seq}
}

// HasNext returns true if the sequence is not ended.
func (sr *SequenceReader[T]) HasNext() bool {
	return sr.idx < len(sr.s)
}

// Next returns the next element of the sequence.
func (sr *SequenceReader[T]) Next() (T, error) {
	if !sr.HasNext() {
		return *new(T), ErrEndOfSequence
	}

	sr.idx++

	return sr.s[sr.idx-1], nil
}

// Len returns how many items are left.
func (sr *SequenceReader[T]) Len() int {
	return len(sr.s) - sr.idx
}
