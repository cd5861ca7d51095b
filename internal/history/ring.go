// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package history

import "sync"

// Buffer is a fixed-capacity rolling history of derived values, oldest first.
// Its length always equals its capacity: it starts filled with the quiescent
// value 0 and every Append evicts the oldest entry.
//
// A Buffer has one writer; any number of readers may take snapshots
// concurrently with appends.
type Buffer struct {
	mu     sync.RWMutex
	values []float64
}

// New returns a buffer of the given capacity filled with zeros.
// Capacity must be positive.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("history: capacity must be positive")
	}
	return &Buffer{values: make([]float64, capacity)}
}

// Append shifts every entry one position towards the front, dropping index 0,
// and writes v at the last index.
func (b *Buffer) Append(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	copy(b.values, b.values[1:])
	b.values[len(b.values)-1] = v
}

// Snapshot returns a copy of the buffer contents, oldest first.
func (b *Buffer) Snapshot() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// Last returns the newest value.
func (b *Buffer) Last() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[len(b.values)-1]
}

// Len returns the buffer capacity, which is also its length.
func (b *Buffer) Len() int {
	return len(b.values)
}
