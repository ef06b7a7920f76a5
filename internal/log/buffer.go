package log

import "sync"

// RingBuffer keeps the most recent entries in memory so a failing command
// can replay them without reopening the log file. Once full, each Add
// overwrites the oldest entry.
type RingBuffer[T any] struct {
	mu      sync.RWMutex
	entries []T
	next    int
	full    bool
}

// NewRingBuffer creates a buffer that holds up to capacity entries.
// Values <= 0 are normalized to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	return &RingBuffer[T]{entries: make([]T, max(capacity, 1))}
}

// Add stores an entry.
func (r *RingBuffer[T]) Add(entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = entry
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Cap reports how many entries the buffer can hold.
func (r *RingBuffer[T]) Cap() int {
	return len(r.entries)
}

// Len reports how many entries are currently held.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count()
}

func (r *RingBuffer[T]) count() int {
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Last returns up to n of the newest entries, oldest first.
func (r *RingBuffer[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n = min(n, r.count())
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	size := len(r.entries)
	for i := range out {
		out[i] = r.entries[(r.next-n+i+size)%size]
	}
	return out
}

// Clear empties the buffer.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.next = 0
	r.full = false
}
