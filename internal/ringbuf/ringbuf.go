// Package ringbuf provides a fixed-size circular buffer that keeps the most
// recent values. Writers overwrite the oldest entry when it is full.
package ringbuf

import "sync"

// Ring holds the last Cap() values pushed. Safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []T
	pos   int // next write position
	full  bool
	total uint64
}

// New creates a ring buffer. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when the buffer is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
	r.total++
}

// Last returns up to n values, oldest first. n <= 0 returns everything held.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.len()
	if n <= 0 || n > count {
		n = count
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[r.index(count-n+i)]
	}
	return out
}

// Len returns the number of values currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Total returns how many values were ever pushed, including evicted ones.
func (r *Ring[T]) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (r *Ring[T]) index(logical int) int {
	if r.full {
		return (r.pos + logical) % len(r.buf)
	}
	return logical
}
