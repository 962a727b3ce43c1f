// Package ring implements a fixed-capacity FIFO buffer used for bounded
// telemetry histories.
package ring

// Buffer holds at most Cap() values. Push appends the newest value and evicts
// the oldest one once the buffer is full. Both operations are O(1).
//
// A Buffer is not safe for concurrent use; owners guard it themselves.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest value
	size  int
}

// New returns an empty buffer with the given capacity. A capacity below one is
// raised to one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v as the newest value. It reports whether an old value was
// evicted to make room.
func (b *Buffer[T]) Push(v T) bool {
	c := len(b.items)
	if b.size < c {
		b.items[(b.head+b.size)%c] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % c
	return true
}

// Len returns the number of stored values.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the maximum number of stored values.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th value counted from the oldest.
func (b *Buffer[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= b.size {
		return zero, false
	}
	return b.items[(b.head+i)%len(b.items)], true
}

// Newest returns the most recently pushed value.
func (b *Buffer[T]) Newest() (T, bool) {
	return b.At(b.size - 1)
}

// Slice copies the contents into a new slice ordered oldest to newest.
func (b *Buffer[T]) Slice() []T {
	out := make([]T, b.size)
	c := len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%c]
	}
	return out
}

// Reset drops every value. Capacity is kept.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
