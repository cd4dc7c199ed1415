// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// element when full.
package ring

// Buffer is a bounded FIFO. It is not safe for concurrent use; owners guard
// it with their own lock.
type Buffer[T interface{}] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New returns a Buffer holding at most capacity elements. A capacity below
// one is raised to one.
func New[T interface{}](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full. It reports whether
// an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Len returns the number of elements held.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th element counting from the oldest.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ring: index out of range")
	}
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns up to n of the newest elements, oldest first. n <= 0 returns
// everything.
func (b *Buffer[T]) Last(n int) []T {
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.At(b.size - n + i)
	}
	return out
}

// DropWhile removes elements from the oldest end while drop returns true
// and reports how many were removed.
func (b *Buffer[T]) DropWhile(drop func(T) bool) int {
	var zero T
	n := 0
	for b.size > 0 && drop(b.items[b.head]) {
		b.items[b.head] = zero
		b.head = (b.head + 1) % len(b.items)
		b.size--
		n++
	}
	return n
}

// Reset empties the buffer without shrinking it.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.size = 0, 0
}
