// Package buffer holds transcription fragments between collector ticks.
package buffer

import (
	"sync"

	"dispatch-copilot-service/internal/models"
)

// DefaultCapacity is the number of fragments retained when none is configured.
const DefaultCapacity = 1000

// Buffer is a bounded FIFO of fragments. When full, a push evicts the
// oldest fragment. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	items    []models.Fragment
	head     int
	size     int
	evicted  uint64
	capacity int
}

// New creates a buffer holding at most capacity fragments.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items:    make([]models.Fragment, capacity),
		capacity: capacity,
	}
}

// Push appends f, evicting the oldest fragment when the buffer is full.
// It reports whether an eviction happened and the depth after the push.
func (b *Buffer) Push(f models.Fragment) (evicted bool, depth int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % b.capacity
	b.items[tail] = f
	if b.size == b.capacity {
		b.head = (b.head + 1) % b.capacity
		b.evicted++
		return true, b.size
	}
	b.size++
	return false, b.size
}

// DrainAll removes and returns every buffered fragment in arrival order.
// Returns nil when the buffer is empty.
func (b *Buffer) DrainAll() []models.Fragment {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	out := make([]models.Fragment, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % b.capacity
		out[i] = b.items[idx]
		b.items[idx] = models.Fragment{}
	}
	b.head = 0
	b.size = 0
	return out
}

// Len returns the number of buffered fragments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the maximum number of buffered fragments.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Evicted returns how many fragments have been shed since creation.
func (b *Buffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
