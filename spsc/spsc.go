// Package spsc implements a bounded lock-free single-producer
// single-consumer queue of buffer offsets.
//
// Exactly one goroutine may call TryPush and exactly one goroutine may
// call TryPop. The two roles may (and usually do) run concurrently.
package spsc

import "sync/atomic"

// OffsetQueue is a fixed-capacity ring of uint64 offsets with separate
// head/tail cursors.
//
// head is written only by the consumer, tail only by the producer.
// The cursors live on separate cache lines so the two sides never
// invalidate each other's line on push/pop.
type OffsetQueue struct {
	_    [64]byte
	head atomic.Uint64 // next slot to pop (consumer)
	_    [64]byte
	tail atomic.Uint64 // next slot to fill (producer)
	_    [64]byte

	slots []uint64
}

// New returns a queue that can hold up to capacity offsets.
// One extra slot is allocated internally to distinguish full from empty.
func New(capacity int) *OffsetQueue {
	if capacity < 1 {
		panic("spsc: capacity must be >= 1")
	}
	return &OffsetQueue{slots: make([]uint64, capacity+1)}
}

// Capacity returns the maximum number of offsets the queue can hold.
func (q *OffsetQueue) Capacity() int { return len(q.slots) - 1 }

// Len returns the number of offsets currently queued.
// It is exact only when called from one of the two owning goroutines;
// from anywhere else it is a point-in-time approximation.
func (q *OffsetQueue) Len() int {
	size := uint64(len(q.slots))
	h := q.head.Load()
	t := q.tail.Load()
	return int((t + size - h) % size)
}

// TryPush appends offset and reports whether there was room.
// It never blocks. Producer side only.
func (q *OffsetQueue) TryPush(offset uint64) bool {
	size := uint64(len(q.slots))
	t := q.tail.Load()
	next := t + 1
	if next == size {
		next = 0
	}
	if next == q.head.Load() {
		return false // full
	}
	q.slots[t] = offset
	q.tail.Store(next)
	return true
}

// TryPop removes and returns the oldest offset.
// The second return value is false when the queue is empty.
// It never blocks. Consumer side only.
func (q *OffsetQueue) TryPop() (uint64, bool) {
	h := q.head.Load()
	if h == q.tail.Load() {
		return 0, false // empty
	}
	offset := q.slots[h]
	next := h + 1
	if next == uint64(len(q.slots)) {
		next = 0
	}
	q.head.Store(next)
	return offset, true
}
