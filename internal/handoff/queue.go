// SPDX-License-Identifier: MIT

/*
Package handoff moves captured samples from the real-time capture callback
to the analysis tick.

Queue is a single-producer/single-consumer ring of float32 samples. The
producer side (Push) never blocks, never locks and never allocates; it is
safe to call from a PortAudio callback. The consumer side (Drain) takes
everything that is available and returns immediately when the ring is
empty.

The ring has a fixed capacity, set by audio.handoff_capacity. If the
consumer falls so far behind that the ring fills up, the samples that do not
fit are dropped and counted rather than stalling the callback or allocating
on it. The consumer reads the counter with Dropped and reports it from its
own goroutine. The ring is only a crossing point: the consumer moves
everything it drains into the frame assembler, whose backlog grows without
bound under the block policy.

Index layout: head and tail are free-running counters; the slot for index
i is i & mask. tail-head is the fill level and never exceeds the capacity.
*/
package handoff

import (
	"sync/atomic"

	"micspectrum/pkg/bitint"
)

// Reader is the consumer half of a Queue.
type Reader interface {
	// Drain appends every available sample to dst and returns the result.
	Drain(dst []float32) []float32
	// Dropped returns the total number of samples discarded because the
	// queue was full.
	Dropped() uint64
}

// Writer is the producer half of a Queue.
type Writer interface {
	Push(samples []float32) int
}

// cacheLinePad keeps the producer and consumer indices on separate cache
// lines.
type cacheLinePad [64]byte

// Queue is a lock-free single-producer/single-consumer sample ring.
type Queue struct {
	buf  []float32
	mask uint64

	_    cacheLinePad
	head atomic.Uint64 // Next slot to read. Written by the consumer only.
	_    cacheLinePad
	tail atomic.Uint64 // Next slot to write. Written by the producer only.
	_    cacheLinePad

	dropped atomic.Uint64
	pushes  atomic.Uint64
}

var (
	_ Reader = (*Queue)(nil)
	_ Writer = (*Queue)(nil)
)

// New creates a queue holding at least capacity samples. The capacity is
// rounded up to a power of two.
func New(capacity int) *Queue {
	size := bitint.NextPowerOfTwo(capacity)
	return &Queue{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
}

// Push copies as many samples as fit into the ring and returns how many
// were accepted. The rest are counted as dropped.
//
// Producer only. Real-time safe: no locks, no allocations.
func (q *Queue) Push(samples []float32) int {
	q.pushes.Add(1)

	tail := q.tail.Load()
	head := q.head.Load()
	free := uint64(len(q.buf)) - (tail - head)

	n := uint64(len(samples))
	if n > free {
		q.dropped.Add(n - free)
		n = free
	}

	// Copy in at most two runs: up to the end of the buffer, then from 0.
	start := tail & q.mask
	first := min(n, uint64(len(q.buf))-start)
	copy(q.buf[start:start+first], samples[:first])
	copy(q.buf[:n-first], samples[first:n])

	// Publishing tail after the copies makes them visible to the consumer.
	q.tail.Store(tail + n)
	return int(n)
}

// Drain appends every sample currently in the ring to dst, oldest first,
// and frees the slots. It never blocks.
//
// Consumer only.
func (q *Queue) Drain(dst []float32) []float32 {
	head := q.head.Load()
	tail := q.tail.Load()
	n := tail - head
	if n == 0 {
		return dst
	}

	start := head & q.mask
	first := min(n, uint64(len(q.buf))-start)
	dst = append(dst, q.buf[start:start+first]...)
	dst = append(dst, q.buf[:n-first]...)

	q.head.Store(tail)
	return dst
}

// Len returns the number of samples waiting to be drained.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the ring capacity in samples.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Dropped returns the total number of samples discarded by Push.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushes returns the number of Push calls, one per capture callback.
func (q *Queue) Pushes() uint64 {
	return q.pushes.Load()
}
