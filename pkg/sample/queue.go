package sample

import "sync/atomic"

// Queue is the fixed-capacity buffer between the sampler and the hit
// detector. Single producer, single consumer. The capacity never changes
// after construction.
//
// When the queue is full the oldest unread sample is dropped so that the
// sampler keeps its cadence and the consumer sees bounded latency. Drops are
// counted, never reported as errors.
type Queue struct {
	ch chan RawSample

	produced  atomic.Uint32
	dropped   atomic.Uint32
	processed atomic.Uint32
}

// NewQueue creates a queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = QueueDepth
	}
	return &Queue{ch: make(chan RawSample, capacity)}
}

// Push enqueues a sample without blocking. On overflow the oldest sample is
// discarded to make room. Execution time is bounded and independent of the
// consumer.
func (q *Queue) Push(s RawSample) {
	q.produced.Add(1)

	select {
	case q.ch <- s:
		return
	default:
	}

	// Full: evict the oldest sample, then retry once. With a single
	// producer the retry slot is guaranteed to be free.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- s:
	default:
		q.dropped.Add(1)
	}
}

// Pop dequeues the oldest sample without blocking. ok is false when the
// queue is empty.
func (q *Queue) Pop() (s RawSample, ok bool) {
	select {
	case s = <-q.ch:
		q.processed.Add(1)
		return s, true
	default:
		return RawSample{}, false
	}
}

// Len returns the number of samples currently buffered.
func (q *Queue) Len() int { return len(q.ch) }

// Produced returns the total number of samples ever pushed.
func (q *Queue) Produced() uint32 { return q.produced.Load() }

// Dropped returns the diagnostic overflow counter.
func (q *Queue) Dropped() uint32 { return q.dropped.Load() }

// Processed returns the number of samples handed to the consumer.
func (q *Queue) Processed() uint32 { return q.processed.Load() }
