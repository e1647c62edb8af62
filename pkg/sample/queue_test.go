package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushPop_Order(t *testing.T) {
	q := NewQueue(8)

	now := time.Now()
	for i := 0; i < 5; i++ {
		q.Push(RawSample{Channel: LeftDon, Value: uint16(i), Timestamp: now})
	}

	for i := 0; i < 5; i++ {
		s, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, uint16(i), s.Value, "samples should come out in FIFO order")
	}

	_, ok := q.Pop()
	assert.False(t, ok, "empty queue should not produce samples")
}

func TestQueue_Overflow_DropsOldest(t *testing.T) {
	q := NewQueue(4)

	now := time.Now()
	for i := 0; i < 7; i++ {
		q.Push(RawSample{Value: uint16(i), Timestamp: now})
	}

	assert.Equal(t, uint32(7), q.Produced())
	assert.Equal(t, uint32(3), q.Dropped(), "three oldest samples should be dropped")

	// The survivors are the newest four.
	want := []uint16{3, 4, 5, 6}
	for _, w := range want {
		s, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, w, s.Value)
	}
}

func TestQueue_Conservation(t *testing.T) {
	q := NewQueue(16)

	now := time.Now()
	total := 0
	// Interleave bursts and partial drains so the queue overflows several
	// times.
	for round := 0; round < 10; round++ {
		for i := 0; i < 25; i++ {
			q.Push(RawSample{Value: uint16(total), Timestamp: now})
			total++
		}
		for i := 0; i < 7; i++ {
			q.Pop()
		}
	}
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}

	assert.Equal(t, uint32(total), q.Produced())
	assert.Equal(t, q.Produced(), q.Dropped()+q.Processed(),
		"dropped + processed must equal total produced once drained")
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < QueueDepth; i++ {
		q.Push(RawSample{Value: uint16(i)})
	}
	assert.Equal(t, uint32(0), q.Dropped(), "queue should hold QueueDepth samples without drops")
	assert.Equal(t, QueueDepth, q.Len())
}
