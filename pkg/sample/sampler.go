package sample

import "time"

// Source performs one lockstep conversion of all four sensors. The firmware
// backs this with paired hardware ADCs; tests use a scripted source.
type Source interface {
	// Convert samples every channel for the same instant and returns the
	// readings indexed by Channel.
	Convert() ([NumChannels]uint16, error)
}

// Sampler acquires one conversion cycle per Poll and pushes the readings
// into the queue with a shared timestamp. It runs at the highest priority in
// the firmware loop, so Poll never blocks and its execution time does not
// depend on queue state.
type Sampler struct {
	src Source
	q   *Queue
	now func() time.Time

	convErrors uint32
}

// NewSampler creates a sampler feeding q from src. now may be nil, in which
// case time.Now is used.
func NewSampler(src Source, q *Queue, now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	return &Sampler{src: src, q: q, now: now}
}

// Poll performs one paired conversion cycle. A conversion error skips the
// cycle and is counted; the sampling cadence is owned by the caller.
func (s *Sampler) Poll() {
	vals, err := s.src.Convert()
	if err != nil {
		s.convErrors++
		return
	}

	ts := s.now()
	for ch := Channel(0); ch < NumChannels; ch++ {
		s.q.Push(RawSample{Channel: ch, Value: vals[ch], Timestamp: ts})
	}
}

// ConversionErrors returns the number of skipped cycles.
func (s *Sampler) ConversionErrors() uint32 { return s.convErrors }
