// Package detect turns the raw piezo sample stream into discrete,
// debounced hit events.
//
// Energy metric: for each channel the detector keeps a sliding window of the
// last W amplitudes (W = the channel's configured sharpness) and computes the
// sum of squared deviations from the ADC mid-range as an O(1) running sum.
// The metric is deterministic and strictly monotonic in amplitude magnitude,
// which is all the threshold logic relies on.
package detect

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/not-forest/osu-taiko-drum/pkg/config"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

const (
	// Refractory is the dead-time after a registered hit during which the
	// channel cannot retrigger. Tuned empirically against drum rolls.
	Refractory = 25 * time.Millisecond

	// Coincidence is the window within which peaks on distinct channels
	// are treated as crosstalk from a single mechanical impact.
	Coincidence = 4 * time.Millisecond

	// midRange is the resting level of the 12-bit biased piezo signal.
	midRange = 2048

	// noiseAlpha is the smoothing factor of the noise-floor moving average.
	noiseAlpha = float32(1) / 16

	// minFloor keeps the adaptive threshold from collapsing to zero on a
	// perfectly quiet channel.
	minFloor = 1.0
)

// HitEvent is one classified strike on a sensor channel.
type HitEvent struct {
	Channel   sample.Channel
	Peak      float32 // windowed energy at the registered peak
	Timestamp time.Time
}

type state uint8

const (
	stateIdle state = iota
	stateRising
	stateRefractory
)

// channelState is the per-channel detection state. It lives for the device
// uptime and is mutated only by the detector.
type channelState struct {
	// Sliding window of squared deviations, as a ring with a running sum.
	window [config.MaxWindow]int32
	width  int
	head   int
	filled int
	sum    int64

	floor    float32
	floorSet bool

	st              state
	prevEnergy      float32
	refractoryUntil time.Time
}

// Detector consumes queued samples and emits hit events through a callback.
// It is driven entirely by sample timestamps; it never blocks and never
// faults on out-of-range configuration, which is clamped before use.
type Detector struct {
	cfg      *config.Store
	channels [sample.NumChannels]channelState
	onHit    func(HitEvent)

	// Crosstalk arbitration: the strongest peak seen within the
	// coincidence window is held here until the window elapses.
	pending    HitEvent
	pendingSet bool
	flushAt    time.Time
}

// New creates a detector reading live parameters from store and delivering
// events to onHit. The callback runs on the caller's goroutine and must not
// block.
func New(store *config.Store, onHit func(HitEvent)) *Detector {
	return &Detector{cfg: store, onHit: onHit}
}

// Feed processes one sample through the channel's state machine.
func (d *Detector) Feed(s sample.RawSample) {
	if !s.Channel.Valid() {
		return
	}
	d.Flush(s.Timestamp)

	cfg := d.cfg.Channel(s.Channel)
	width := clampWindow(cfg.Window)
	c := &d.channels[s.Channel]

	if c.width != width {
		c.reconfigure(width)
	}

	dev := int32(s.Value) - midRange
	sq := dev * dev
	if c.filled == c.width {
		c.sum -= int64(c.window[c.head])
	} else {
		c.filled++
	}
	c.window[c.head] = sq
	c.sum += int64(sq)
	c.head = (c.head + 1) % c.width

	// No classification until the window has filled once.
	if c.filled < c.width {
		return
	}

	d.step(s.Channel, c, float32(c.sum), cfg.Sensitivity, s.Timestamp)
}

// Drain feeds every currently queued sample and returns how many were
// processed. The firmware task calls this whenever the queue is non-empty.
func (d *Detector) Drain(q *sample.Queue) int {
	n := 0
	for {
		s, ok := q.Pop()
		if !ok {
			return n
		}
		d.Feed(s)
		n++
	}
}

// Flush emits a pending crosstalk winner once its coincidence window has
// elapsed. Feed flushes automatically; the firmware loop also calls this so
// a hit is not held back when sampling pauses.
func (d *Detector) Flush(now time.Time) {
	if d.pendingSet && !now.Before(d.flushAt) {
		d.pendingSet = false
		if d.onHit != nil {
			d.onHit(d.pending)
		}
	}
}

// step advances one channel's IDLE -> RISING -> REFRACTORY machine for a
// freshly computed window energy.
func (d *Detector) step(ch sample.Channel, c *channelState, energy float32, sens uint16, ts time.Time) {
	switch c.st {
	case stateIdle:
		if !c.floorSet {
			c.floor = math32.Max(energy, minFloor)
			c.floorSet = true
		}
		threshold := c.floor * multiplier(sens)
		if energy > threshold {
			c.st = stateRising
			c.prevEnergy = energy
			return
		}
		// Track the floor only while no hit is rising, so the hit's own
		// energy never drags the threshold up.
		c.floor = math32.Max(c.floor+noiseAlpha*(energy-c.floor), minFloor)

	case stateRising:
		if energy > c.prevEnergy {
			c.prevEnergy = energy
			return
		}
		// Energy stopped increasing: register the last strictly-increasing
		// value as the peak and arm the dead-time. A single mechanical
		// impact therefore produces at most one event.
		c.st = stateRefractory
		c.refractoryUntil = ts.Add(Refractory)
		d.peak(HitEvent{Channel: ch, Peak: c.prevEnergy, Timestamp: ts})

	case stateRefractory:
		if !ts.Before(c.refractoryUntil) {
			c.st = stateIdle
		}
	}
}

// peak arbitrates crosstalk between channels. Peaks on distinct channels
// within the coincidence window collapse to the single strongest one; the
// suppressed channel is already in REFRACTORY and emits nothing.
func (d *Detector) peak(ev HitEvent) {
	if !d.pendingSet {
		d.pending = ev
		d.pendingSet = true
		d.flushAt = ev.Timestamp.Add(Coincidence)
		return
	}
	if ev.Timestamp.Before(d.flushAt) {
		if ev.Peak > d.pending.Peak {
			d.pending = ev
		}
		return
	}
	prev := d.pending
	d.pending = ev
	d.flushAt = ev.Timestamp.Add(Coincidence)
	if d.onHit != nil {
		d.onHit(prev)
	}
}

// reconfigure applies a new window width. The accumulated window contents
// are meaningless at a different width, so they are discarded and a rising
// edge in progress is abandoned. Window energy scales with width, so the
// noise floor is re-seeded from the first full window at the new width; an
// armed dead-time survives.
func (c *channelState) reconfigure(width int) {
	c.width = width
	c.head = 0
	c.filled = 0
	c.sum = 0
	c.floorSet = false
	if c.st == stateRising {
		c.st = stateIdle
	}
}

func clampWindow(w uint16) int {
	if w < config.MinWindow {
		return config.MinWindow
	}
	if w > config.MaxWindow {
		return config.MaxWindow
	}
	return int(w)
}

func multiplier(sens uint16) float32 {
	if sens < config.MinSensitivity {
		sens = config.MinSensitivity
	} else if sens > config.MaxSensitivity {
		sens = config.MaxSensitivity
	}
	return float32(sens) / 10
}
