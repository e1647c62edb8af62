// Package hid maps classified hit events onto boot-keyboard HID reports.
package hid

import (
	"log"
	"time"

	"github.com/not-forest/osu-taiko-drum/pkg/config"
	"github.com/not-forest/osu-taiko-drum/pkg/detect"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

// HoldTime is how long a key stays down for one logical keypress. It must
// stay below the detector's refractory dead-time so a channel is always
// released before it can retrigger.
const HoldTime = 20 * time.Millisecond

// Keyboard usage IDs for the default hit mapping. Any usage within the
// config keycode range can be mapped; these are just the named defaults.
const (
	KeyC byte = 0x06
	KeyV byte = 0x19
	KeyX byte = 0x1B
	KeyZ byte = 0x1D
)

// Report is a boot-keyboard-compatible input report: modifier byte,
// reserved byte, six keycode slots.
type Report [8]byte

// NewReport builds a report with the given keycodes down. Keys beyond the
// six slots are ignored.
func NewReport(keys ...byte) Report {
	var r Report
	for i, k := range keys {
		if i == 6 {
			break
		}
		r[2+i] = k
	}
	return r
}

// Keys returns the non-zero keycodes currently down in the report.
func (r Report) Keys() []byte {
	keys := make([]byte, 0, 6)
	for _, k := range r[2:] {
		if k != 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Sink consumes assembled reports. The firmware adapts the USB HID keyboard
// endpoint; tests record what was sent.
type Sink interface {
	SendReport(Report) error
}

// Emitter turns each HitEvent into exactly one logical keypress: a key-down
// report on emit and a key-up once the hold interval elapses. Strikes on
// different channels that overlap in time combine into one multi-key report.
//
// Emitter never blocks; releases are driven by Tick from the same task that
// drains the sample queue.
type Emitter struct {
	cfg  *config.Store
	sink Sink

	down [sample.NumChannels]struct {
		key    byte
		until  time.Time
		active bool
	}
}

// NewEmitter creates an emitter resolving keycodes through cfg and writing
// reports to sink.
func NewEmitter(cfg *config.Store, sink Sink) *Emitter {
	return &Emitter{cfg: cfg, sink: sink}
}

// Emit presses the key mapped to the event's channel.
func (e *Emitter) Emit(ev detect.HitEvent) {
	if !ev.Channel.Valid() {
		return
	}
	d := &e.down[ev.Channel]

	// The refractory dead-time exceeds HoldTime, so the channel's key has
	// normally been released by the time it can hit again. Should the
	// timing constants ever disagree, release explicitly first to keep the
	// one-event-one-keypress contract.
	if d.active {
		d.active = false
		e.send()
	}

	d.key = e.cfg.Channel(ev.Channel).Keycode
	d.until = ev.Timestamp.Add(HoldTime)
	d.active = true
	e.send()
}

// Tick releases any keys whose hold interval has elapsed.
func (e *Emitter) Tick(now time.Time) {
	changed := false
	for ch := range e.down {
		d := &e.down[ch]
		if d.active && !now.Before(d.until) {
			d.active = false
			changed = true
		}
	}
	if changed {
		e.send()
	}
}

// Pressed reports whether the channel's key is currently down.
func (e *Emitter) Pressed(ch sample.Channel) bool {
	return ch.Valid() && e.down[ch].active
}

func (e *Emitter) report() Report {
	keys := make([]byte, 0, sample.NumChannels)
	for ch := range e.down {
		if e.down[ch].active {
			keys = append(keys, e.down[ch].key)
		}
	}
	return NewReport(keys...)
}

func (e *Emitter) send() {
	// A sink error must never stall hit processing; the report is simply
	// lost, like any other dropped USB frame.
	if err := e.sink.SendReport(e.report()); err != nil {
		log.Printf("Failed to send HID report: %v", err)
	}
}
