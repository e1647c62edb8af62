//go:build tinygo

package main

import (
	kb "machine/usb/hid/keyboard"

	"github.com/not-forest/osu-taiko-drum/pkg/hid"
)

// keyboardSink adapts the USB HID keyboard endpoint to the emitter's report
// interface. It diffs consecutive reports and issues the matching key
// down/up transitions on the keyboard port.
type keyboardSink struct {
	port *kb.Keyboard
	prev hid.Report
}

func newKeyboardSink() *keyboardSink {
	return &keyboardSink{port: kb.Port()}
}

func (s *keyboardSink) SendReport(r hid.Report) error {
	// Release keys absent from the new report first, so a same-channel
	// re-press is seen by the host as two distinct strokes.
	for _, k := range s.prev.Keys() {
		if !contains(r.Keys(), k) {
			if kc, ok := usageToKeycode(k); ok {
				if err := s.port.Up(kc); err != nil {
					return err
				}
			}
		}
	}
	for _, k := range r.Keys() {
		if !contains(s.prev.Keys(), k) {
			if kc, ok := usageToKeycode(k); ok {
				if err := s.port.Down(kc); err != nil {
					return err
				}
			}
		}
	}
	s.prev = r
	return nil
}

func contains(keys []byte, k byte) bool {
	for _, v := range keys {
		if v == k {
			return true
		}
	}
	return false
}

// usageToKeycode maps a keyboard usage ID from the config store onto the
// TinyGo keyboard keycode space. Letters and digits cover every mapping the
// rhythm game needs; unmapped usages are skipped rather than mistranslated.
func usageToKeycode(usage byte) (kb.Keycode, bool) {
	switch {
	case usage >= 0x04 && usage <= 0x1D: // A-Z
		return kb.KeyA + kb.Keycode(usage-0x04), true
	case usage >= 0x1E && usage <= 0x27: // 1-9, 0
		return kb.Key1 + kb.Keycode(usage-0x1E), true
	case usage == 0x2C:
		return kb.KeySpace, true
	}
	return 0, false
}
