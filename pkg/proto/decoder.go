package proto

// Decoder reassembles frames from a byte stream one byte at a time. The
// firmware feeds it from the serial receive path, where reads are
// non-blocking and frames arrive in fragments.
type Decoder struct {
	buf [2 + MaxPayload]byte
	n   int
}

// Feed consumes one byte. When it completes a frame, ok is true and the
// returned frame's payload references the decoder's internal buffer, valid
// until the next Feed. A length byte beyond MaxPayload discards the partial
// frame and resynchronizes on the following byte.
func (d *Decoder) Feed(b byte) (f Frame, ok bool) {
	d.buf[d.n] = b
	d.n++

	if d.n == 2 && int(d.buf[1]) > MaxPayload {
		d.n = 0
		return Frame{}, false
	}
	if d.n >= 2 && d.n == 2+int(d.buf[1]) {
		f = Frame{Opcode: d.buf[0], Payload: d.buf[2:d.n]}
		d.n = 0
		return f, true
	}
	return Frame{}, false
}

// Reset discards any partial frame.
func (d *Decoder) Reset() { d.n = 0 }
