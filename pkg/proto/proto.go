// Package proto implements the serial control protocol spoken between the
// drum firmware and the host configuration utility.
//
// Requests and responses share one frame shape: an opcode (or status) byte,
// a payload length byte, then the payload. Every request gets exactly one
// response; malformed or out-of-range requests are answered with a NAK and
// an error code and mutate nothing.
package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/not-forest/osu-taiko-drum/pkg/config"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

// Request opcodes.
const (
	OpGetConfig      byte = 0x01
	OpSetConfig      byte = 0x02
	OpSave           byte = 0x03
	OpFirmwareUpdate byte = 0xF0 // reserved, not implemented
	OpReboot         byte = 0xFF
)

// Response status bytes.
const (
	StatusAck byte = 0x06
	StatusNak byte = 0x15
)

// NAK error codes, carried as the single payload byte of a NAK response.
const (
	ErrCodeOpcode      byte = 0x01 // unknown opcode
	ErrCodeChannel     byte = 0x02 // channel id with no sensor
	ErrCodeField       byte = 0x03 // unknown SetConfig field
	ErrCodeRange       byte = 0x04 // value outside the field's valid range
	ErrCodeTruncated   byte = 0x05 // payload shorter than the opcode requires
	ErrCodeSave        byte = 0x06 // flash save did not complete cleanly
	ErrCodeUnsupported byte = 0x07 // reserved opcode
)

// SetConfig field selectors.
const (
	FieldKeycode     byte = 0x01
	FieldSensitivity byte = 0x02
	FieldWindow      byte = 0x03
)

// MaxPayload bounds a frame payload; longer length bytes are protocol
// violations and resynchronize the decoder.
const MaxPayload = 32

// Frame is one request or response on the wire.
type Frame struct {
	Opcode  byte // status byte for responses
	Payload []byte
}

// Processor executes protocol requests against the config store. It owns no
// transport: the firmware feeds it decoded frames from the serial endpoint.
type Processor struct {
	cfg    *config.Store
	reboot func()
}

// NewProcessor creates a processor over cfg. reboot is handed back from
// Handle as the Reboot request's post-response action; it may be nil on the
// host side.
func NewProcessor(cfg *config.Store, reboot func()) *Processor {
	return &Processor{cfg: cfg, reboot: reboot}
}

// Handle executes one request and returns the response frame, plus a
// follow-up action the caller must run only after the response has been
// transmitted (nil for most requests). A Reboot must be acknowledged before
// the device resets, so the reset itself is the follow-up. Handle never
// mutates any state when returning a NAK.
func (p *Processor) Handle(req Frame) (Frame, func()) {
	switch req.Opcode {
	case OpGetConfig:
		return Frame{Opcode: StatusAck, Payload: marshalConfig(p.cfg.Block())}, nil

	case OpSetConfig:
		return p.setConfig(req.Payload), nil

	case OpSave:
		if err := p.cfg.Save(); err != nil {
			log.Printf("Config save failed: %v", err)
			return nak(ErrCodeSave), nil
		}
		return Frame{Opcode: StatusAck}, nil

	case OpFirmwareUpdate:
		return nak(ErrCodeUnsupported), nil

	case OpReboot:
		return Frame{Opcode: StatusAck}, p.reboot
	}
	return nak(ErrCodeOpcode), nil
}

// setConfig applies one field update. Payload: channel, field, value (u16
// big-endian). The keycode field uses the low value byte.
func (p *Processor) setConfig(payload []byte) Frame {
	if len(payload) < 4 {
		return nak(ErrCodeTruncated)
	}
	ch := sample.Channel(payload[0])
	if !ch.Valid() {
		return nak(ErrCodeChannel)
	}
	value := binary.BigEndian.Uint16(payload[2:4])

	var err error
	switch payload[1] {
	case FieldKeycode:
		if value > 0xFF {
			return nak(ErrCodeRange)
		}
		err = p.cfg.SetKeycode(ch, byte(value))
	case FieldSensitivity:
		err = p.cfg.SetSensitivity(ch, value)
	case FieldWindow:
		err = p.cfg.SetWindow(ch, value)
	default:
		return nak(ErrCodeField)
	}
	if err != nil {
		return nak(ErrCodeRange)
	}
	return Frame{Opcode: StatusAck}
}

func nak(code byte) Frame {
	return Frame{Opcode: StatusNak, Payload: []byte{code}}
}

// marshalConfig lays the block out as the GetConfig response payload: the
// format version followed by four records of keycode, sensitivity (u16 BE)
// and window (u16 BE) in channel order. This matches the persisted record
// layout minus the integrity hash.
func marshalConfig(b config.Block) []byte {
	buf := make([]byte, 1+sample.NumChannels*5)
	buf[0] = b.Version
	for ch, c := range b.Channels {
		off := 1 + ch*5
		buf[off] = c.Keycode
		binary.BigEndian.PutUint16(buf[off+1:], c.Sensitivity)
		binary.BigEndian.PutUint16(buf[off+3:], c.Window)
	}
	return buf
}

// UnmarshalConfig parses a GetConfig response payload. The host utility and
// tests use it to read back the device configuration.
func UnmarshalConfig(payload []byte) (config.Block, error) {
	want := 1 + sample.NumChannels*5
	if len(payload) < want {
		return config.Block{}, fmt.Errorf("config payload too short: %d < %d", len(payload), want)
	}
	b := config.Block{Version: payload[0]}
	for ch := range b.Channels {
		off := 1 + ch*5
		b.Channels[ch] = config.ChannelConfig{
			Keycode:     payload[off],
			Sensitivity: binary.BigEndian.Uint16(payload[off+1:]),
			Window:      binary.BigEndian.Uint16(payload[off+3:]),
		}
	}
	return b, nil
}

// Encode serializes a frame to its wire form.
func Encode(f Frame) []byte {
	buf := make([]byte, 2+len(f.Payload))
	buf[0] = f.Opcode
	buf[1] = byte(len(f.Payload))
	copy(buf[2:], f.Payload)
	return buf
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds frame limit", len(f.Payload))
	}
	_, err := w.Write(Encode(f))
	return err
}

// ReadFrame reads one complete frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if int(hdr[1]) > MaxPayload {
		return Frame{}, fmt.Errorf("frame length %d exceeds limit", hdr[1])
	}
	payload := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Opcode: hdr[0], Payload: payload}, nil
}
