package proto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/not-forest/osu-taiko-drum/pkg/config"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

func newTestProcessor() (*Processor, *config.Store, *config.MemFlash) {
	flash := config.NewMemFlash()
	store := config.NewStore(flash)
	return NewProcessor(store, nil), store, flash
}

func setConfigReq(ch sample.Channel, field byte, value uint16) Frame {
	return Frame{Opcode: OpSetConfig, Payload: []byte{
		byte(ch), field, byte(value >> 8), byte(value),
	}}
}

func TestProcessor_GetConfig(t *testing.T) {
	p, store, _ := newTestProcessor()
	require.NoError(t, store.SetSensitivity(sample.LeftDon, 120))

	resp, post := p.Handle(Frame{Opcode: OpGetConfig})
	assert.Nil(t, post)
	require.Equal(t, StatusAck, resp.Opcode)

	got, err := UnmarshalConfig(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, store.Block(), got)
}

func TestProcessor_SetConfig_Fields(t *testing.T) {
	p, store, _ := newTestProcessor()

	resp, _ := p.Handle(setConfigReq(sample.RightKat, FieldKeycode, 0x07)) // D
	assert.Equal(t, StatusAck, resp.Opcode)

	resp, _ = p.Handle(setConfigReq(sample.RightKat, FieldSensitivity, 200))
	assert.Equal(t, StatusAck, resp.Opcode)

	resp, _ = p.Handle(setConfigReq(sample.RightKat, FieldWindow, 16))
	assert.Equal(t, StatusAck, resp.Opcode)

	assert.Equal(t, config.ChannelConfig{Keycode: 0x07, Sensitivity: 200, Window: 16},
		store.Channel(sample.RightKat))
}

func TestProcessor_SetConfig_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  Frame
		code byte
	}{
		{"bad channel", setConfigReq(sample.Channel(4), FieldKeycode, 0x1D), ErrCodeChannel},
		{"bad field", setConfigReq(sample.LeftKat, 0x09, 1), ErrCodeField},
		{"sensitivity out of range", setConfigReq(sample.LeftKat, FieldSensitivity, 1001), ErrCodeRange},
		{"window out of range", setConfigReq(sample.LeftKat, FieldWindow, 65), ErrCodeRange},
		{"keycode out of range", setConfigReq(sample.LeftKat, FieldKeycode, 0x01), ErrCodeRange},
		{"truncated payload", Frame{Opcode: OpSetConfig, Payload: []byte{0, FieldWindow}}, ErrCodeTruncated},
		{"empty payload", Frame{Opcode: OpSetConfig}, ErrCodeTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, store, _ := newTestProcessor()
			before := store.Block()

			resp, _ := p.Handle(tt.req)
			require.Equal(t, StatusNak, resp.Opcode)
			require.Len(t, resp.Payload, 1)
			assert.Equal(t, tt.code, resp.Payload[0])
			assert.Equal(t, before, store.Block(), "a NAKed request must not mutate the store")
		})
	}
}

func TestProcessor_Save(t *testing.T) {
	p, store, flash := newTestProcessor()
	require.NoError(t, store.SetWindow(sample.LeftKat, 8))

	resp, _ := p.Handle(Frame{Opcode: OpSave})
	assert.Equal(t, StatusAck, resp.Opcode)

	// The saved block survives a reboot.
	s2 := config.NewStore(flash)
	require.NoError(t, s2.Load())
	assert.Equal(t, uint16(8), s2.Channel(sample.LeftKat).Window)
}

func TestProcessor_Save_FlashFaultNaks(t *testing.T) {
	p, _, flash := newTestProcessor()
	flash.FailErase = true

	resp, _ := p.Handle(Frame{Opcode: OpSave})
	require.Equal(t, StatusNak, resp.Opcode)
	assert.Equal(t, ErrCodeSave, resp.Payload[0])
}

func TestProcessor_Reboot_ResetRunsAfterResponseWrite(t *testing.T) {
	flash := config.NewMemFlash()
	var order []string
	p := NewProcessor(config.NewStore(flash), func() { order = append(order, "cpu-reset") })

	resp, post := p.Handle(Frame{Opcode: OpReboot})
	assert.Equal(t, StatusAck, resp.Opcode)
	require.NotNil(t, post)
	assert.Empty(t, order, "the reset must not fire before the response is on the wire")

	// The firmware's serial path: write the response, then run the
	// follow-up.
	order = append(order, "write-response")
	post()
	assert.Equal(t, []string{"write-response", "cpu-reset"}, order)
}

func TestProcessor_ReservedAndUnknownOpcodes(t *testing.T) {
	p, _, _ := newTestProcessor()

	resp, _ := p.Handle(Frame{Opcode: OpFirmwareUpdate})
	require.Equal(t, StatusNak, resp.Opcode)
	assert.Equal(t, ErrCodeUnsupported, resp.Payload[0])

	resp, _ = p.Handle(Frame{Opcode: 0x7A})
	require.Equal(t, StatusNak, resp.Opcode)
	assert.Equal(t, ErrCodeOpcode, resp.Payload[0])
}

func TestDecoder_ReassemblesFragmentedStream(t *testing.T) {
	var d Decoder

	stream := append(Encode(setConfigReq(sample.LeftDon, FieldWindow, 16)),
		Encode(Frame{Opcode: OpGetConfig})...)

	var frames []Frame
	for _, b := range stream {
		if f, ok := d.Feed(b); ok {
			// The payload aliases the decoder buffer; copy before the
			// next Feed.
			frames = append(frames, Frame{Opcode: f.Opcode, Payload: append([]byte(nil), f.Payload...)})
		}
	}

	require.Len(t, frames, 2)
	assert.Equal(t, OpSetConfig, frames[0].Opcode)
	assert.Equal(t, []byte{byte(sample.LeftDon), FieldWindow, 0x00, 0x10}, frames[0].Payload)
	assert.Equal(t, OpGetConfig, frames[1].Opcode)
	assert.Empty(t, frames[1].Payload)
}

func TestDecoder_OversizeLengthResynchronizes(t *testing.T) {
	var d Decoder

	_, ok := d.Feed(OpSetConfig)
	require.False(t, ok)
	_, ok = d.Feed(MaxPayload + 1) // violating length byte
	require.False(t, ok)

	// The decoder must be ready for a fresh frame immediately.
	f, ok := d.Feed(OpSave)
	require.False(t, ok)
	f, ok = d.Feed(0)
	require.True(t, ok)
	assert.Equal(t, OpSave, f.Opcode)
}

func TestDecoder_Reset(t *testing.T) {
	var d Decoder

	d.Feed(OpSetConfig)
	d.Feed(4)
	d.Feed(0x00)
	d.Reset()

	f, ok := d.Feed(OpReboot)
	require.False(t, ok)
	f, ok = d.Feed(0)
	require.True(t, ok)
	assert.Equal(t, OpReboot, f.Opcode)
}

func TestFrame_WireRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := setConfigReq(sample.RightDon, FieldSensitivity, 75)

	require.NoError(t, WriteFrame(&buf, want))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFrame_WireLimits(t *testing.T) {
	var buf bytes.Buffer

	err := WriteFrame(&buf, Frame{Opcode: OpSetConfig, Payload: make([]byte, MaxPayload+1)})
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader([]byte{OpSetConfig, MaxPayload + 1}))
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader([]byte{OpSetConfig, 4, 0x00}))
	assert.Error(t, err, "a frame cut short must be reported")
}

func TestMarshalConfig_MatchesPersistedRecordLayout(t *testing.T) {
	b := config.DefaultBlock()
	payload := marshalConfig(b)

	require.Len(t, payload, 1+sample.NumChannels*5)
	assert.Equal(t, b.Version, payload[0])
	assert.Equal(t, byte(0x1D), payload[1], "first record starts with the left kat keycode")

	got, err := UnmarshalConfig(payload)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = UnmarshalConfig(payload[:10])
	assert.Error(t, err)
}
