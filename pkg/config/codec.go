package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

// Persisted layout, fixed at the start of the reserved flash page:
//
//	offset 0   version byte
//	offset 1   four 5-byte channel records: keycode, sensitivity (u16 BE),
//	           window (u16 BE), ordered by sample.Channel
//	offset 21  CRC-32 (IEEE, big-endian) over the preceding 21 bytes
const (
	channelRecordSize = 5
	payloadSize       = 1 + sample.NumChannels*channelRecordSize

	// BlockSize is the total persisted size of the configuration block.
	BlockSize = payloadSize + 4
)

// ErrCorrupt marks a stored block whose hash or version check failed.
var ErrCorrupt = errors.New("config block corrupt")

func encodeBlock(b Block) []byte {
	buf := make([]byte, BlockSize)
	buf[0] = b.Version
	for ch, c := range b.Channels {
		off := 1 + ch*channelRecordSize
		buf[off] = c.Keycode
		binary.BigEndian.PutUint16(buf[off+1:], c.Sensitivity)
		binary.BigEndian.PutUint16(buf[off+3:], c.Window)
	}
	binary.BigEndian.PutUint32(buf[payloadSize:], crc32.ChecksumIEEE(buf[:payloadSize]))
	return buf
}

func decodeBlock(buf []byte) (Block, error) {
	if len(buf) < BlockSize {
		return Block{}, fmt.Errorf("short block (%d bytes): %w", len(buf), ErrCorrupt)
	}

	want := binary.BigEndian.Uint32(buf[payloadSize:BlockSize])
	if got := crc32.ChecksumIEEE(buf[:payloadSize]); got != want {
		return Block{}, fmt.Errorf("hash mismatch (got 0x%08x, want 0x%08x): %w", got, want, ErrCorrupt)
	}

	b := Block{Version: buf[0]}
	if b.Version != FormatVersion {
		return Block{}, fmt.Errorf("unsupported format version %d: %w", b.Version, ErrCorrupt)
	}

	for ch := range b.Channels {
		off := 1 + ch*channelRecordSize
		b.Channels[ch] = ChannelConfig{
			Keycode:     buf[off],
			Sensitivity: binary.BigEndian.Uint16(buf[off+1:]),
			Window:      binary.BigEndian.Uint16(buf[off+3:]),
		}
	}
	return b, nil
}
