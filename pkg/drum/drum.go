// Package drum connects the host to the drum firmware's trace stream: one
// CSV line per sampling cycle carrying the four raw sensor amplitudes. The
// calibration tooling consumes it to characterize noise floors and strike
// energies without touching the device configuration.
package drum

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

const (
	// DefaultBaudRate matches the firmware's trace serial configuration.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default capacity of the records channel.
	DefaultBufferSize = 256
)

// Record is one lockstep conversion cycle from the trace stream.
type Record struct {
	Timestamp time.Time
	Values    [sample.NumChannels]uint16
}

// Device is a source of trace records, real or mocked.
type Device interface {
	Connect() error
	Close() error
	Records() <-chan Record
	IsConnected() bool
}

// parseLine parses one trace line from the firmware.
// Format: unix_micros,left_kat,left_don,right_don,right_kat
// Example: 1234567890123,2048,2051,2047,2050
func parseLine(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 1+sample.NumChannels {
		return Record{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d",
			1+sample.NumChannels, len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var rec Record
	rec.Timestamp = time.Unix(0, micros*1000)
	for ch := 0; ch < sample.NumChannels; ch++ {
		v, err := strconv.ParseUint(parts[1+ch], 10, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid %s value: %w", sample.Channel(ch), err)
		}
		if v > sample.MaxValue {
			return Record{}, fmt.Errorf("%s value out of range: %d (max %d)", sample.Channel(ch), v, sample.MaxValue)
		}
		rec.Values[ch] = uint16(v)
	}
	return rec, nil
}
