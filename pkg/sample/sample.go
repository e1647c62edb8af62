package sample

import "time"

// Channel identifies one of the four piezoelectric sensors on the drum.
// The ordering matches the physical left-to-right sensor placement and is
// shared by the detector, the config store and the serial protocol.
type Channel uint8

const (
	LeftKat Channel = iota
	LeftDon
	RightDon
	RightKat

	// NumChannels is the number of sensor channels on the drum.
	NumChannels = 4
)

// String returns the sensor position name.
func (c Channel) String() string {
	switch c {
	case LeftKat:
		return "left-kat"
	case LeftDon:
		return "left-don"
	case RightDon:
		return "right-don"
	case RightKat:
		return "right-kat"
	}
	return "unknown"
}

// Valid reports whether c maps to a physical sensor.
func (c Channel) Valid() bool {
	return c < NumChannels
}

const (
	// MaxValue is the full-scale 12-bit ADC reading.
	MaxValue = 4095

	// Period is the fixed sampling period for one paired conversion cycle.
	// All four sensors are converted in lockstep once per period.
	Period = time.Millisecond

	// QueueDepth is the fixed capacity of the sample queue in samples:
	// 32 conversion cycles of four channels each.
	QueueDepth = 32 * NumChannels
)

// RawSample is a single amplitude reading from one sensor. Samples produced
// within the same conversion cycle share one timestamp.
type RawSample struct {
	Channel   Channel
	Value     uint16 // 12-bit ADC reading (0-4095)
	Timestamp time.Time
}
