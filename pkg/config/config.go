// Package config owns the per-channel tunable detection parameters and
// their persisted flash representation. The RAM mirror is the single
// authority at runtime: the command processor mutates it, the hit detector
// reads it, and an explicit Save persists it to the reserved flash page.
package config

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

const (
	// FormatVersion is the persisted layout version.
	FormatVersion = 1

	// MinWindow and MaxWindow bound the sliding-window width (sharpness).
	MinWindow = 1
	MaxWindow = 64

	// MinSensitivity and MaxSensitivity bound the threshold multiplier,
	// expressed in tenths (50 means 5.0 times the noise floor).
	MinSensitivity = 1
	MaxSensitivity = 1000

	// MinKeycode and MaxKeycode bound the mappable HID keyboard usages,
	// matching the usage range of the emitted keyboard report.
	MinKeycode = 0x04
	MaxKeycode = 0xDD
)

var (
	// ErrRange is returned when a field value is outside its valid range.
	ErrRange = errors.New("value out of range")
	// ErrChannel is returned for a channel id with no physical sensor.
	ErrChannel = errors.New("no such channel")
)

// ChannelConfig holds the host-tunable parameters of one sensor channel.
type ChannelConfig struct {
	Keycode     byte   // HID keyboard usage emitted on a hit
	Sensitivity uint16 // threshold multiplier in tenths
	Window      uint16 // sliding-window width (sharpness)
}

// Validate checks every field against its range.
func (c ChannelConfig) Validate() error {
	if c.Keycode < MinKeycode || c.Keycode > MaxKeycode {
		return fmt.Errorf("keycode 0x%02x: %w", c.Keycode, ErrRange)
	}
	if c.Sensitivity < MinSensitivity || c.Sensitivity > MaxSensitivity {
		return fmt.Errorf("sensitivity %d: %w", c.Sensitivity, ErrRange)
	}
	if c.Window < MinWindow || c.Window > MaxWindow {
		return fmt.Errorf("window %d: %w", c.Window, ErrRange)
	}
	return nil
}

// Block is the complete drum configuration mirrored in RAM and persisted in
// the reserved flash page.
type Block struct {
	Version  byte
	Channels [sample.NumChannels]ChannelConfig
}

// DefaultBlock returns the compiled-in configuration: Z/X/C/V hit mapping
// (HID usages), 5.0x sensitivity and a 32-sample window on every channel.
func DefaultBlock() Block {
	b := Block{Version: FormatVersion}
	keys := [sample.NumChannels]byte{
		sample.LeftKat:  0x1D, // Z
		sample.LeftDon:  0x1B, // X
		sample.RightDon: 0x06, // C
		sample.RightKat: 0x19, // V
	}
	for ch := range b.Channels {
		b.Channels[ch] = ChannelConfig{
			Keycode:     keys[ch],
			Sensitivity: 50,
			Window:      32,
		}
	}
	return b
}

// Store is the single owner of the configuration block. All access goes
// through it; readers always observe complete, internally consistent
// channel snapshots.
type Store struct {
	mu    sync.Mutex
	block Block
	flash Flash
}

// NewStore creates a store over the given flash page, initialized with the
// compiled-in defaults. Call Load to pick up a persisted block.
func NewStore(flash Flash) *Store {
	return &Store{block: DefaultBlock(), flash: flash}
}

// Channel returns a snapshot of one channel's configuration.
func (s *Store) Channel(ch sample.Channel) ChannelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ch.Valid() {
		return s.block.Channels[0]
	}
	return s.block.Channels[ch]
}

// Block returns a snapshot of the whole configuration.
func (s *Store) Block() Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}

// SetChannel validates and applies a full channel configuration. On error
// nothing is mutated.
func (s *Store) SetChannel(ch sample.Channel, cfg ChannelConfig) error {
	if !ch.Valid() {
		return fmt.Errorf("channel %d: %w", ch, ErrChannel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.block.Channels[ch] = cfg
	s.mu.Unlock()
	return nil
}

// SetKeycode updates a single channel's hit mapping.
func (s *Store) SetKeycode(ch sample.Channel, key byte) error {
	cfg := s.Channel(ch)
	cfg.Keycode = key
	return s.SetChannel(ch, cfg)
}

// SetSensitivity updates a single channel's threshold multiplier.
func (s *Store) SetSensitivity(ch sample.Channel, sens uint16) error {
	cfg := s.Channel(ch)
	cfg.Sensitivity = sens
	return s.SetChannel(ch, cfg)
}

// SetWindow updates a single channel's sliding-window width.
func (s *Store) SetWindow(ch sample.Channel, window uint16) error {
	cfg := s.Channel(ch)
	cfg.Window = window
	return s.SetChannel(ch, cfg)
}

// Load reads the persisted block and verifies its integrity hash. A block
// that cannot be trusted is replaced by the compiled-in defaults, which are
// re-persisted so the next boot reads a clean page. Acquisition must keep
// running either way, so corruption is recovered, not propagated.
func (s *Store) Load() error {
	buf := make([]byte, BlockSize)
	if err := s.flash.Read(buf); err != nil {
		return fmt.Errorf("failed to read config page: %w", err)
	}

	block, err := decodeBlock(buf)
	if err != nil {
		log.Printf("Stored configuration is not trusted (%v), using defaults", err)
		s.mu.Lock()
		s.block = DefaultBlock()
		s.mu.Unlock()
		if err := s.Save(); err != nil {
			log.Printf("Failed to re-persist default configuration: %v", err)
		}
		return nil
	}

	s.mu.Lock()
	s.block = block
	s.mu.Unlock()
	return nil
}

// Save recomputes the integrity hash over the RAM mirror, erases the
// reserved page and writes the new block. On failure the mirror stays
// authoritative and the error is reported to the caller; a torn write is
// detected by the next Load's hash check.
func (s *Store) Save() error {
	s.mu.Lock()
	buf := encodeBlock(s.block)
	s.mu.Unlock()

	if err := s.flash.Erase(); err != nil {
		return fmt.Errorf("failed to erase config page: %w", err)
	}
	if err := s.flash.Write(buf); err != nil {
		return fmt.Errorf("failed to write config block: %w", err)
	}
	return nil
}
