package drum

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

// MockConfig parameterizes the simulated drum.
type MockConfig struct {
	NoiseLevel   uint16        // peak background noise around mid-range, in ADC counts
	StrikeLevel  uint16        // initial strike amplitude, in ADC counts
	StrikePeriod time.Duration // time between simulated strikes
	StrikeDecay  time.Duration // ring-down time constant of a strike
	SampleRate   time.Duration // trace record period
}

// Mock simulates the drum's trace stream: quiet biased noise on every
// channel and a periodic decaying strike that rotates through the channels.
// Used by the calibration tooling and tests when no hardware is attached.
type Mock struct {
	cfg MockConfig

	records   chan Record
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	startTime  time.Time
	lastStrike time.Time
	strikeCh   sample.Channel
}

var _ Device = (*Mock)(nil)

// NewMock creates a simulated drum. Zero config fields get usable defaults.
func NewMock(cfg MockConfig) *Mock {
	if cfg.NoiseLevel == 0 {
		cfg.NoiseLevel = 8
	}
	if cfg.StrikeLevel == 0 {
		cfg.StrikeLevel = 1200
	}
	if cfg.StrikePeriod == 0 {
		cfg.StrikePeriod = 2 * time.Second
	}
	if cfg.StrikeDecay == 0 {
		cfg.StrikeDecay = 40 * time.Millisecond
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = sample.Period
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:     cfg,
		records: make(chan Record, DefaultBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect starts generating records.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()
	m.lastStrike = m.startTime

	go m.generateRecords()

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false

	return nil
}

// Records returns the channel of simulated records.
func (m *Mock) Records() <-chan Record {
	return m.records
}

// IsConnected reports whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// generateRecords owns the records channel and closes it on shutdown, so a
// concurrent Close cannot race a send against the close.
func (m *Mock) generateRecords() {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()
	defer close(m.records)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			rec := m.generateRecord()
			select {
			case m.records <- rec:
			case <-m.ctx.Done():
				return
			default:
				// Channel full, skip.
			}
		}
	}
}

// generateRecord produces one cycle: noise on all channels plus a decaying
// oscillation on the channel currently being struck.
func (m *Mock) generateRecord() Record {
	now := time.Now()
	elapsed := now.Sub(m.startTime)
	sinceStrike := now.Sub(m.lastStrike)

	if sinceStrike >= m.cfg.StrikePeriod {
		m.mu.Lock()
		m.lastStrike = now
		m.strikeCh = (m.strikeCh + 1) % sample.NumChannels
		m.mu.Unlock()
		sinceStrike = 0
	}

	var rec Record
	rec.Timestamp = now

	mid := float64(sample.MaxValue+1) / 2
	for ch := sample.Channel(0); ch < sample.NumChannels; ch++ {
		// Deterministic pseudo-noise, phase-shifted per channel.
		phase := float64(elapsed.Nanoseconds()) * (0.001 + 0.0003*float64(ch))
		v := mid + (math.Sin(phase)+math.Cos(phase*1.3))*float64(m.cfg.NoiseLevel)*0.5

		if ch == m.strikeCh {
			decay := math.Exp(-sinceStrike.Seconds() / m.cfg.StrikeDecay.Seconds())
			ring := math.Sin(2 * math.Pi * 220 * sinceStrike.Seconds())
			v += float64(m.cfg.StrikeLevel) * decay * ring
		}

		if v < 0 {
			v = 0
		} else if v > sample.MaxValue {
			v = sample.MaxValue
		}
		rec.Values[ch] = uint16(v)
	}
	return rec
}
