//go:build tinygo

//go:generate tinygo flash -target=xiao-rp2040

package main

import (
	"machine"
	"time"

	"github.com/not-forest/osu-taiko-drum/pkg/config"
	"github.com/not-forest/osu-taiko-drum/pkg/detect"
	"github.com/not-forest/osu-taiko-drum/pkg/hid"
	"github.com/not-forest/osu-taiko-drum/pkg/proto"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

// Emit the raw trace stream for drumscope. Costs serial bandwidth; turn off
// for release builds.
const TRACE_ENABLED = true

var (
	adcPiezos [sample.NumChannels]machine.ADC
	serial    = machine.Serial

	store     *config.Store
	queue     *sample.Queue
	sampler   *sample.Sampler
	detector  *detect.Detector
	emitter   *hid.Emitter
	processor *proto.Processor
	decoder   proto.Decoder

	// Last converted cycle, kept for the trace stream.
	lastValues [sample.NumChannels]uint16

	// Timing
	lastADCRead time.Time
	cycles      uint32
)

func main() {
	// Configure the four piezo pins as analog inputs.
	machine.InitADC()
	pins := [sample.NumChannels]machine.Pin{
		sample.LeftKat:  PIN_LEFT_KAT,
		sample.LeftDon:  PIN_LEFT_DON,
		sample.RightDon: PIN_RIGHT_DON,
		sample.RightKat: PIN_RIGHT_KAT,
	}
	for ch, pin := range pins {
		adcPiezos[ch] = machine.ADC{Pin: pin}
		adcPiezos[ch].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}

	// Boot configuration from the reserved flash page. A corrupt block
	// falls back to the compiled-in defaults inside Load.
	store = config.NewStore(newConfigPage())
	if err := store.Load(); err != nil {
		println("config load failed:", err.Error())
	}

	queue = sample.NewQueue(sample.QueueDepth)
	sampler = sample.NewSampler(piezoSource{}, queue, time.Now)
	emitter = hid.NewEmitter(store, newKeyboardSink())
	detector = detect.New(store, emitter.Emit)
	processor = proto.NewProcessor(store, reboot)

	lastADCRead = time.Now()

	// Main loop. Sampling cadence comes first and never depends on queue
	// or detector state; command handling and hit processing run in the
	// remaining slack of each period.
	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastADCRead) >= sample.Period {
			sampler.Poll()
			lastADCRead = now
			cycles++
			if TRACE_ENABLED && cycles%TRACE_DECIMATION == 0 {
				traceOutput(now)
			}
		}

		detector.Drain(queue)
		detector.Flush(now)
		emitter.Tick(now)

		// Small delay to prevent a tight loop while keeping the 1ms
		// sampling cadence.
		time.Sleep(50 * time.Microsecond)
	}
}

// piezoSource converts all four sensors back to back within one cycle. The
// four reads complete well inside one sampling period, so the shared
// timestamp assigned by the sampler holds for the whole quad.
type piezoSource struct{}

func (piezoSource) Convert() ([sample.NumChannels]uint16, error) {
	var vals [sample.NumChannels]uint16
	for ch := range adcPiezos {
		// Get returns a left-aligned 16-bit value; normalize to 12 bits.
		vals[ch] = adcPiezos[ch].Get() >> 4
	}
	lastValues = vals
	return vals, nil
}

// processSerial drains buffered protocol bytes and answers any completed
// frames. Reads are non-blocking; partial frames stay in the decoder.
func processSerial() {
	for serial.Buffered() > 0 {
		b, err := serial.ReadByte()
		if err != nil {
			break
		}
		if frame, ok := decoder.Feed(b); ok {
			resp, post := processor.Handle(frame)
			serial.Write(proto.Encode(resp))
			// A Reboot resets the CPU; the response must be on the
			// wire first.
			if post != nil {
				post()
			}
		}
	}
}

// traceOutput prints one trace line for the host-side calibration monitor.
// Format: "unix_micros,left_kat,left_don,right_don,right_kat\n"
func traceOutput(now time.Time) {
	print(now.UnixNano() / 1000)
	for _, v := range lastValues {
		print(",")
		print(v)
	}
	print("\n")
}

func reboot() {
	machine.CPUReset()
}
