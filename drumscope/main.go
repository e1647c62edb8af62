// Command drumscope is a passive calibration monitor for the taiko drum
// firmware. It records the firmware's trace stream, tracks per-channel noise
// floors and strike energies, and suggests sensitivity values for the
// configuration utility. It never sends configuration commands itself.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/not-forest/osu-taiko-drum/pkg/drum"
	"github.com/not-forest/osu-taiko-drum/pkg/sample"
)

func main() {
	settingsPath := flag.String("config", "drumscope.yaml", "settings file path")
	useMock := flag.Bool("mock", false, "use a simulated drum instead of a serial port")
	listPorts := flag.Bool("ports", false, "list available serial ports and exit")
	flag.Parse()

	if *listPorts {
		ports, err := drum.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	settings, err := LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	var dev drum.Device
	if *useMock {
		dev = drum.NewMock(drum.MockConfig{})
	} else {
		dev = drum.NewSerial(settings.Serial.Port, settings.Serial.Baud, 0)
	}

	if err := dev.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer dev.Close()

	an := newAnalyzer(settings.Analysis.Window)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	report := time.NewTicker(settings.Analysis.ReportPeriod)
	defer report.Stop()

	log.Printf("Recording trace stream. Press Ctrl+C for the calibration summary.")
	for {
		select {
		case rec, ok := <-dev.Records():
			if !ok {
				an.summary()
				return
			}
			an.feed(rec)
		case <-report.C:
			an.report()
		case <-sig:
			an.summary()
			return
		}
	}
}

// analyzer accumulates windowed energy statistics per channel, using the
// same sum-of-squared-deviations metric as the firmware detector.
type analyzer struct {
	width int

	window [sample.NumChannels][]int32
	head   [sample.NumChannels]int
	filled [sample.NumChannels]int
	sum    [sample.NumChannels]int64

	floor   [sample.NumChannels]float64 // EMA of quiet energy
	peak    [sample.NumChannels]float64 // largest energy seen
	records uint64

	recent [sample.NumChannels][]float64 // recent energies for the sparkline
}

func newAnalyzer(width int) *analyzer {
	a := &analyzer{width: width}
	for ch := range a.window {
		a.window[ch] = make([]int32, width)
		a.recent[ch] = make([]float64, 0, 1024)
	}
	return a
}

func (a *analyzer) feed(rec drum.Record) {
	a.records++
	const mid = (sample.MaxValue + 1) / 2
	for ch := 0; ch < sample.NumChannels; ch++ {
		dev := int32(rec.Values[ch]) - mid
		sq := dev * dev
		if a.filled[ch] == a.width {
			a.sum[ch] -= int64(a.window[ch][a.head[ch]])
		} else {
			a.filled[ch]++
		}
		a.window[ch][a.head[ch]] = sq
		a.sum[ch] += int64(sq)
		a.head[ch] = (a.head[ch] + 1) % a.width

		if a.filled[ch] < a.width {
			continue
		}
		e := float64(a.sum[ch])
		if e > a.peak[ch] {
			a.peak[ch] = e
		}
		if a.floor[ch] == 0 {
			a.floor[ch] = e
		} else if e < a.floor[ch]*4 {
			// Only quiet samples feed the floor estimate.
			a.floor[ch] += (e - a.floor[ch]) / 16
		}
		a.recent[ch] = append(a.recent[ch], e)
	}
}

func (a *analyzer) report() {
	for ch := 0; ch < sample.NumChannels; ch++ {
		line := downsample(a.recent[ch], 32)
		log.Printf("%-10s floor=%-10.0f peak=%-12.0f %s",
			sample.Channel(ch), a.floor[ch], a.peak[ch], sparkline(line))
		a.recent[ch] = a.recent[ch][:0]
	}
}

func (a *analyzer) summary() {
	fmt.Printf("\nRecorded %d cycles.\n", a.records)
	fmt.Printf("%-10s %-12s %-12s %s\n", "channel", "noise floor", "peak energy", "suggested sensitivity")
	for ch := 0; ch < sample.NumChannels; ch++ {
		fmt.Printf("%-10s %-12.0f %-12.0f %d\n",
			sample.Channel(ch), a.floor[ch], a.peak[ch], suggestSensitivity(a.floor[ch], a.peak[ch]))
	}
}

// suggestSensitivity places the threshold at a quarter of the typical peak
// energy, expressed in the firmware's tenths-of-multiplier unit.
func suggestSensitivity(floor, peak float64) int {
	if floor <= 0 || peak <= floor {
		return 0
	}
	sens := int(peak / floor * 0.25 * 10)
	if sens < 1 {
		sens = 1
	}
	if sens > 1000 {
		sens = 1000
	}
	return sens
}

// downsample reduces src to at most maxPoints values by taking the maximum
// of each bucket, so short strikes stay visible.
func downsample(src []float64, maxPoints int) []float64 {
	if len(src) <= maxPoints {
		return src
	}
	out := make([]float64, 0, maxPoints)
	step := float64(len(src)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		lo, hi := int(float64(i)*step), int(float64(i+1)*step)
		if hi > len(src) {
			hi = len(src)
		}
		max := src[lo]
		for _, v := range src[lo:hi] {
			if v > max {
				max = v
			}
		}
		out = append(out, max)
	}
	return out
}

var sparks = []rune(" .:-=+*#%@")

func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	var max float64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := int(v / max * float64(len(sparks)-1))
		out[i] = sparks[idx]
	}
	return string(out)
}
