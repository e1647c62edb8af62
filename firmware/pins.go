//go:build tinygo

package main

import "machine"

const (
	// Piezo sensor ADC pins, left to right across the drum face.
	// Each side pairs an edge (kat) sensor with a center (don) sensor.
	PIN_LEFT_KAT  = machine.A0
	PIN_LEFT_DON  = machine.A1
	PIN_RIGHT_DON = machine.A2
	PIN_RIGHT_KAT = machine.A3

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Trace stream decimation: emit one trace line per this many cycles.
	// The control protocol is a few bytes per request; the trace stream is
	// the sizing constraint: "unix_micros,lk,ld,rd,rk\n" = ~40 bytes max
	// per cycle. At every 8th cycle that is 125 lines/sec * 40 bytes =
	// 5,000 bytes/sec, comfortably inside the CDC serial link's throughput.
	TRACE_DECIMATION = 8
)
