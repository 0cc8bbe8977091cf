//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_US = 4000 // 250 Hz per channel

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 10   // Frames carry 0-1023 counts

	// Serial configuration
	// Longest line: "A0:1023,A2:1023,A3:1023,A4:1023,A5:1023\n" = 40 bytes
	// 250 lines/sec * 40 bytes/line = 10,000 bytes/sec
	// UART 8N1: 10 bits/byte = 100,000 baud minimum
	// 115200 leaves ~15% headroom
	UART_BAUD_RATE = 115200
)

// Electrode inputs in frame order. A1 is not wired on the sensor board.
var channelPins = [...]machine.Pin{machine.A0, machine.A2, machine.A3, machine.A4, machine.A5}

var channelNames = [...]string{"A0", "A2", "A3", "A4", "A5"}
