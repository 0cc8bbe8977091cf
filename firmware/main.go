//go:build tinygo

//go:generate tinygo flash -target=arduino

package main

import (
	"machine"
	"strconv"
	"time"
)

var (
	adcs [len(channelPins)]machine.ADC
	uart = machine.UART0

	// Line buffer reused for every frame
	line [64]byte
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	machine.InitADC()
	for i, pin := range channelPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	interval := time.Duration(SAMPLE_INTERVAL_US) * time.Microsecond
	next := time.Now()
	for {
		// Read all channels back to back so a frame is one instant
		var values [len(channelPins)]uint16
		for i := range adcs {
			values[i] = adcs[i].Get() >> (16 - ADC_RESOLUTION)
		}
		writeFrame(values)

		next = next.Add(interval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		} else {
			// Fell behind; resync instead of bursting
			next = time.Now()
		}
	}
}

// writeFrame outputs "A0:v,A2:v,A3:v,A4:v,A5:v\n".
func writeFrame(values [len(channelPins)]uint16) {
	buf := line[:0]
	for i, v := range values {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, channelNames[i]...)
		buf = append(buf, ':')
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	buf = append(buf, '\n')
	uart.Write(buf)
}
