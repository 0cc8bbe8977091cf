package device

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the baud rate used by the acquisition firmware.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the lines channel buffer.
	DefaultBufferSize = 256
)

// Device is a source of frame lines (real or mocked).
//
// Lines is valid after a successful Connect and is closed when the device
// stops producing lines, either because Close was called or because the
// underlying connection ended. Err reports why a connection ended.
type Device interface {
	Connect() error
	Close() error
	Lines() <-chan string
	Err() error
	IsConnected() bool
}

var (
	_ Device = (*Stream)(nil)
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Fall back to plain names when USB details are not available
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		result := make([]Port, 0, len(names))
		for _, name := range names {
			result = append(result, Port{Name: name, Description: name})
		}
		return result, nil
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = fmt.Sprintf("%s [%s:%s]", d.Product, d.VID, d.PID)
			if d.SerialNumber != "" {
				desc += " " + d.SerialNumber
			}
		}
		result = append(result, Port{Name: d.Name, Description: desc})
	}

	return result, nil
}
