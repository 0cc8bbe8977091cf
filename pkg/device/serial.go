package device

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Serial represents a connection to the acquisition board over a serial port.
type Serial struct {
	*Stream

	port     string
	baudRate int
	settle   time.Duration
}

// NewSerial creates a new Serial instance with the specified port, baud rate
// and settle time. The settle time is waited after opening the port, since the
// board resets when the port is opened.
func NewSerial(port string, baudRate int, settle time.Duration, log *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	s := &Serial{
		port:     port,
		baudRate: baudRate,
		settle:   settle,
	}
	s.Stream = NewStream(s.openPort, DefaultBufferSize, log)
	return s
}

// Port returns the configured port name.
func (s *Serial) Port() string {
	return s.port
}

func (s *Serial) openPort() (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
	}

	port, err := serial.Open(s.port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	if s.settle > 0 {
		time.Sleep(s.settle)
	}

	// Discard whatever the board printed while booting
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", s.port, err)
	}

	return port, nil
}
