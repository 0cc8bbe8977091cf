package device

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Channel identifies one analog input of the sensor board.
type Channel int

const (
	A0 Channel = iota
	A2
	A3
	A4
	A5
)

// NumChannels is the number of channels carried by every frame.
const NumChannels = 5

// Channels lists all channels in wire and export order.
var Channels = [NumChannels]Channel{A0, A2, A3, A4, A5}

var channelNames = [NumChannels]string{"A0", "A2", "A3", "A4", "A5"}

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// Frame holds one synchronized reading per channel, indexed by Channel.
type Frame [NumChannels]float64

// frameMarker must appear in every frame line.
const frameMarker = "A0:"

// ErrProtocol is matched by every frame parse failure.
var ErrProtocol = errors.New("protocol error")

// ParseError describes a rejected frame line.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid frame %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid frame %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ParseError as ErrProtocol.
func (e *ParseError) Is(target error) bool { return target == ErrProtocol }

// ParseFrame parses a line from the board into a Frame.
// Format: A0:<float>,A2:<float>,A3:<float>,A4:<float>,A5:<float>
// Example: A0:512.0,A2:498.25,A3:530,A4:505.5,A5:511
//
// Values are taken positionally from the first five fields; anything after
// the fifth field is ignored. A line is either accepted whole or rejected.
func ParseFrame(line string) (Frame, error) {
	if !strings.Contains(line, frameMarker) {
		return Frame{}, &ParseError{Line: line, Reason: "missing " + frameMarker + " marker"}
	}

	fields := strings.Split(line, ",")
	if len(fields) < NumChannels {
		return Frame{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d comma-separated values, got %d", NumChannels, len(fields)),
		}
	}

	var f Frame
	for i := range NumChannels {
		_, value, ok := strings.Cut(fields[i], ":")
		if !ok {
			return Frame{}, &ParseError{Line: line, Reason: fmt.Sprintf("field %d has no tag separator", i)}
		}

		value = strings.TrimSpace(value)
		if !isDecimal(value) {
			return Frame{}, &ParseError{Line: line, Reason: fmt.Sprintf("%s value %q is not decimal", Channels[i], value)}
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Frame{}, &ParseError{Line: line, Reason: fmt.Sprintf("invalid %s value", Channels[i]), Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Frame{}, &ParseError{Line: line, Reason: fmt.Sprintf("non-finite %s value", Channels[i])}
		}
		f[i] = v
	}

	return f, nil
}

// isDecimal reports whether s uses only decimal number characters. It keeps
// hex floats, infinities and NaN out of ParseFloat.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '+', r == '-', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

// Format renders a frame in wire format.
func (f Frame) Format() string {
	var b strings.Builder
	for i, ch := range Channels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(ch.String())
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(f[i], 'f', -1, 64))
	}
	return b.String()
}
