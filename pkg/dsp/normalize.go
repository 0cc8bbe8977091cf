package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateSignal is returned when a buffer cannot be min-max scaled.
var ErrDegenerateSignal = errors.New("degenerate signal")

// Normalize rescales buf to [0, 1]: y = (x - min) / (max - min).
// It returns a new slice; buf is not modified.
func Normalize(buf []float64) ([]float64, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDegenerateSignal)
	}

	lo, hi := buf[0], buf[0]
	for i, v := range buf {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite sample %g at index %d", ErrDegenerateSignal, v, i)
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}

	span := hi - lo
	if span == 0 {
		return nil, fmt.Errorf("%w: constant value %g", ErrDegenerateSignal, lo)
	}
	if math.IsInf(span, 0) {
		return nil, fmt.Errorf("%w: range [%g, %g] overflows", ErrDegenerateSignal, lo, hi)
	}

	out := make([]float64, len(buf))
	for i, v := range buf {
		out[i] = (v - lo) / span
	}
	return out, nil
}
