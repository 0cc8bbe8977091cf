package export

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/itohio/emgcap/pkg/device"
	"github.com/itohio/emgcap/pkg/metadata"
)

// Decimals is the precision of exported values.
const Decimals = 4

// ErrPrecondition is returned when buffers or metadata cannot be exported.
var ErrPrecondition = errors.New("export precondition failed")

// Row is one exported record: the session key followed by the flattened
// channel values A0..A5, each channel contributing a contiguous block.
type Row struct {
	SessionID string
	Variation metadata.Variation
	Values    []float64
}

// Len returns the number of values in the row.
func (r Row) Len() int {
	return len(r.Values)
}

// Channel returns the block of values belonging to channel c.
func (r Row) Channel(c device.Channel) []float64 {
	n := len(r.Values) / device.NumChannels
	return r.Values[int(c)*n : (int(c)+1)*n]
}

// Assemble flattens raw and normalized buffers into rows. Values are
// rounded to Decimals places. On a precondition failure nothing is returned.
func Assemble(meta metadata.Session, raw, norm [device.NumChannels][]float64) (Row, Row, error) {
	if meta.ID == "" {
		return Row{}, Row{}, fmt.Errorf("%w: missing session ID", ErrPrecondition)
	}
	if !meta.Variation.Valid() {
		return Row{}, Row{}, fmt.Errorf("%w: invalid variation code %d", ErrPrecondition, int(meta.Variation))
	}

	n := len(raw[0])
	if n == 0 {
		return Row{}, Row{}, fmt.Errorf("%w: empty buffers", ErrPrecondition)
	}
	for _, ch := range device.Channels {
		if len(raw[ch]) != n || len(norm[ch]) != n {
			return Row{}, Row{}, fmt.Errorf("%w: channel %s has %d raw and %d normalized values, want %d",
				ErrPrecondition, ch, len(raw[ch]), len(norm[ch]), n)
		}
	}

	rawRow := Row{SessionID: meta.ID, Variation: meta.Variation, Values: flatten(raw, n)}
	normRow := Row{SessionID: meta.ID, Variation: meta.Variation, Values: flatten(norm, n)}
	return rawRow, normRow, nil
}

func flatten(bufs [device.NumChannels][]float64, n int) []float64 {
	out := make([]float64, 0, device.NumChannels*n)
	for _, ch := range device.Channels {
		for _, v := range bufs[ch] {
			out = append(out, Round(v))
		}
	}
	return out
}

// Round rounds x to Decimals places, ties to even on the exact decimal
// value of x. Non-finite values are returned unchanged.
func Round(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', Decimals, 64), 64)
	if err != nil {
		return x
	}
	return r
}
