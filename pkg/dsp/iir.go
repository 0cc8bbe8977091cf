package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Coefficients holds the numerator (B) and denominator (A) polynomials of a
// rational transfer function in z^-1.
type Coefficients struct {
	B []float64
	A []float64
}

// Order returns the filter order.
func (c Coefficients) Order() int {
	return max(len(c.B), len(c.A)) - 1
}

// Apply filters x with a causal direct-form II transposed structure starting
// from zero state. It returns a new slice; x is not modified.
func (c Coefficients) Apply(x []float64) []float64 {
	n := max(len(c.B), len(c.A))
	b := make([]float64, n)
	a := make([]float64, n)
	copy(b, c.B)
	copy(a, c.A)

	// Normalize so that a[0] == 1
	if a[0] != 1 {
		a0 := a[0]
		for i := range n {
			b[i] /= a0
			a[i] /= a0
		}
	}

	y := make([]float64, len(x))
	if n == 1 {
		for i, xi := range x {
			y[i] = b[0] * xi
		}
		return y
	}

	z := make([]float64, n-1)
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 1; j < n-1; j++ {
			z[j-1] = b[j]*xi + z[j] - a[j]*yi
		}
		z[n-2] = b[n-1]*xi - a[n-1]*yi
		y[i] = yi
	}
	return y
}

// Response returns |H(e^jw)| at freq for sample rate fs.
func (c Coefficients) Response(freq, fs float64) float64 {
	w := 2 * math.Pi * freq / fs
	return cmplx.Abs(evalPoly(c.B, w) / evalPoly(c.A, w))
}

// evalPoly evaluates sum(p[k] * e^(-jwk)).
func evalPoly(p []float64, w float64) complex128 {
	var sum complex128
	for k, pk := range p {
		sum += complex(pk, 0) * cmplx.Exp(complex(0, -w*float64(k)))
	}
	return sum
}

// ButterworthBandpass designs a digital Butterworth bandpass filter of the
// given order. low and high are band edges normalized to the Nyquist
// frequency, 0 < low < high < 1. The resulting filter has order 2*order.
//
// The design uses the analog prototype, a lowpass-to-bandpass transform on
// pre-warped edges and the bilinear transform, so the -3 dB points land
// exactly on the requested edges.
func ButterworthBandpass(order int, low, high float64) (Coefficients, error) {
	if order <= 0 {
		return Coefficients{}, fmt.Errorf("butterworth: order must be positive, got %d", order)
	}
	if !(low > 0 && low < high && high < 1) {
		return Coefficients{}, fmt.Errorf("butterworth: band edges must satisfy 0 < low < high < 1, got [%g, %g]", low, high)
	}

	// Analog lowpass prototype: poles on the left half of the unit circle
	proto := make([]complex128, order)
	for i := range order {
		m := float64(-order + 1 + 2*i)
		proto[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	// Pre-warp the edges for a bilinear transform at fs = 2
	const fs = 2.0
	w1 := 2 * fs * math.Tan(math.Pi*low/fs)
	w2 := 2 * fs * math.Tan(math.Pi*high/fs)
	bw := w2 - w1
	wo2 := complex(w1*w2, 0)

	// Lowpass to bandpass
	poles := make([]complex128, 0, 2*order)
	for _, p := range proto {
		pl := p * complex(bw/2, 0)
		poles = append(poles, pl+cmplx.Sqrt(pl*pl-wo2))
	}
	for _, p := range proto {
		pl := p * complex(bw/2, 0)
		poles = append(poles, pl-cmplx.Sqrt(pl*pl-wo2))
	}
	zeros := make([]complex128, order) // order zeros at s = 0
	gain := math.Pow(bw, float64(order))

	zz, pz, kz := bilinear(zeros, poles, gain, fs)
	return zpkToCoefficients(zz, pz, kz), nil
}

// bilinear maps analog zeros, poles and gain to the z-plane. Zeros at
// infinity are placed at z = -1.
func bilinear(zeros, poles []complex128, gain, fs float64) ([]complex128, []complex128, float64) {
	fs2 := complex(2*fs, 0)

	zz := make([]complex128, 0, len(poles))
	num := complex(1, 0)
	for _, z := range zeros {
		zz = append(zz, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	for len(zz) < len(poles) {
		zz = append(zz, -1)
	}

	pz := make([]complex128, 0, len(poles))
	den := complex(1, 0)
	for _, p := range poles {
		pz = append(pz, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}

	return zz, pz, gain * real(num/den)
}

// zpkToCoefficients expands zeros, poles and gain into polynomial form.
func zpkToCoefficients(zeros, poles []complex128, gain float64) Coefficients {
	b := poly(zeros)
	for i := range b {
		b[i] *= gain
	}
	return Coefficients{B: b, A: poly(poles)}
}

// poly returns the real coefficients of the monic polynomial with the given
// roots, highest power first. Complex roots are expected in conjugate pairs.
func poly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, ci := range c {
			next[i] += ci
			next[i+1] -= ci * r
		}
		c = next
	}

	out := make([]float64, len(c))
	for i, ci := range c {
		out[i] = real(ci)
	}
	return out
}

// IIRNotch designs a second-order notch filter. w0 is the notch frequency
// normalized to the Nyquist frequency, 0 < w0 < 1, and q is the quality
// factor (w0 / bandwidth at -3 dB).
func IIRNotch(w0, q float64) (Coefficients, error) {
	if !(w0 > 0 && w0 < 1) {
		return Coefficients{}, fmt.Errorf("notch: frequency must satisfy 0 < w0 < 1, got %g", w0)
	}
	if q <= 0 {
		return Coefficients{}, fmt.Errorf("notch: quality factor must be positive, got %g", q)
	}

	bw := w0 / q * math.Pi
	w := w0 * math.Pi

	// With the -3 dB gain gb = 1/sqrt(2), sqrt(1-gb^2)/gb == 1
	beta := math.Tan(bw / 2)
	gain := 1 / (1 + beta)
	cosw := math.Cos(w)

	return Coefficients{
		B: []float64{gain, -2 * gain * cosw, gain},
		A: []float64{1, -2 * gain * cosw, 2*gain - 1},
	}, nil
}
