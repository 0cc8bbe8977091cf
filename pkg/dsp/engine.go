package dsp

import (
	"fmt"
	"slices"

	"github.com/itohio/emgcap/pkg/config"
)

// FilterSpec describes the fixed filter chain of a deployment.
type FilterSpec struct {
	SampleRate    float64   // Hz
	LowCut        float64   // Hz
	HighCut       float64   // Hz
	Order         int       // Butterworth prototype order
	Notches       []float64 // Hz, applied in order after the bandpass
	QualityFactor float64
}

// DefaultSpec returns the chain used for 250 Hz EMG capture.
func DefaultSpec() FilterSpec {
	return SpecFromConfig(config.Default().Filter)
}

// SpecFromConfig builds a FilterSpec from configuration.
func SpecFromConfig(cfg config.FilterConfig) FilterSpec {
	return FilterSpec{
		SampleRate:    cfg.SampleRate,
		LowCut:        cfg.LowCut,
		HighCut:       cfg.HighCut,
		Order:         cfg.Order,
		Notches:       slices.Clone(cfg.Notches),
		QualityFactor: cfg.QualityFactor,
	}
}

// Nyquist returns half the sample rate.
func (s FilterSpec) Nyquist() float64 {
	return 0.5 * s.SampleRate
}

// Validate checks that every stage of the chain can be designed.
func (s FilterSpec) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", s.SampleRate)
	}
	if s.Order <= 0 {
		return fmt.Errorf("order must be positive, got %d", s.Order)
	}
	nyq := s.Nyquist()
	if !(s.LowCut > 0 && s.LowCut < s.HighCut && s.HighCut < nyq) {
		return fmt.Errorf("bandpass must satisfy 0 < low < high < %g Hz, got [%g, %g]", nyq, s.LowCut, s.HighCut)
	}
	for _, f := range s.Notches {
		if !(f > 0 && f < nyq) {
			return fmt.Errorf("notch at %g Hz is outside (0, %g) Hz", f, nyq)
		}
	}
	if s.QualityFactor <= 0 {
		return fmt.Errorf("quality factor must be positive, got %g", s.QualityFactor)
	}
	return nil
}

// Stage is one designed step of the chain.
type Stage struct {
	Name         string
	Coefficients Coefficients
}

// Engine applies the filter chain. Coefficients are designed once in
// NewEngine; the engine is safe for concurrent use.
type Engine struct {
	spec   FilterSpec
	stages []Stage
}

// NewEngine designs all stages of spec.
func NewEngine(spec FilterSpec) (*Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter spec: %w", err)
	}
	spec.Notches = slices.Clone(spec.Notches)

	nyq := spec.Nyquist()
	bp, err := ButterworthBandpass(spec.Order, spec.LowCut/nyq, spec.HighCut/nyq)
	if err != nil {
		return nil, err
	}

	stages := []Stage{{
		Name:         fmt.Sprintf("bandpass %g-%g Hz order %d", spec.LowCut, spec.HighCut, spec.Order),
		Coefficients: bp,
	}}
	for _, f := range spec.Notches {
		c, err := IIRNotch(f/nyq, spec.QualityFactor)
		if err != nil {
			return nil, err
		}
		stages = append(stages, Stage{
			Name:         fmt.Sprintf("notch %g Hz Q %g", f, spec.QualityFactor),
			Coefficients: c,
		})
	}

	return &Engine{spec: spec, stages: stages}, nil
}

// Spec returns a copy of the engine's filter spec.
func (e *Engine) Spec() FilterSpec {
	s := e.spec
	s.Notches = slices.Clone(e.spec.Notches)
	return s
}

// Stages returns the designed stages in application order.
func (e *Engine) Stages() []Stage {
	return slices.Clone(e.stages)
}

// Bandpass applies the bandpass stage only.
func (e *Engine) Bandpass(buf []float64) []float64 {
	return e.stages[0].Coefficients.Apply(buf)
}

// Chain applies bandpass followed by every notch, in order.
func (e *Engine) Chain(buf []float64) []float64 {
	out := buf
	for _, st := range e.stages {
		out = st.Coefficients.Apply(out)
	}
	return out
}

// Bandpass designs the bandpass of spec and applies it to buf.
func Bandpass(buf []float64, spec FilterSpec) ([]float64, error) {
	nyq := spec.Nyquist()
	c, err := ButterworthBandpass(spec.Order, spec.LowCut/nyq, spec.HighCut/nyq)
	if err != nil {
		return nil, err
	}
	return c.Apply(buf), nil
}

// Notch designs a notch at freq Hz with quality factor q for sample rate fs
// and applies it to buf.
func Notch(buf []float64, freq, q, fs float64) ([]float64, error) {
	c, err := IIRNotch(freq/(0.5*fs), q)
	if err != nil {
		return nil, err
	}
	return c.Apply(buf), nil
}
