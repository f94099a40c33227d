// Package metrics scores closed-loop runs sample by sample.
package metrics

import "math"

// Sample is one controller period as seen by the loop.
type Sample struct {
	T        float64
	Setpoint float64
	Output   float64
	Control  float64

	// UMin and UMax are the controller limits in force for this sample.
	UMin, UMax float64
}

func (s Sample) Error() float64 { return s.Setpoint - s.Output }

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Default returns the metrics recorded for every run. ts must be the
// sample period the run uses throughout.
func Default(ts float64) []Metric {
	return []Metric{
		NewIAE(ts),
		NewISE(ts),
		NewControlEffort(),
		NewSaturation(),
		NewOvershoot(),
		NewSettlingTime(0.02),
		NewErrorStdDev(),
		NewInBand(0.05),
	}
}

// IAE is the integral of absolute tracking error.
type IAE struct {
	ts  float64
	sum float64
}

func NewIAE(ts float64) *IAE { return &IAE{ts: ts} }

func (m *IAE) Name() string     { return "iae" }
func (m *IAE) Observe(s Sample) { m.sum += math.Abs(s.Error()) * m.ts }
func (m *IAE) Value() float64   { return m.sum }
func (m *IAE) Reset()           { m.sum = 0 }

// ISE is the integral of squared tracking error.
type ISE struct {
	ts  float64
	sum float64
}

func NewISE(ts float64) *ISE { return &ISE{ts: ts} }

func (m *ISE) Name() string { return "ise" }

func (m *ISE) Observe(s Sample) {
	e := s.Error()
	m.sum += e * e * m.ts
}

func (m *ISE) Value() float64 { return m.sum }
func (m *ISE) Reset()         { m.sum = 0 }
