// Package analysis looks at recorded loop signals in the frequency domain,
// mainly to see how much measurement noise the derivative term passes
// through to the actuator for a given filter bandwidth.
package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// Spectrum is the one-sided magnitude spectrum of a signal sampled every ts
// seconds.
type Spectrum struct {
	Freqs     []float64
	Magnitude []float64
}

// NewSpectrum removes the mean of data and transforms it. Any length works.
// Empty input or a non-positive ts gives an empty Spectrum.
func NewSpectrum(data []float64, ts float64) Spectrum {
	n := len(data)
	if n == 0 || !(ts > 0) {
		return Spectrum{}
	}

	mean := stat.Mean(data, nil)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	f := fft.FFTReal(centered)
	half := n/2 + 1
	sp := Spectrum{
		Freqs:     make([]float64, half),
		Magnitude: make([]float64, half),
	}
	df := 1.0 / (float64(n) * ts)
	for i := 0; i < half; i++ {
		sp.Freqs[i] = float64(i) * df
		sp.Magnitude[i] = cmplx.Abs(f[i])
	}
	return sp
}

// Dominant returns the frequency with the largest magnitude, skipping DC.
// A flat signal has no dominant frequency and returns 0.
func (s Spectrum) Dominant() float64 {
	best, idx := 1e-12, 0
	for i := 1; i < len(s.Magnitude); i++ {
		if s.Magnitude[i] > best {
			best = s.Magnitude[i]
			idx = i
		}
	}
	if idx == 0 {
		return 0
	}
	return s.Freqs[idx]
}

// HighBandRatio is the fraction of spectral energy above cutoff Hz.
func (s Spectrum) HighBandRatio(cutoff float64) float64 {
	var total, high float64
	for i, m := range s.Magnitude {
		e := m * m
		total += e
		if s.Freqs[i] > cutoff {
			high += e
		}
	}
	if total == 0 {
		return 0
	}
	return high / total
}
