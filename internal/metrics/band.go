package metrics

import "math"

// InBand is the fraction of samples whose tracking error stays within band.
// An empty run counts as fully in band.
type InBand struct {
	band    float64
	inside  int
	samples int
}

func NewInBand(band float64) *InBand {
	return &InBand{band: band}
}

func (m *InBand) Name() string { return "in_band" }

func (m *InBand) Observe(s Sample) {
	m.samples++
	if math.Abs(s.Error()) <= m.band {
		m.inside++
	}
}

func (m *InBand) Value() float64 {
	if m.samples == 0 {
		return 1.0
	}
	return float64(m.inside) / float64(m.samples)
}

func (m *InBand) Reset() {
	m.inside = 0
	m.samples = 0
}
