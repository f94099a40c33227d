package metrics

import "math"

// ControlEffort is the mean absolute control output.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{}
}

func (c *ControlEffort) Name() string {
	return "control_effort"
}

func (c *ControlEffort) Observe(s Sample) {
	c.sum += math.Abs(s.Control)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Saturation is the fraction of samples where the output sat on the
// limits carried by the sample, so limit retunes mid-run are followed.
type Saturation struct {
	pinned  int
	samples int
}

func NewSaturation() *Saturation {
	return &Saturation{}
}

func (s *Saturation) Name() string {
	return "saturation"
}

func (s *Saturation) Observe(x Sample) {
	s.samples++
	if x.Control <= x.UMin || x.Control >= x.UMax {
		s.pinned++
	}
}

func (s *Saturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.pinned) / float64(s.samples)
}

func (s *Saturation) Reset() {
	s.pinned = 0
	s.samples = 0
}
