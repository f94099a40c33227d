package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Overshoot is the largest excursion past the setpoint, in percent of the
// step size. A setpoint change starts a new step from the current output.
type Overshoot struct {
	started  bool
	setpoint float64
	start    float64
	peak     float64
}

func NewOvershoot() *Overshoot {
	return &Overshoot{}
}

func (o *Overshoot) Name() string { return "overshoot_pct" }

func (o *Overshoot) Observe(s Sample) {
	if !o.started || s.Setpoint != o.setpoint {
		o.started = true
		o.setpoint = s.Setpoint
		o.start = s.Output
	}

	step := o.setpoint - o.start
	if step == 0 {
		return
	}
	pct := (s.Output - o.setpoint) / step * 100
	if pct > o.peak {
		o.peak = pct
	}
}

func (o *Overshoot) Value() float64 { return o.peak }

func (o *Overshoot) Reset() {
	*o = Overshoot{}
}

// SettlingTime is the time from the last setpoint change until the output
// last left a band of ±frac of the step around the setpoint.
type SettlingTime struct {
	frac float64

	started  bool
	setpoint float64
	start    float64
	since    float64
	settled  float64
}

func NewSettlingTime(frac float64) *SettlingTime {
	return &SettlingTime{frac: frac}
}

func (m *SettlingTime) Name() string { return "settling_time" }

func (m *SettlingTime) Observe(s Sample) {
	if !m.started || s.Setpoint != m.setpoint {
		m.started = true
		m.setpoint = s.Setpoint
		m.start = s.Output
		m.since = s.T
		m.settled = 0
	}

	band := m.frac * math.Abs(m.setpoint-m.start)
	if math.Abs(s.Error()) > band {
		m.settled = s.T - m.since
	}
}

func (m *SettlingTime) Value() float64 { return m.settled }

func (m *SettlingTime) Reset() {
	m.started = false
	m.settled = 0
}

// ErrorStdDev is the sample standard deviation of the tracking error.
type ErrorStdDev struct {
	errs []float64
}

func NewErrorStdDev() *ErrorStdDev {
	return &ErrorStdDev{}
}

func (m *ErrorStdDev) Name() string { return "error_stddev" }

func (m *ErrorStdDev) Observe(s Sample) {
	m.errs = append(m.errs, s.Error())
}

func (m *ErrorStdDev) Value() float64 {
	if len(m.errs) < 2 {
		return 0
	}
	return stat.StdDev(m.errs, nil)
}

func (m *ErrorStdDev) Reset() {
	m.errs = m.errs[:0]
}
