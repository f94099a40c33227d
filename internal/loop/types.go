package loop

import (
	"fmt"
	"math"

	"github.com/san-kum/dpid/internal/metrics"
	"github.com/san-kum/dpid/pid"
)

type Config struct {
	Duration float64
	Setpoint float64
	// Substeps is the number of plant integration steps per sample period.
	// Zero means one.
	Substeps int
	Events   []Event
}

func (c Config) validate(ts float64) error {
	if !(ts > 0) {
		return fmt.Errorf("%w: sample period must be positive, got %f", ErrInvalidConfig, ts)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %f", ErrInvalidConfig, c.Duration)
	}
	if c.Substeps < 0 {
		return fmt.Errorf("%w: substeps must be non-negative, got %d", ErrInvalidConfig, c.Substeps)
	}
	for _, ev := range c.Events {
		if ev.At < 0 || math.IsNaN(ev.At) || math.IsInf(ev.At, 0) {
			return fmt.Errorf("%w: event %q at invalid time %f", ErrInvalidConfig, ev.Name, ev.At)
		}
		if ev.Apply == nil {
			return fmt.Errorf("%w: event %q has no action", ErrInvalidConfig, ev.Name)
		}
	}
	return nil
}

// Event is an action applied to the controller before the sample at time At.
// Apply must not change the sample period.
type Event struct {
	At    float64
	Name  string
	Apply func(c *pid.Controller)
}

// SetpointEvent changes the command. History is kept.
func SetpointEvent(at, r float64) Event {
	return Event{
		At:    at,
		Name:  fmt.Sprintf("setpoint=%g", r),
		Apply: func(c *pid.Controller) { c.SetCommand(r) },
	}
}

// RetuneEvent replaces the controller parameters, clearing history.
func RetuneEvent(at float64, p pid.Params) Event {
	return Event{
		At:    at,
		Name:  fmt.Sprintf("retune kp=%g ki=%g kd=%g", p.Kp, p.Ki, p.Kd),
		Apply: func(c *pid.Controller) { c.SetParams(p) },
	}
}

// ResetEvent clears controller history without retuning.
func ResetEvent(at float64) Event {
	return Event{
		At:    at,
		Name:  "reset",
		Apply: func(c *pid.Controller) { c.Reset() },
	}
}

// AppliedEvent records when an event took effect.
type AppliedEvent struct {
	Step int     `json:"step"`
	Time float64 `json:"time"`
	Name string  `json:"name"`
}

type Observer interface {
	OnSample(s metrics.Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s metrics.Sample)

func (f ObserverFunc) OnSample(s metrics.Sample) { f(s) }

type Result struct {
	Times     []float64
	Setpoints []float64
	Outputs   []float64
	Controls  []float64
	Applied   []AppliedEvent
	Metrics   map[string]float64
}

// Samples returns the recorded trace as metrics samples. Limits are not
// part of the trace and come back as zero.
func (r *Result) Samples() []metrics.Sample {
	out := make([]metrics.Sample, len(r.Times))
	for i := range r.Times {
		out[i] = metrics.Sample{T: r.Times[i], Setpoint: r.Setpoints[i], Output: r.Outputs[i], Control: r.Controls[i]}
	}
	return out
}
