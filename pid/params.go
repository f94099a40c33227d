package pid

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Params is the full configuration of a Controller.
type Params struct {
	Kp   float64 `yaml:"kp" json:"kp"`
	Ki   float64 `yaml:"ki" json:"ki"`
	Kd   float64 `yaml:"kd" json:"kd"`
	Ts   float64 `yaml:"ts" json:"ts"`
	N    float64 `yaml:"n" json:"n"`
	UMin float64 `yaml:"u_min" json:"u_min"`
	UMax float64 `yaml:"u_max" json:"u_max"`
}

// Coefficients are the normalized filter coefficients derived from Params.
// Ku1 and Ku2 weight the previous outputs, Ke0..Ke2 the current and previous
// errors.
type Coefficients struct {
	Ku1, Ku2      float64
	Ke0, Ke1, Ke2 float64
}

// Derive computes the filter coefficients of a PID compensator with a
// first-order low-pass on the derivative term, discretized with sample
// period p.Ts and bandwidth multiplier p.N.
func Derive(p Params) Coefficients {
	nts := p.N * p.Ts

	a0 := 1 + nts
	a1 := -(2 + nts)
	a2 := 1.0
	b0 := p.Kp*(1+nts) + p.Ki*p.Ts*(1+nts) + p.Kd*p.N
	b1 := -(p.Kp*(2+nts) + p.Ki*p.Ts + 2*p.Kd*p.N)
	b2 := p.Kp + p.Kd*p.N

	return Coefficients{
		Ku1: a1 / a0,
		Ku2: a2 / a0,
		Ke0: b0 / a0,
		Ke1: b1 / a0,
		Ke2: b2 / a0,
	}
}

// With returns a copy of p with the named parameter replaced. Names match
// the YAML tags.
func (p Params) With(name string, v float64) (Params, error) {
	switch name {
	case "kp":
		p.Kp = v
	case "ki":
		p.Ki = v
	case "kd":
		p.Kd = v
	case "ts":
		p.Ts = v
	case "n":
		p.N = v
	case "u_min":
		p.UMin = v
	case "u_max":
		p.UMax = v
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return p, nil
}

// Validate checks the caller contract that Configure does not enforce.
// All violations are returned together.
func (p Params) Validate() error {
	var err error

	fields := []struct {
		name string
		v    float64
	}{
		{"kp", p.Kp}, {"ki", p.Ki}, {"kd", p.Kd},
		{"ts", p.Ts}, {"n", p.N},
		{"u_min", p.UMin}, {"u_max", p.UMax},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			err = multierr.Append(err, fmt.Errorf("%s=%v: %w", f.name, f.v, ErrNonFinite))
		}
	}

	if !(p.Ts > 0) {
		err = multierr.Append(err, fmt.Errorf("ts=%v: %w", p.Ts, ErrSamplePeriod))
	}
	if p.N < 0 {
		err = multierr.Append(err, fmt.Errorf("n=%v: %w", p.N, ErrFilterBandwidth))
	}
	if p.UMin > p.UMax {
		err = multierr.Append(err, fmt.Errorf("u_min=%v u_max=%v: %w", p.UMin, p.UMax, ErrLimits))
	}

	return err
}
