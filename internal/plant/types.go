// Package plant provides simple continuous-time plants and fixed-step
// integrators for exercising a controller in closed loop.
package plant

import (
	"errors"
	"math"
)

// ErrUnknownKind is returned by New for an unregistered plant name.
var ErrUnknownKind = errors.New("plant: unknown kind")

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is a single-input single-output plant dx/dt = f(x, u, t), y = g(x).
type System interface {
	Derive(x State, u float64, t float64) State
	Output(x State) float64
	StateDim() int
}

// Stepper advances a System by one fixed step with u held constant.
type Stepper interface {
	Step(sys System, x State, u float64, t, dt float64) State
}
