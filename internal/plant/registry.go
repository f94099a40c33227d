package plant

import (
	"fmt"
	"sort"
)

var systems = map[string]func(params map[string]float64) System{
	"first_order": func(p map[string]float64) System {
		return NewFirstOrder(param(p, "gain", 1), param(p, "tau", 1))
	},
	"integrator": func(p map[string]float64) System {
		return NewIntegrating(param(p, "gain", 1))
	},
	"double_integrator": func(p map[string]float64) System {
		return NewDoubleIntegrator(param(p, "mass", 1), param(p, "damping", 0))
	},
}

var steppers = map[string]func() Stepper{
	"rk4":   func() Stepper { return NewRK4() },
	"euler": func() Stepper { return NewEuler() },
}

func param(p map[string]float64, name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// New builds a plant by kind. Missing params take the model's defaults.
func New(kind string, params map[string]float64) (System, error) {
	fn, ok := systems[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownKind, kind, Kinds())
	}
	return fn(params), nil
}

// NewStepper builds an integrator by name.
func NewStepper(name string) (Stepper, error) {
	fn, ok := steppers[name]
	if !ok {
		return nil, fmt.Errorf("plant: unknown integrator: %q", name)
	}
	return fn(), nil
}

func Kinds() []string {
	kinds := make([]string, 0, len(systems))
	for k := range systems {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
