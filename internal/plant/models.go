package plant

// FirstOrder is a first-order lag: Tau*dy/dt = -y + Gain*u.
type FirstOrder struct {
	Gain float64
	Tau  float64
}

func NewFirstOrder(gain, tau float64) *FirstOrder {
	return &FirstOrder{Gain: gain, Tau: tau}
}

func (p *FirstOrder) StateDim() int          { return 1 }
func (p *FirstOrder) Output(x State) float64 { return x[0] }

func (p *FirstOrder) Derive(x State, u float64, t float64) State {
	return State{(-x[0] + p.Gain*u) / p.Tau}
}

// Integrating is a pure integrator: dy/dt = Gain*u.
type Integrating struct {
	Gain float64
}

func NewIntegrating(gain float64) *Integrating {
	return &Integrating{Gain: gain}
}

func (p *Integrating) StateDim() int          { return 1 }
func (p *Integrating) Output(x State) float64 { return x[0] }

func (p *Integrating) Derive(x State, u float64, t float64) State {
	return State{p.Gain * u}
}

// DoubleIntegrator is a damped point mass driven by force u:
// Mass*d²y/dt² = u - Damping*dy/dt. State is (position, velocity).
type DoubleIntegrator struct {
	Mass    float64
	Damping float64
}

func NewDoubleIntegrator(mass, damping float64) *DoubleIntegrator {
	return &DoubleIntegrator{Mass: mass, Damping: damping}
}

func (p *DoubleIntegrator) StateDim() int          { return 2 }
func (p *DoubleIntegrator) Output(x State) float64 { return x[0] }

func (p *DoubleIntegrator) Derive(x State, u float64, t float64) State {
	return State{x[1], (u - p.Damping*x[1]) / p.Mass}
}
