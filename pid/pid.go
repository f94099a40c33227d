package pid

// Controller is a discrete PID filter with derivative low-pass and output
// saturation. The zero value has all coefficients zero and outputs zero; use
// New or Configure to set it up.
type Controller struct {
	p Params
	c Coefficients

	r float64

	// e0, u0 are the current sample; e1, u1 and e2, u2 the two before it.
	e0, e1, e2 float64
	u0, u1, u2 float64
}

// New returns a Controller configured with the given gains, sample period,
// derivative filter bandwidth and output limits. History and command start
// at zero.
func New(kp, ki, kd, ts, n, uMin, uMax float64) *Controller {
	c := &Controller{}
	c.Configure(kp, ki, kd, ts, n, uMin, uMax)
	return c
}

// NewFromParams is New with the parameters in a struct.
func NewFromParams(p Params) *Controller {
	c := &Controller{}
	c.apply(p)
	return c
}

// Configure replaces every tuning parameter and both limits at once,
// recomputes the coefficients and clears history. The command is kept.
//
// Parameters are not validated: Ts <= 0 or uMin > uMax are caller errors.
// See Params.Validate.
func (c *Controller) Configure(kp, ki, kd, ts, n, uMin, uMax float64) {
	c.apply(Params{Kp: kp, Ki: ki, Kd: kd, Ts: ts, N: n, UMin: uMin, UMax: uMax})
}

// apply is the single entry point for every parameter change.
func (c *Controller) apply(p Params) {
	c.Reset()
	c.p = p
	c.c = Derive(p)
}

// SetGains changes Kp, Ki and Kd together.
func (c *Controller) SetGains(kp, ki, kd float64) {
	p := c.p
	p.Kp, p.Ki, p.Kd = kp, ki, kd
	c.apply(p)
}

func (c *Controller) SetKp(kp float64) {
	p := c.p
	p.Kp = kp
	c.apply(p)
}

func (c *Controller) SetKi(ki float64) {
	p := c.p
	p.Ki = ki
	c.apply(p)
}

func (c *Controller) SetKd(kd float64) {
	p := c.p
	p.Kd = kd
	c.apply(p)
}

// SetSamplePeriod changes Ts. It does not change how often Update is called;
// that is up to the caller.
func (c *Controller) SetSamplePeriod(ts float64) {
	p := c.p
	p.Ts = ts
	c.apply(p)
}

// SetFilter changes the derivative filter bandwidth multiplier N.
// N = 0 removes the derivative term entirely.
func (c *Controller) SetFilter(n float64) {
	p := c.p
	p.N = n
	c.apply(p)
}

// SetLimits changes the output range. Like every other setter it clears
// history, even though the coefficients do not depend on the limits.
func (c *Controller) SetLimits(uMin, uMax float64) {
	p := c.p
	p.UMin, p.UMax = uMin, uMax
	c.apply(p)
}

// SetParams is Configure with the parameters in a struct.
func (c *Controller) SetParams(p Params) {
	c.apply(p)
}

// SetParam sets one parameter by name (see Params.With) for live tuning
// front ends. An unknown name leaves the controller untouched.
func (c *Controller) SetParam(name string, value float64) error {
	p, err := c.p.With(name, value)
	if err != nil {
		return err
	}
	c.apply(p)
	return nil
}

func (c *Controller) Kp() float64           { return c.p.Kp }
func (c *Controller) Ki() float64           { return c.p.Ki }
func (c *Controller) Kd() float64           { return c.p.Kd }
func (c *Controller) SamplePeriod() float64 { return c.p.Ts }
func (c *Controller) Filter() float64       { return c.p.N }

// Limits returns the output range as (uMin, uMax).
func (c *Controller) Limits() (float64, float64) { return c.p.UMin, c.p.UMax }

// Command returns the reference set by SetCommand.
func (c *Controller) Command() float64 { return c.r }

// Params returns the last-set configuration.
func (c *Controller) Params() Params { return c.p }

// Coefficients returns the filter coefficients currently in use.
func (c *Controller) Coefficients() Coefficients { return c.c }

// Reset clears error and output history. Coefficients, limits and the
// command are untouched.
func (c *Controller) Reset() {
	c.e0, c.e1, c.e2 = 0, 0, 0
	c.u0, c.u1, c.u2 = 0, 0, 0
}

// IsReset reports whether all six history values are zero.
func (c *Controller) IsReset() bool {
	return c.e0 == 0 && c.e1 == 0 && c.e2 == 0 &&
		c.u0 == 0 && c.u1 == 0 && c.u2 == 0
}

// SetCommand sets the reference used by the next Update.
func (c *Controller) SetCommand(r float64) {
	c.r = r
}

// Update consumes one measurement and returns the control output for this
// sample, clamped to the configured limits. Call it once per sample period.
func (c *Controller) Update(y float64) float64 {
	c.e2, c.e1 = c.e1, c.e0
	c.u2, c.u1 = c.u1, c.u0

	c.e0 = c.r - y
	c.u0 = -c.c.Ku1*c.u1 - c.c.Ku2*c.u2 + c.c.Ke0*c.e0 + c.c.Ke1*c.e1 + c.c.Ke2*c.e2

	// the clamped value is what the next sample sees
	if c.u0 > c.p.UMax {
		c.u0 = c.p.UMax
	}
	if c.u0 < c.p.UMin {
		c.u0 = c.p.UMin
	}

	return c.u0
}
