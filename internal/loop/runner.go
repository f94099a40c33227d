package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/dpid/internal/metrics"
	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/pid"
)

type Runner struct {
	ctrl      *pid.Controller
	sys       plant.System
	stepper   plant.Stepper
	metrics   []metrics.Metric
	observers []Observer
	log       *slog.Logger
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

func New(ctrl *pid.Controller, sys plant.System, stepper plant.Stepper, opts ...Option) *Runner {
	r := &Runner{
		ctrl:      ctrl,
		sys:       sys,
		stepper:   stepper,
		metrics:   make([]metrics.Metric, 0),
		observers: make([]Observer, 0),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) AddMetric(m metrics.Metric) { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer)     { r.observers = append(r.observers, o) }

func (r *Runner) Controller() *pid.Controller { return r.ctrl }

// Metrics returns the names of the registered metrics in order.
func (r *Runner) Metrics() []string {
	names := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		names[i] = m.Name()
	}
	return names
}

// Run executes cfg.Duration seconds of closed loop starting from plant
// state x0. On cancellation or divergence the samples recorded so far are
// returned along with the error.
func (r *Runner) Run(ctx context.Context, x0 plant.State, cfg Config) (*Result, error) {
	sess, err := r.Start(x0, cfg)
	if err != nil {
		return nil, err
	}

	steps := sess.Steps()
	result := &Result{
		Times:     make([]float64, 0, steps),
		Setpoints: make([]float64, 0, steps),
		Outputs:   make([]float64, 0, steps),
		Controls:  make([]float64, 0, steps),
		Metrics:   make(map[string]float64),
	}

	for _, m := range r.metrics {
		m.Reset()
	}

	r.log.Info("run started", "module", "loop",
		"steps", steps, "ts", r.ctrl.SamplePeriod(), "setpoint", cfg.Setpoint, "events", len(cfg.Events))

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			r.finish(result, sess)
			r.log.Warn("run canceled", "module", "loop", "step", i)
			return result, ctx.Err()
		default:
		}

		s, err := sess.Step()
		if errors.Is(err, ErrDiverged) {
			// the sample reached the plant and the metrics before it blew up
			result.record(s)
		}
		if err != nil {
			r.finish(result, sess)
			r.log.Error("run stopped", "module", "loop", "step", i, "err", err)
			return result, err
		}

		result.record(s)
	}

	r.finish(result, sess)
	r.log.Info("run finished", "module", "loop", "steps", len(result.Times), "final_output", sess.Output())

	return result, nil
}

func (r *Runner) finish(result *Result, sess *Session) {
	result.Applied = append(result.Applied, sess.applied...)
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

// Start prepares a session that advances one sample per Step call. The
// command is set to cfg.Setpoint; controller history is left as is.
func (r *Runner) Start(x0 plant.State, cfg Config) (*Session, error) {
	ts := r.ctrl.SamplePeriod()
	if err := cfg.validate(ts); err != nil {
		return nil, err
	}
	if len(x0) != r.sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, plant has %d", ErrInvalidConfig, len(x0), r.sys.StateDim())
	}

	substeps := cfg.Substeps
	if substeps == 0 {
		substeps = 1
	}

	events := make([]Event, len(cfg.Events))
	copy(events, cfg.Events)
	// events landing on the same sample keep their given order
	sort.SliceStable(events, func(i, j int) bool { return sampleIndex(events[i].At, ts) < sampleIndex(events[j].At, ts) })

	r.ctrl.SetCommand(cfg.Setpoint)

	return &Session{
		r:        r,
		x:        x0.Clone(),
		ts:       ts,
		steps:    int(math.Round(cfg.Duration / ts)),
		substeps: substeps,
		events:   events,
	}, nil
}

// Session is a run in progress.
type Session struct {
	r        *Runner
	x        plant.State
	ts       float64
	k        int
	steps    int
	substeps int
	events   []Event
	next     int
	applied  []AppliedEvent
}

// Steps is the number of samples in the configured duration.
func (s *Session) Steps() int { return s.steps }

// Time is the time of the next sample.
func (s *Session) Time() float64 { return float64(s.k) * s.ts }

func (s *Session) State() plant.State { return s.x }

// Output is the current plant output.
func (s *Session) Output() float64 { return s.r.sys.Output(s.x) }

// Done reports whether the configured duration has elapsed. Step keeps
// working past it.
func (s *Session) Done() bool { return s.k >= s.steps }

// Step runs one controller period.
func (s *Session) Step() (metrics.Sample, error) {
	r := s.r
	t := s.Time()

	for s.next < len(s.events) && sampleIndex(s.events[s.next].At, s.ts) <= s.k {
		ev := s.events[s.next]
		ev.Apply(r.ctrl)
		s.applied = append(s.applied, AppliedEvent{Step: s.k, Time: t, Name: ev.Name})
		r.log.Info("event applied", "module", "loop", "step", s.k, "t", t, "event", ev.Name)
		s.next++
	}
	if ts := r.ctrl.SamplePeriod(); ts != s.ts {
		return metrics.Sample{}, &StepError{Step: s.k, Time: t,
			Wrapped: fmt.Errorf("%w: sample period changed from %g to %g during the run", ErrInvalidConfig, s.ts, ts)}
	}

	y := r.sys.Output(s.x)
	u := r.ctrl.Update(y)

	uMin, uMax := r.ctrl.Limits()
	sample := metrics.Sample{T: t, Setpoint: r.ctrl.Command(), Output: y, Control: u, UMin: uMin, UMax: uMax}
	for _, m := range r.metrics {
		m.Observe(sample)
	}
	for _, o := range r.observers {
		o.OnSample(sample)
	}

	h := s.ts / float64(s.substeps)
	x := s.x
	for j := 0; j < s.substeps; j++ {
		x = r.stepper.Step(r.sys, x, u, t+float64(j)*h, h)
	}
	if !x.IsValid() {
		return sample, &StepError{Step: s.k, Time: t, Wrapped: ErrDiverged}
	}

	s.x = x
	s.k++
	return sample, nil
}

// sampleIndex is the sample before which an event at time at fires.
func sampleIndex(at, ts float64) int {
	return int(math.Round(at / ts))
}

func (r *Result) record(s metrics.Sample) {
	r.Times = append(r.Times, s.T)
	r.Setpoints = append(r.Setpoints, s.Setpoint)
	r.Outputs = append(r.Outputs, s.Output)
	r.Controls = append(r.Controls, s.Control)
}
