package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dpid/internal/loop"
	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/pid"
)

const (
	DefaultKp       = 1.0
	DefaultKi       = 0.5
	DefaultKd       = 0.05
	DefaultTs       = 0.02
	DefaultN        = 20.0
	DefaultUMin     = -1.0
	DefaultUMax     = 1.0
	DefaultDuration = 10.0
	DefaultSetpoint = 1.0
	DefaultSubsteps = 10
)

var ErrUnknownPreset = errors.New("config: unknown preset")

type Config struct {
	Controller pid.Params    `yaml:"controller"`
	Plant      PlantConfig   `yaml:"plant"`
	Run        RunConfig     `yaml:"run"`
	Events     []EventConfig `yaml:"events,omitempty"`
}

type PlantConfig struct {
	Kind    string  `yaml:"kind"`
	Gain    float64 `yaml:"gain"`
	Tau     float64 `yaml:"tau"`
	Mass    float64 `yaml:"mass"`
	Damping float64 `yaml:"damping"`
}

type RunConfig struct {
	Duration   float64 `yaml:"duration"`
	Setpoint   float64 `yaml:"setpoint"`
	Substeps   int     `yaml:"substeps"`
	Integrator string  `yaml:"integrator"`
	Initial    float64 `yaml:"initial"`
}

// EventConfig schedules changes at time At. Only the fields that are set
// take effect: a setpoint change, a retune of the listed parameters, and
// a history reset, applied in that order.
type EventConfig struct {
	At       float64  `yaml:"at"`
	Setpoint *float64 `yaml:"setpoint,omitempty"`
	Kp       *float64 `yaml:"kp,omitempty"`
	Ki       *float64 `yaml:"ki,omitempty"`
	Kd       *float64 `yaml:"kd,omitempty"`
	Ts       *float64 `yaml:"ts,omitempty"`
	N        *float64 `yaml:"n,omitempty"`
	UMin     *float64 `yaml:"u_min,omitempty"`
	UMax     *float64 `yaml:"u_max,omitempty"`
	Reset    bool     `yaml:"reset,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Controller: pid.Params{
			Kp:   DefaultKp,
			Ki:   DefaultKi,
			Kd:   DefaultKd,
			Ts:   DefaultTs,
			N:    DefaultN,
			UMin: DefaultUMin,
			UMax: DefaultUMax,
		},
		Plant: PlantConfig{
			Kind: "first_order",
			Gain: 1.0,
			Tau:  0.5,
			Mass: 1.0,
		},
		Run: RunConfig{
			Duration:   DefaultDuration,
			Setpoint:   DefaultSetpoint,
			Substeps:   DefaultSubsteps,
			Integrator: "rk4",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto reads a YAML file over cfg. Keys missing from the file keep
// their values in cfg; a non-empty events list replaces cfg's events.
func LoadInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	err := c.Controller.Validate()

	if !slices.Contains(plant.Kinds(), c.Plant.Kind) {
		err = multierr.Append(err, fmt.Errorf("plant kind %q: %w", c.Plant.Kind, plant.ErrUnknownKind))
	}
	if c.Plant.Kind == "first_order" && !(c.Plant.Tau > 0) {
		err = multierr.Append(err, fmt.Errorf("plant tau must be positive, got %v", c.Plant.Tau))
	}
	if c.Plant.Kind == "double_integrator" && !(c.Plant.Mass > 0) {
		err = multierr.Append(err, fmt.Errorf("plant mass must be positive, got %v", c.Plant.Mass))
	}
	if !(c.Run.Duration > 0) {
		err = multierr.Append(err, fmt.Errorf("run duration must be positive, got %v", c.Run.Duration))
	}
	if c.Run.Substeps < 0 {
		err = multierr.Append(err, fmt.Errorf("run substeps must be non-negative, got %d", c.Run.Substeps))
	}
	if _, serr := plant.NewStepper(c.Run.Integrator); serr != nil {
		err = multierr.Append(err, serr)
	}
	for i, ev := range c.Events {
		if ev.At < 0 || math.IsNaN(ev.At) || math.IsInf(ev.At, 0) {
			err = multierr.Append(err, fmt.Errorf("event %d: invalid time %v", i, ev.At))
		}
		if ev.empty() {
			err = multierr.Append(err, fmt.Errorf("event %d at %v does nothing", i, ev.At))
		}
		if ev.Ts != nil {
			err = multierr.Append(err, fmt.Errorf("event %d at %v: ts cannot change during a run", i, ev.At))
		}
	}

	return multierr.Append(err, c.validateRetunes())
}

// validateRetunes replays the retune events in firing order and checks the
// controller parameters each one leaves behind.
func (c *Config) validateRetunes() error {
	if c.Controller.Validate() != nil {
		return nil
	}
	order := make([]int, len(c.Events))
	for i := range order {
		order[i] = i
	}
	ts := c.Controller.Ts
	key := func(at float64) float64 {
		if ts > 0 {
			return math.Round(at / ts)
		}
		return at
	}
	sort.SliceStable(order, func(a, b int) bool { return key(c.Events[order[a]].At) < key(c.Events[order[b]].At) })

	var err error
	p := c.Controller
	for _, i := range order {
		ev := c.Events[i]
		if !ev.retunes() {
			continue
		}
		p = ev.apply(p)
		if verr := p.Validate(); verr != nil {
			err = multierr.Append(err, fmt.Errorf("event %d at %v leaves an invalid controller: %w", i, ev.At, verr))
		}
	}
	return err
}

func (e EventConfig) empty() bool {
	return e.Setpoint == nil && !e.retunes() && !e.Reset
}

func (e EventConfig) retunes() bool {
	return e.Kp != nil || e.Ki != nil || e.Kd != nil || e.Ts != nil || e.N != nil || e.UMin != nil || e.UMax != nil
}

// PlantParams returns the plant parameters in the form plant.New takes.
func (c *Config) PlantParams() map[string]float64 {
	return map[string]float64{
		"gain":    c.Plant.Gain,
		"tau":     c.Plant.Tau,
		"mass":    c.Plant.Mass,
		"damping": c.Plant.Damping,
	}
}

// InitState is the plant state at rest with output Run.Initial.
func (c *Config) InitState(sys plant.System) plant.State {
	x := make(plant.State, sys.StateDim())
	x[0] = c.Run.Initial
	return x
}

// LoopConfig converts the run section and events for loop.Runner.
func (c *Config) LoopConfig() loop.Config {
	return loop.Config{
		Duration: c.Run.Duration,
		Setpoint: c.Run.Setpoint,
		Substeps: c.Run.Substeps,
		Events:   c.LoopEvents(),
	}
}

func (c *Config) LoopEvents() []loop.Event {
	events := make([]loop.Event, 0, len(c.Events))
	for _, ev := range c.Events {
		if ev.Setpoint != nil {
			events = append(events, loop.SetpointEvent(ev.At, *ev.Setpoint))
		}
		if ev.retunes() {
			events = append(events, ev.retune())
		}
		if ev.Reset {
			events = append(events, loop.ResetEvent(ev.At))
		}
	}
	return events
}

type eventField struct {
	name string
	v    *float64
}

func (e EventConfig) fields() []eventField {
	return []eventField{
		{"kp", e.Kp}, {"ki", e.Ki}, {"kd", e.Kd}, {"ts", e.Ts}, {"n", e.N}, {"u_min", e.UMin}, {"u_max", e.UMax},
	}
}

// apply returns p with the event's listed parameters replaced.
func (e EventConfig) apply(p pid.Params) pid.Params {
	for _, f := range e.fields() {
		if f.v != nil {
			p, _ = p.With(f.name, *f.v)
		}
	}
	return p
}

// retune changes only the listed parameters, relative to whatever the
// controller holds when the event fires.
func (e EventConfig) retune() loop.Event {
	name := "retune"
	for _, f := range e.fields() {
		if f.v != nil {
			name += fmt.Sprintf(" %s=%g", f.name, *f.v)
		}
	}

	return loop.Event{
		At:   e.At,
		Name: name,
		Apply: func(c *pid.Controller) {
			c.SetParams(e.apply(c.Params()))
		},
	}
}
