package config

import (
	"fmt"
	"sort"
)

func ptr(v float64) *float64 { return &v }

// Presets build a fresh Config each time so callers may modify the result.
var Presets = map[string]func() *Config{
	"pi-lag": func() *Config {
		c := DefaultConfig()
		c.Controller.Kp, c.Controller.Ki, c.Controller.Kd = 2.0, 2.0, 0.0
		c.Controller.N = 0
		c.Controller.UMin, c.Controller.UMax = -10, 10
		c.Run.Duration = 10
		return c
	},
	"saturated": func() *Config {
		c := DefaultConfig()
		c.Controller.Kp, c.Controller.Ki, c.Controller.Kd = 4.0, 8.0, 0.0
		c.Controller.UMin, c.Controller.UMax = -0.5, 0.5
		c.Run.Setpoint = 2.0
		c.Plant.Gain = 5.0
		c.Run.Duration = 15
		return c
	},
	"servo": func() *Config {
		c := DefaultConfig()
		c.Plant = PlantConfig{Kind: "double_integrator", Mass: 1.0, Damping: 0.2}
		c.Controller.Kp, c.Controller.Ki, c.Controller.Kd = 8.0, 1.0, 4.0
		c.Controller.N = 20
		c.Controller.UMin, c.Controller.UMax = -5, 5
		c.Run.Duration = 10
		return c
	},
	"level": func() *Config {
		c := DefaultConfig()
		c.Plant = PlantConfig{Kind: "integrator", Gain: 0.5}
		c.Controller.Kp, c.Controller.Ki, c.Controller.Kd = 3.0, 0.0, 0.1
		c.Run.Duration = 10
		return c
	},
	"retune": func() *Config {
		c := DefaultConfig()
		c.Run.Duration = 20
		c.Events = []EventConfig{
			{At: 5, Setpoint: ptr(0.5)},
			{At: 10, Kp: ptr(3.0), Ki: ptr(1.5)},
			{At: 12, Setpoint: ptr(1.0)},
			{At: 16, Reset: true},
		}
		return c
	},
}

func GetPreset(name string) (*Config, error) {
	fn, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownPreset, name, ListPresets())
	}
	return fn(), nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
