package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/multierr"

	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/pid"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Controller.Ts != DefaultTs {
		t.Errorf("expected ts %f, got %f", DefaultTs, cfg.Controller.Ts)
	}
	if cfg.Plant.Kind != "first_order" {
		t.Errorf("expected plant first_order, got %s", cfg.Plant.Kind)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
controller:
  kp: 3
  u_max: 2
plant:
  kind: integrator
events:
  - at: 2
    setpoint: 0.25
  - at: 4
    kd: 0.5
    reset: true
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Controller.Kp != 3 {
		t.Errorf("expected kp 3, got %f", cfg.Controller.Kp)
	}
	if cfg.Controller.Ki != DefaultKi {
		t.Errorf("expected default ki %f, got %f", DefaultKi, cfg.Controller.Ki)
	}
	if cfg.Controller.UMax != 2 || cfg.Controller.UMin != DefaultUMin {
		t.Errorf("expected limits [%f, 2], got [%f, %f]", DefaultUMin, cfg.Controller.UMin, cfg.Controller.UMax)
	}
	if cfg.Plant.Kind != "integrator" {
		t.Errorf("expected plant integrator, got %s", cfg.Plant.Kind)
	}
	if len(cfg.Events) != 2 || cfg.Events[0].Setpoint == nil || *cfg.Events[0].Setpoint != 0.25 {
		t.Fatalf("unexpected events: %+v", cfg.Events)
	}
	if !cfg.Events[1].Reset || cfg.Events[1].Kd == nil {
		t.Errorf("expected retune+reset event, got %+v", cfg.Events[1])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg, err := GetPreset("retune")
	if err != nil {
		t.Fatal(err)
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Controller != cfg.Controller {
		t.Errorf("controller params changed: %+v vs %+v", loaded.Controller, cfg.Controller)
	}
	if len(loaded.Events) != len(cfg.Events) {
		t.Errorf("expected %d events, got %d", len(cfg.Events), len(loaded.Events))
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controller.Ts = 0
	cfg.Controller.UMin = 5
	cfg.Plant.Kind = "furnace"
	cfg.Run.Duration = -1
	cfg.Run.Integrator = "leapfrog"
	cfg.Events = []EventConfig{{At: 1}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if n := len(multierr.Errors(err)); n != 6 {
		t.Errorf("expected 6 errors, got %d: %v", n, err)
	}
	if !errors.Is(err, pid.ErrSamplePeriod) {
		t.Error("expected ErrSamplePeriod")
	}
	if !errors.Is(err, pid.ErrLimits) {
		t.Error("expected ErrLimits")
	}
	if !errors.Is(err, plant.ErrUnknownKind) {
		t.Error("expected ErrUnknownKind")
	}
}

func TestLoadIntoKeepsPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte("controller:\n  kp: 12\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := GetPreset("servo")
	if err != nil {
		t.Fatal(err)
	}
	if err := LoadInto(cfg, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Controller.Kp != 12 {
		t.Errorf("expected kp 12 from file, got %f", cfg.Controller.Kp)
	}
	if cfg.Plant.Kind != "double_integrator" {
		t.Errorf("expected preset plant double_integrator, got %s", cfg.Plant.Kind)
	}
	if cfg.Controller.Kd != 4 || cfg.Controller.UMax != 5 {
		t.Errorf("expected preset kd 4 and u_max 5, got %f and %f", cfg.Controller.Kd, cfg.Controller.UMax)
	}
}

func TestValidateEventTimes(t *testing.T) {
	for _, at := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), -1} {
		cfg := DefaultConfig()
		cfg.Events = []EventConfig{{At: at, Setpoint: ptr(3)}}
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for event at %v", at)
		}
	}
}

func TestValidateRetuneEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = []EventConfig{{At: 1, Ts: ptr(0.01)}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for a ts retune")
	}

	cfg = DefaultConfig()
	cfg.Events = []EventConfig{{At: 2, N: ptr(-1)}}
	if err := cfg.Validate(); !errors.Is(err, pid.ErrFilterBandwidth) {
		t.Errorf("expected ErrFilterBandwidth, got %v", err)
	}

	// replayed in firing order: at t=1 u_max drops below u_min=-1
	cfg = DefaultConfig()
	cfg.Events = []EventConfig{
		{At: 3, UMin: ptr(-2)},
		{At: 1, UMax: ptr(-1.5)},
	}
	err := cfg.Validate()
	if !errors.Is(err, pid.ErrLimits) {
		t.Fatalf("expected ErrLimits, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Errorf("expected 1 error, got %d: %v", n, err)
	}

	// the same two limits in the other order are fine
	cfg = DefaultConfig()
	cfg.Events = []EventConfig{
		{At: 2, UMax: ptr(-1.5)},
		{At: 1, UMin: ptr(-2)},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoopEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events = []EventConfig{
		{At: 1, Setpoint: ptr(2), Kp: ptr(4), N: ptr(0), Reset: true},
	}

	events := cfg.LoopEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Name != "setpoint=2" || events[1].Name != "retune kp=4 n=0" || events[2].Name != "reset" {
		t.Errorf("unexpected event names: %q %q %q", events[0].Name, events[1].Name, events[2].Name)
	}

	c := pid.NewFromParams(cfg.Controller)
	for _, ev := range events {
		ev.Apply(c)
	}

	want := cfg.Controller
	want.Kp, want.N = 4, 0
	if c.Params() != want {
		t.Errorf("expected params %+v, got %+v", want, c.Params())
	}
	if c.Command() != 2 {
		t.Errorf("expected command 2, got %f", c.Command())
	}
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	if len(names) == 0 {
		t.Fatal("expected presets")
	}

	for _, name := range names {
		cfg, err := GetPreset(name)
		if err != nil {
			t.Fatalf("preset %s: %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}

	a, _ := GetPreset("servo")
	a.Controller.Kp = 100
	b, _ := GetPreset("servo")
	if b.Controller.Kp == 100 {
		t.Error("presets must not share state")
	}
}

func TestGetPresetNotFound(t *testing.T) {
	if _, err := GetPreset("nonexistent"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestInitState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.Initial = 0.3

	x := cfg.InitState(plant.NewDoubleIntegrator(1, 0))
	if len(x) != 2 || x[0] != 0.3 || x[1] != 0 {
		t.Errorf("unexpected init state %v", x)
	}
}
