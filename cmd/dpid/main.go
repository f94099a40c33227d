package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/dpid/internal/analysis"
	"github.com/san-kum/dpid/internal/config"
	"github.com/san-kum/dpid/internal/loop"
	"github.com/san-kum/dpid/internal/metrics"
	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/internal/storage"
	"github.com/san-kum/dpid/internal/tui"
	"github.com/san-kum/dpid/pid"
)

var (
	dataDir    string
	verbose    bool
	configFile string
	preset     string
	name       string
	kp         float64
	ki         float64
	kd         float64
	ts         float64
	filterN    float64
	uMin       float64
	uMax       float64
	setpoint   float64
	duration   float64
	noSave     bool
)

var header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// main registers the dpid commands and exits with status 1 if the selected
// command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:          "dpid",
		Short:        "discrete PID controller workbench",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dpid", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the controller against a simulated plant",
		Args:  cobra.NoArgs,
		RunE:  runLoop,
	}
	addTuningFlags(runCmd)
	runCmd.Flags().StringVar(&name, "name", "", "run name (defaults to preset or plant kind)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "tune gains interactively while the loop runs",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addTuningFlags(tuneCmd)

	coeffsCmd := &cobra.Command{
		Use:   "coeffs",
		Short: "print the filter coefficients for a parameter set",
		Args:  cobra.NoArgs,
		RunE:  printCoeffs,
	}
	addTuningFlags(coeffsCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(cmd.OutOrStdout(), args[0])
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("presets:")
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "show the spectra of a stored run's control and error signals",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	compareCmd := &cobra.Command{
		Use:   "compare [preset...]",
		Short: "run several presets side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE:  comparePresets,
	}

	rootCmd.AddCommand(runCmd, tuneCmd, coeffsCmd, listCmd, plotCmd, exportJSONCmd, presetsCmd, analyzeCmd, compareCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTuningFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "integral gain")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
	cmd.Flags().Float64Var(&ts, "ts", config.DefaultTs, "sample period (s)")
	cmd.Flags().Float64Var(&filterN, "n", config.DefaultN, "derivative filter bandwidth")
	cmd.Flags().Float64Var(&uMin, "umin", config.DefaultUMin, "lower output limit")
	cmd.Flags().Float64Var(&uMax, "umax", config.DefaultUMax, "upper output limit")
	cmd.Flags().Float64Var(&setpoint, "setpoint", config.DefaultSetpoint, "initial setpoint")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration (s)")
}

// resolveConfig layers preset, config file and explicit flags, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p, err := config.GetPreset(preset)
		if err != nil {
			return nil, err
		}
		cfg = p
	}

	if configFile != "" {
		if err := config.LoadInto(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag string
		dst  *float64
		src  float64
	}{
		{"kp", &cfg.Controller.Kp, kp},
		{"ki", &cfg.Controller.Ki, ki},
		{"kd", &cfg.Controller.Kd, kd},
		{"ts", &cfg.Controller.Ts, ts},
		{"n", &cfg.Controller.N, filterN},
		{"umin", &cfg.Controller.UMin, uMin},
		{"umax", &cfg.Controller.UMax, uMax},
		{"setpoint", &cfg.Run.Setpoint, setpoint},
		{"time", &cfg.Run.Duration, duration},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.src
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func build(cfg *config.Config, logger *slog.Logger) (*loop.Runner, plant.State, error) {
	sys, err := plant.New(cfg.Plant.Kind, cfg.PlantParams())
	if err != nil {
		return nil, nil, err
	}
	stepper, err := plant.NewStepper(cfg.Run.Integrator)
	if err != nil {
		return nil, nil, err
	}

	ctrl := pid.NewFromParams(cfg.Controller)
	r := loop.New(ctrl, sys, stepper, loop.WithLogger(logger))
	return r, cfg.InitState(sys), nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	r, x0, err := build(cfg, slog.Default())
	if err != nil {
		return err
	}
	for _, m := range metrics.Default(cfg.Controller.Ts) {
		r.AddMetric(m)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	result, err := r.Run(ctx, x0, cfg.LoopConfig())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", len(result.Times))
	if n := len(result.Outputs); n > 0 {
		fmt.Printf("final output: %.6f (setpoint %.6f)\n", result.Outputs[n-1], result.Setpoints[n-1])
	}

	fmt.Println(header.Render("\nmetrics:"))
	for _, m := range r.Metrics() {
		fmt.Printf("  %s: %.6f\n", m, result.Metrics[m])
	}

	if noSave {
		return nil
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	runName := name
	if runName == "" {
		runName = preset
	}
	if runName == "" {
		runName = cfg.Plant.Kind
	}
	runID, err := st.Save(storage.RunMetadata{
		Name:       runName,
		Controller: cfg.Controller,
		Plant:      cfg.Plant.Kind,
		Duration:   cfg.Run.Duration,
		Setpoint:   cfg.Run.Setpoint,
	}, result)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)

	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// the terminal belongs to the UI
	r, x0, err := build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	sess, err := r.Start(x0, cfg.LoopConfig())
	if err != nil {
		return err
	}
	return tui.Run(sess, r.Controller())
}

func printCoeffs(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	c := pid.Derive(cfg.Controller)
	p := cfg.Controller

	fmt.Println(header.Render("parameters"))
	fmt.Printf("  kp=%g ki=%g kd=%g ts=%g n=%g limits=[%g, %g]\n", p.Kp, p.Ki, p.Kd, p.Ts, p.N, p.UMin, p.UMax)
	fmt.Println(header.Render("coefficients"))
	fmt.Printf("  ku1 = %.12g\n  ku2 = %.12g\n", c.Ku1, c.Ku2)
	fmt.Printf("  ke0 = %.12g\n  ke1 = %.12g\n  ke2 = %.12g\n", c.Ke0, c.Ke1, c.Ke2)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLANT\tKP\tKI\tKD\tSTEPS\tIAE\tTIMESTAMP")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%g\t%d\t%.4f\t%s\n",
			run.ID, run.Plant, run.Controller.Kp, run.Controller.Ki, run.Controller.Kd,
			run.Steps, run.Metrics["iae"], run.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID := args[0]

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(tr.Times) == 0 {
		return fmt.Errorf("run %s has no samples", runID)
	}

	fmt.Println(header.Render(fmt.Sprintf("%s  kp=%g ki=%g kd=%g n=%g", meta.ID,
		meta.Controller.Kp, meta.Controller.Ki, meta.Controller.Kd, meta.Controller.N)))
	fmt.Println()

	graph := asciigraph.PlotMany([][]float64{tr.Setpoints, tr.Outputs},
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption("setpoint / output"),
	)
	fmt.Println(graph)
	fmt.Println()

	graph = asciigraph.Plot(tr.Controls,
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("control"),
	)
	fmt.Println(graph)
	fmt.Println()

	for _, ev := range meta.Events {
		fmt.Printf("  t=%.3f  %s\n", ev.Time, ev.Name)
	}

	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID := args[0]

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(tr.Times) < 2 {
		return fmt.Errorf("run %s has too few samples", runID)
	}

	errs := make([]float64, len(tr.Outputs))
	for i := range errs {
		errs[i] = tr.Setpoints[i] - tr.Outputs[i]
	}

	ts := meta.Controller.Ts
	if !(ts > 0) {
		return fmt.Errorf("run %s has invalid sample period %v", runID, ts)
	}
	nyquist := 0.5 / ts
	for _, sig := range []struct {
		name string
		data []float64
	}{
		{"control", tr.Controls},
		{"error", errs},
	} {
		sp := analysis.NewSpectrum(sig.data, ts)
		fmt.Println(header.Render(sig.name))
		fmt.Printf("  dominant: %.3f Hz\n", sp.Dominant())
		fmt.Printf("  energy above %.3f Hz: %.2f%%\n", nyquist/2, 100*sp.HighBandRatio(nyquist/2))
		fmt.Println(asciigraph.Plot(sp.Magnitude,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("|%s| 0 .. %.1f Hz", sig.name, nyquist)),
		))
		fmt.Println()
	}
	return nil
}

func comparePresets(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cases := make([]loop.Case, 0, len(args))
	var names []string
	for _, presetName := range args {
		cfg, err := config.GetPreset(presetName)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", presetName, err)
		}
		r, x0, err := build(cfg, logger.With("case", presetName))
		if err != nil {
			return err
		}
		for _, m := range metrics.Default(cfg.Controller.Ts) {
			r.AddMetric(m)
		}
		names = r.Metrics()
		cases = append(cases, loop.Case{Name: presetName, Runner: r, X0: x0, Config: cfg.LoopConfig()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := loop.RunAll(ctx, cases)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "METRIC")
	for _, c := range cases {
		fmt.Fprintf(w, "\t%s", c.Name)
	}
	fmt.Fprintln(w)
	for _, m := range names {
		fmt.Fprint(w, m)
		for _, res := range results {
			fmt.Fprintf(w, "\t%.4f", res.Metrics[m])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
