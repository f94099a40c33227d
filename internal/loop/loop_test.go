package loop_test

import (
	"context"
	"errors"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dpid/internal/loop"
	"github.com/san-kum/dpid/internal/metrics"
	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/pid"
)

type blowup struct{}

func (blowup) Derive(x plant.State, u float64, t float64) plant.State {
	return plant.State{math.Inf(1)}
}
func (blowup) Output(x plant.State) float64 { return x[0] }
func (blowup) StateDim() int                { return 1 }

var _ = Describe("Runner", func() {
	var (
		ctrl   *pid.Controller
		runner *loop.Runner
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ctrl = pid.New(2, 2, 0, 0.01, 0, -10, 10)
		runner = loop.New(ctrl, plant.NewFirstOrder(1, 0.5), plant.NewRK4(), loop.WithLogger(logger))
	})

	Context("tracking a step on a first-order plant", func() {
		It("settles on the setpoint", func() {
			res, err := runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 20, Setpoint: 1, Substeps: 10})
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Times).To(HaveLen(2000))
			Expect(res.Outputs).To(HaveLen(2000))
			Expect(res.Outputs[len(res.Outputs)-1]).To(BeNumerically("~", 1.0, 1e-2))
			Expect(res.Times[1]).To(BeNumerically("~", 0.01, 1e-12))
		})

		It("keeps every command inside the limits", func() {
			ctrl.SetLimits(-0.5, 0.5)
			res, err := runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 5, Setpoint: 3})
			Expect(err).NotTo(HaveOccurred())

			for _, u := range res.Controls {
				Expect(u).To(And(BeNumerically(">=", -0.5), BeNumerically("<=", 0.5)))
			}
			Expect(res.Controls[0]).To(Equal(0.5))
		})

		It("records metrics by name", func() {
			for _, m := range metrics.Default(0.01) {
				runner.AddMetric(m)
			}
			res, err := runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 5, Setpoint: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Metrics).To(HaveKey("iae"))
			Expect(res.Metrics).To(HaveKey("overshoot_pct"))
			Expect(res.Metrics["iae"]).To(BeNumerically(">", 0))
		})

		It("notifies observers once per sample", func() {
			count := 0
			runner.AddObserver(loop.ObserverFunc(func(metrics.Sample) { count++ }))

			_, err := runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 1, Setpoint: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(100))
		})
	})

	Context("with scheduled events", func() {
		It("changes the setpoint at the scheduled sample", func() {
			cfg := loop.Config{
				Duration: 2,
				Setpoint: 1,
				Events:   []loop.Event{loop.SetpointEvent(1.0, 0.5)},
			}
			res, err := runner.Run(context.Background(), plant.State{0}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Setpoints[99]).To(Equal(1.0))
			Expect(res.Setpoints[100]).To(Equal(0.5))
			Expect(res.Applied).To(ConsistOf(loop.AppliedEvent{Step: 100, Time: 1.0, Name: "setpoint=0.5"}))
		})

		It("retunes the controller and clears its history", func() {
			var historyClearedAt []bool
			p := ctrl.Params()
			p.Kp = 5

			cfg := loop.Config{
				Duration: 1,
				Setpoint: 1,
				Events: []loop.Event{
					loop.RetuneEvent(0.5, p),
					{At: 0.5, Name: "check history", Apply: func(c *pid.Controller) {
						historyClearedAt = append(historyClearedAt, c.IsReset())
					}},
				},
			}
			_, err := runner.Run(context.Background(), plant.State{0}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(ctrl.Kp()).To(Equal(5.0))
			Expect(historyClearedAt).To(Equal([]bool{true}))
		})

		It("applies events in time order", func() {
			cfg := loop.Config{
				Duration: 1,
				Setpoint: 0,
				Events:   []loop.Event{loop.ResetEvent(0.7), loop.SetpointEvent(0.2, 2)},
			}
			res, err := runner.Run(context.Background(), plant.State{0}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Applied).To(HaveLen(2))
			Expect(res.Applied[0].Name).To(Equal("setpoint=2"))
			Expect(res.Applied[1].Name).To(Equal("reset"))
			Expect(res.Applied[1].Step).To(Equal(70))
		})

		It("keeps the given order for events on the same sample", func() {
			cfg := loop.Config{
				Duration: 1,
				Setpoint: 0,
				Events:   []loop.Event{loop.SetpointEvent(0.204, 3), loop.SetpointEvent(0.2, 2)},
			}
			res, err := runner.Run(context.Background(), plant.State{0}, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Applied).To(HaveLen(2))
			Expect(res.Applied[0].Name).To(Equal("setpoint=3"))
			Expect(res.Applied[1].Name).To(Equal("setpoint=2"))
			Expect(res.Applied[1].Step).To(Equal(20))
			Expect(res.Setpoints[20]).To(Equal(2.0))
		})
	})

	Context("when the run cannot complete", func() {
		It("rejects invalid configs", func() {
			_, err := runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 0})
			Expect(err).To(MatchError(loop.ErrInvalidConfig))

			_, err = runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 1, Substeps: -1})
			Expect(err).To(MatchError(loop.ErrInvalidConfig))

			_, err = runner.Run(context.Background(), plant.State{0, 0}, loop.Config{Duration: 1})
			Expect(err).To(MatchError(loop.ErrInvalidConfig))

			_, err = runner.Run(context.Background(), plant.State{0}, loop.Config{Duration: 1, Events: []loop.Event{{At: 0.1, Name: "empty"}}})
			Expect(err).To(MatchError(loop.ErrInvalidConfig))

			for _, at := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
				res, err := runner.Run(context.Background(), plant.State{0},
					loop.Config{Duration: 0.05, Events: []loop.Event{loop.SetpointEvent(at, 3)}})
				Expect(err).To(MatchError(loop.ErrInvalidConfig), "at=%v", at)
				Expect(res).To(BeNil())
			}
			Expect(ctrl.Command()).To(Equal(0.0))
		})

		It("stops when an event changes the sample period", func() {
			p := ctrl.Params()
			p.Ts = 0.02

			res, err := runner.Run(context.Background(), plant.State{0},
				loop.Config{Duration: 1, Setpoint: 1, Events: []loop.Event{loop.RetuneEvent(0.5, p)}})
			Expect(err).To(MatchError(loop.ErrInvalidConfig))

			var stepErr *loop.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(50))
			Expect(res.Times).To(HaveLen(50))
		})

		It("stops on cancellation with a partial result", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res, err := runner.Run(ctx, plant.State{0}, loop.Config{Duration: 1, Setpoint: 1})
			Expect(err).To(MatchError(context.Canceled))
			Expect(res).NotTo(BeNil())
			Expect(res.Times).To(BeEmpty())
		})

		It("reports divergence with the failing step", func() {
			r := loop.New(ctrl, blowup{}, plant.NewEuler(), loop.WithLogger(logger))
			effort := metrics.NewControlEffort()
			r.AddMetric(effort)
			observed := 0
			r.AddObserver(loop.ObserverFunc(func(metrics.Sample) { observed++ }))

			res, err := r.Run(context.Background(), plant.State{0}, loop.Config{Duration: 1, Setpoint: 1})
			Expect(err).To(MatchError(loop.ErrDiverged))

			var stepErr *loop.StepError
			Expect(err).To(BeAssignableToTypeOf(stepErr))
			Expect(err.(*loop.StepError).Step).To(Equal(0))

			// the sample that drove the plant out is in the trace and the metrics alike
			Expect(res.Times).To(HaveLen(1))
			Expect(observed).To(Equal(1))
			Expect(res.Controls[0]).To(BeNumerically("~", 2.02, 1e-12))
			Expect(res.Metrics["control_effort"]).To(Equal(res.Controls[0]))
		})
	})
})

var _ = Describe("Session", func() {
	It("advances one sample per step and runs past the duration", func() {
		ctrl := pid.New(1, 0, 0, 0.1, 0, -1, 1)
		r := loop.New(ctrl, plant.NewIntegrating(1), plant.NewEuler(),
			loop.WithLogger(slog.New(slog.NewTextHandler(GinkgoWriter, nil))))

		sess, err := r.Start(plant.State{0}, loop.Config{Duration: 0.2, Setpoint: 0.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Steps()).To(Equal(2))

		s, err := sess.Step()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Control).To(BeNumerically("~", 0.5, 1e-12))
		Expect(sess.Output()).To(BeNumerically("~", 0.05, 1e-12))

		_, err = sess.Step()
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Done()).To(BeTrue())

		_, err = sess.Step()
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Time()).To(BeNumerically("~", 0.3, 1e-12))
	})
})
