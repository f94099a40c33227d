package loop_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dpid/internal/loop"
	"github.com/san-kum/dpid/internal/plant"
	"github.com/san-kum/dpid/pid"
)

var _ = Describe("RunAll", func() {
	newCase := func(name string, kp float64, sys plant.System) loop.Case {
		ctrl := pid.New(kp, 1, 0, 0.01, 0, -5, 5)
		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		return loop.Case{
			Name:   name,
			Runner: loop.New(ctrl, sys, plant.NewRK4(), loop.WithLogger(logger)),
			X0:     plant.State{0},
			Config: loop.Config{Duration: 2, Setpoint: 1},
		}
	}

	It("returns results in case order", func() {
		cases := []loop.Case{
			newCase("soft", 0.5, plant.NewFirstOrder(1, 0.5)),
			newCase("stiff", 4, plant.NewFirstOrder(1, 0.5)),
		}

		results, err := loop.RunAll(context.Background(), cases)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Times).To(HaveLen(200))
		Expect(results[0].Controls[0]).To(BeNumerically("~", 0.51, 1e-9))
		Expect(results[1].Controls[0]).To(BeNumerically("~", 4.01, 1e-9))
	})

	It("fails with the name of the broken case", func() {
		cases := []loop.Case{
			newCase("ok", 1, plant.NewFirstOrder(1, 0.5)),
			newCase("broken", 1, blowup{}),
		}

		_, err := loop.RunAll(context.Background(), cases)
		Expect(err).To(MatchError(loop.ErrDiverged))
		Expect(err.Error()).To(ContainSubstring("broken"))
	})
})
