package loop

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dpid/internal/plant"
)

// Case is one independent closed loop. Cases must not share a Runner,
// controller or stepper.
type Case struct {
	Name   string
	Runner *Runner
	X0     plant.State
	Config Config
}

// RunAll runs every case concurrently and returns results in case order.
// The first failure cancels the others.
func RunAll(ctx context.Context, cases []Case) ([]*Result, error) {
	results := make([]*Result, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			res, err := c.Runner.Run(ctx, c.X0, c.Config)
			if err != nil {
				return fmt.Errorf("case %s: %w", c.Name, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
