// Package loop runs a pid.Controller in closed loop against a simulated
// plant at a fixed sample period.
//
// Each sample the runner applies any scheduled events (setpoint changes,
// retunes, history resets), reads the plant output, calls Update once,
// and holds the returned command on the plant for one period while the
// plant is integrated in Substeps fixed steps.
//
// # Example
//
//	ctrl := pid.New(2, 2, 0, 0.01, 0, -10, 10)
//	r := loop.New(ctrl, plant.NewFirstOrder(1, 0.5), plant.NewRK4())
//	res, err := r.Run(ctx, plant.State{0}, loop.Config{Duration: 20, Setpoint: 1})
//
// Runner and Session are NOT thread-safe.
package loop
