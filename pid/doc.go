// Package pid implements a discrete-time PID controller with a first-order
// low-pass filter on the derivative term and output saturation.
//
// The controller is a biquad IIR filter in direct form. Each call to
// [Controller.Update] consumes one measurement, computes one output from the
// two previous errors and outputs, clamps it to the configured limits and
// stores the clamped value back into history:
//
//	u[0] = -ku1*u[1] - ku2*u[2] + ke0*e[0] + ke1*e[1] + ke2*e[2]
//
// There is no separate integral accumulator. Feeding the clamped output back
// into the recursion is the only anti-windup mechanism.
//
// # Usage
//
//	c := pid.New(1.0, 0.5, 0.05, 0.02, 20, -1, 1) // Kp, Ki, Kd, Ts, N, uMin, uMax
//	c.SetCommand(setpoint)
//	for range ticker.C {
//		plant.Apply(c.Update(plant.Read()))
//	}
//
// Every parameter setter recomputes the filter coefficients and clears
// history. [Controller.SetCommand] touches neither.
//
// # Thread Safety
//
// Controller is NOT safe for concurrent use. Each control loop owns its own
// instance.
package pid
