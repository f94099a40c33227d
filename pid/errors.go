package pid

import "errors"

// ErrUnknownParam is returned for a parameter name that is not one of
// kp, ki, kd, ts, n, u_min, u_max.
var ErrUnknownParam = errors.New("pid: unknown parameter")

// Precondition violations reported by [Params.Validate].
var (
	// ErrSamplePeriod indicates a sample period that is not strictly positive.
	ErrSamplePeriod = errors.New("pid: sample period must be positive")

	// ErrFilterBandwidth indicates a negative derivative filter bandwidth.
	ErrFilterBandwidth = errors.New("pid: derivative filter bandwidth must be non-negative")

	// ErrLimits indicates an output range with uMin > uMax.
	ErrLimits = errors.New("pid: output limits are inverted")

	// ErrNonFinite indicates a NaN or Inf parameter.
	ErrNonFinite = errors.New("pid: parameter is not finite")
)
