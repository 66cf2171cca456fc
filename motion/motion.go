package motion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// StateDim is the length of the [px, py, vx, vy] state vector
	StateDim = 4
)

// ConstantVelocity is a 2D constant velocity motion model whose unmodeled
// acceleration is treated as white noise.
type ConstantVelocity struct {
	// NoiseAX is acceleration noise variance along x axis
	NoiseAX float64
	// NoiseAY is acceleration noise variance along y axis
	NoiseAY float64
}

// New creates new constant velocity model with acceleration noise variances ax and ay.
// It returns error if either of the noise variances is negative.
func New(ax, ay float64) (*ConstantVelocity, error) {
	if ax < 0 || ay < 0 {
		return nil, fmt.Errorf("invalid acceleration noise: [%f, %f]", ax, ay)
	}

	return &ConstantVelocity{NoiseAX: ax, NoiseAY: ay}, nil
}

// Transition returns state transition matrix for time step dt given in seconds:
//
//	F = [1 0 dt 0 ]
//	    [0 1 0  dt]
//	    [0 0 1  0 ]
//	    [0 0 0  1 ]
func (c *ConstantVelocity) Transition(dt float64) *mat.Dense {
	return mat.NewDense(StateDim, StateDim, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// ProcessNoise returns process noise covariance for time step dt given in seconds.
// It is the discretized white noise acceleration model.
func (c *ConstantVelocity) ProcessNoise(dt float64) *mat.SymDense {
	dt2 := dt * dt
	dt3 := dt2 * dt / 2
	dt4 := dt2 * dt2 / 4

	ax, ay := c.NoiseAX, c.NoiseAY

	return mat.NewSymDense(StateDim, []float64{
		dt4 * ax, 0, dt3 * ax, 0,
		0, dt4 * ay, 0, dt3 * ay,
		dt3 * ax, 0, dt2 * ax, 0,
		0, dt3 * ay, 0, dt2 * ay,
	})
}

// Propagate propagates state x by time step dt and returns the new state.
// It returns error if x has invalid dimension or dt is negative.
func (c *ConstantVelocity) Propagate(x mat.Vector, dt float64) (mat.Vector, error) {
	if x.Len() != StateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	if dt < 0 {
		return nil, fmt.Errorf("invalid time step: %f", dt)
	}

	out := mat.NewVecDense(StateDim, nil)
	out.MulVec(c.Transition(dt), x)

	return out, nil
}
