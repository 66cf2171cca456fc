package sim

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/motion"
	"gonum.org/v1/gonum/mat"
)

// Target is a simulated object moving with nearly constant velocity
type Target struct {
	// model propagates target state
	model *motion.ConstantVelocity
	// state is the true target state
	state *mat.VecDense
	// accel is random acceleration noise; nil means no acceleration
	accel fusion.Noise
}

// NewTarget creates new Target with initial state x and returns it.
// If accel is not nil, every step applies a random acceleration [ax, ay] sampled from it.
// It returns error if x is not a 4 element state or accel is not 2 dimensional.
func NewTarget(x mat.Vector, accel fusion.Noise) (*Target, error) {
	if x == nil || x.Len() != motion.StateDim {
		return nil, fmt.Errorf("invalid target state")
	}

	if accel != nil && accel.Cov().SymmetricDim() != 2 {
		return nil, fmt.Errorf("invalid acceleration noise dimension: %d", accel.Cov().SymmetricDim())
	}

	cv, err := motion.New(0, 0)
	if err != nil {
		return nil, err
	}

	return &Target{
		model: cv,
		state: mat.VecDenseCopyOf(x),
		accel: accel,
	}, nil
}

// Step moves target by dt seconds and returns its new state.
// It returns error if dt is negative.
func (t *Target) Step(dt float64) (mat.Vector, error) {
	x, err := t.model.Propagate(t.state, dt)
	if err != nil {
		return nil, err
	}

	next := mat.VecDenseCopyOf(x)

	if t.accel != nil {
		a := t.accel.Sample()
		// G = [dt^2/2 0; 0 dt^2/2; dt 0; 0 dt]
		g := mat.NewDense(motion.StateDim, 2, []float64{
			dt * dt / 2, 0,
			0, dt * dt / 2,
			dt, 0,
			0, dt,
		})
		ga := mat.NewVecDense(motion.StateDim, nil)
		ga.MulVec(g, a)
		next.AddVec(next, ga)
	}

	t.state = next

	return t.State(), nil
}

// State returns current target state
func (t *Target) State() mat.Vector {
	return mat.VecDenseCopyOf(t.state)
}
