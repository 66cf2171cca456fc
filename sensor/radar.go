package sensor

import (
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

const (
	// RadarDim is radar measurement dimension: [rho, theta, rho_dot]
	RadarDim = 3
	// MinRangeSq is the smallest squared range used as a denominator.
	// States closer to the origin are clamped to it which makes the
	// radar model an approximation in the vicinity of the sensor.
	MinRangeSq = 1e-4
)

// JacFunc computes observation Jacobian at state x
type JacFunc func(x mat.Vector) (*mat.Dense, error)

// Radar is a range, bearing and range rate sensor
type Radar struct {
	// r is measurement noise covariance
	r *mat.SymDense
	// jac computes observation Jacobian
	jac JacFunc
}

// RadarOption configures Radar
type RadarOption func(*Radar)

// WithJacobian configures radar to linearize its observations using jac.
func WithJacobian(jac JacFunc) RadarOption {
	return func(r *Radar) {
		r.jac = jac
	}
}

// WithNumericJacobian configures radar to linearize its observations
// using central finite differences instead of the analytic Jacobian.
func WithNumericJacobian() RadarOption {
	return WithJacobian(NumericRadarJacobian)
}

// NewRadar creates new Radar sensor with measurement noise covariance r and returns it.
// It returns error if r is nil or its dimensions are not 3 x 3.
func NewRadar(r mat.Symmetric, opts ...RadarOption) (*Radar, error) {
	if r == nil {
		return nil, fmt.Errorf("invalid radar noise covariance: %v", r)
	}

	if r.SymmetricDim() != RadarDim {
		return nil, fmt.Errorf("invalid radar noise dimension: %d", r.SymmetricDim())
	}

	cov := mat.NewSymDense(RadarDim, nil)
	cov.CopySym(r)

	radar := &Radar{
		r:   cov,
		jac: RadarJacobian,
	}

	for _, apply := range opts {
		apply(radar)
	}

	return radar, nil
}

// Type returns fusion.Radar
func (r *Radar) Type() fusion.SensorType {
	return fusion.Radar
}

// Dim returns radar measurement dimension
func (r *Radar) Dim() int {
	return RadarDim
}

// Correction computes radar correction for measurement z around state x.
// The bearing component of the innovation is wrapped into (-Pi, Pi].
// It returns error if either z or x have invalid dimensions.
func (r *Radar) Correction(z, x mat.Vector) (*fusion.Correction, error) {
	if z.Len() != RadarDim {
		return nil, fmt.Errorf("invalid radar measurement length: %d", z.Len())
	}

	y, err := RadarObserve(x)
	if err != nil {
		return nil, err
	}

	h, err := r.jac(x)
	if err != nil {
		return nil, fmt.Errorf("failed to compute radar jacobian: %w", err)
	}

	inn := mat.NewVecDense(RadarDim, nil)
	inn.SubVec(z, y)
	inn.SetVec(1, NormalizeAngle(inn.AtVec(1)))

	return &fusion.Correction{
		H:          h,
		Y:          inn,
		R:          r.Cov(),
		Degenerate: IsDegenerate(x),
	}, nil
}

// Cov returns radar measurement noise covariance
func (r *Radar) Cov() mat.Symmetric {
	cov := mat.NewSymDense(RadarDim, nil)
	cov.CopySym(r.r)

	return cov
}

// IsDegenerate returns true if the position of state x is too close to the
// origin for the radar model to be evaluated without clamping.
func IsDegenerate(x mat.Vector) bool {
	px, py := x.AtVec(0), x.AtVec(1)
	return px*px+py*py < MinRangeSq
}

// CartesianToPolar converts position and velocity to range, bearing and range rate.
// Bearing is measured from the x axis. Range rate denominator is clamped to MinRangeSq.
func CartesianToPolar(px, py, vx, vy float64) (rho, theta, rhoDot float64) {
	rho = math.Sqrt(px*px + py*py)
	theta = math.Atan2(py, px)
	rhoDot = (px*vx + py*vy) / math.Sqrt(math.Max(px*px+py*py, MinRangeSq))

	return rho, theta, rhoDot
}

// PolarToCartesian converts range rho and bearing theta measured from the x axis to position.
func PolarToCartesian(rho, theta float64) (px, py float64) {
	return rho * math.Cos(theta), rho * math.Sin(theta)
}

// RadarObserve returns predicted radar measurement [rho, theta, rho_dot] for state x.
// It returns error if x is not a 4 element state vector.
func RadarObserve(x mat.Vector) (*mat.VecDense, error) {
	if x.Len() != stateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	rho, theta, rhoDot := CartesianToPolar(x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3))

	return mat.NewVecDense(RadarDim, []float64{rho, theta, rhoDot}), nil
}

// RadarJacobian returns analytic Jacobian of the radar observation evaluated at state x.
// Squared range is clamped to MinRangeSq so the result is always finite.
// It returns error if x is not a 4 element state vector.
func RadarJacobian(x mat.Vector) (*mat.Dense, error) {
	if x.Len() != stateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	px, py := x.AtVec(0), x.AtVec(1)
	vx, vy := x.AtVec(2), x.AtVec(3)

	c1 := math.Max(px*px+py*py, MinRangeSq)
	c2 := math.Sqrt(c1)
	c3 := c1 * c2

	return mat.NewDense(RadarDim, stateDim, []float64{
		px / c2, py / c2, 0, 0,
		-py / c1, px / c1, 0, 0,
		py * (vx*py - vy*px) / c3, px * (px*vy - py*vx) / c3, px / c2, py / c2,
	}), nil
}

// NumericRadarJacobian returns radar observation Jacobian at state x
// approximated by central finite differences.
// It returns error if x is not a 4 element state vector.
func NumericRadarJacobian(x mat.Vector) (*mat.Dense, error) {
	if x.Len() != stateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	observe := func(y, xNow []float64) {
		y[0], y[1], y[2] = CartesianToPolar(xNow[0], xNow[1], xNow[2], xNow[3])
	}

	jac := mat.NewDense(RadarDim, stateDim, nil)
	fd.Jacobian(jac, observe, mat.Col(nil, 0, x), &fd.JacobianSettings{
		Formula: fd.Central,
	})

	return jac, nil
}
