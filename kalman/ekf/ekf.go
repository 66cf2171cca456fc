package ekf

import (
	"errors"
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/estimate"
	"github.com/milosgajdos/go-fusion/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// MinInnovationDet is the default smallest innovation covariance determinant accepted by Update
	MinInnovationDet = 1e-12
)

// EKF is Extended Kalman Filter
type EKF struct {
	// x is EKF state
	x *mat.VecDense
	// p is the EKF covariance matrix
	p *mat.SymDense
	// f is EKF state transition matrix
	f *mat.Dense
	// q is EKF process noise covariance
	q *mat.SymDense
	// inn is the last innovation vector
	inn *mat.VecDense
	// s is the last innovation covariance
	s *mat.SymDense
	// k is the last Kalman gain
	k *mat.Dense
	// minDet is the smallest accepted innovation covariance determinant
	minDet float64
	// initialized is set once state and covariance have been set
	initialized bool
}

// Option configures EKF
type Option func(*EKF)

// WithMinInnovationDet sets the smallest innovation covariance determinant
// below which Update refuses to correct the state.
func WithMinInnovationDet(d float64) Option {
	return func(k *EKF) {
		k.minDet = d
	}
}

// New creates new uninitialized EKF with state dimension nx and returns it.
// Its transition matrix is identity and its process noise is zero until SetTransition is called.
// It returns error if nx is not a positive integer.
func New(nx int, opts ...Option) (*EKF, error) {
	if nx <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", nx)
	}

	f, err := matrix.Identity(nx)
	if err != nil {
		return nil, err
	}

	k := &EKF{
		x:      mat.NewVecDense(nx, nil),
		p:      mat.NewSymDense(nx, nil),
		f:      f,
		q:      mat.NewSymDense(nx, nil),
		minDet: MinInnovationDet,
	}

	for _, apply := range opts {
		apply(k)
	}

	if k.minDet < 0 || math.IsNaN(k.minDet) {
		return nil, fmt.Errorf("invalid innovation determinant threshold: %v", k.minDet)
	}

	return k, nil
}

// Init sets EKF state and covariance to the initial condition ic.
// It returns error if ic dimensions do not match EKF state dimension.
func (k *EKF) Init(ic fusion.InitCond) error {
	if ic == nil {
		return fmt.Errorf("invalid initial condition: %v", ic)
	}

	nx := k.x.Len()
	if ic.State().Len() != nx || ic.Cov().SymmetricDim() != nx {
		return fmt.Errorf("invalid initial condition dimensions: state %d, cov %d",
			ic.State().Len(), ic.Cov().SymmetricDim())
	}

	if !matrix.IsFinite(ic.State()) || !matrix.IsFinite(ic.Cov()) {
		return fmt.Errorf("%w: initial condition is not finite", fusion.ErrNumericalInstability)
	}

	k.x.CopyVec(ic.State())
	k.p.CopySym(ic.Cov())
	k.inn, k.s, k.k = nil, nil, nil
	k.initialized = true

	return nil
}

// Initialized returns true if EKF state has been initialized
func (k *EKF) Initialized() bool {
	return k.initialized
}

// Reset returns EKF into uninitialized state.
// Transition matrix and process noise are retained.
func (k *EKF) Reset() {
	k.x.Zero()
	k.p.Zero()
	k.inn, k.s, k.k = nil, nil, nil
	k.initialized = false
}

// SetTransition sets state transition matrix f and process noise covariance q.
// It returns error if either f or q do not match EKF state dimension.
func (k *EKF) SetTransition(f mat.Matrix, q mat.Symmetric) error {
	if f == nil || q == nil {
		return fmt.Errorf("invalid transition: f=%v q=%v", f, q)
	}

	nx := k.x.Len()
	if rows, cols := f.Dims(); rows != nx || cols != nx {
		return fmt.Errorf("invalid transition matrix dimensions: [%d x %d]", rows, cols)
	}

	if q.SymmetricDim() != nx {
		return fmt.Errorf("invalid process noise dimension: %d", q.SymmetricDim())
	}

	k.f.Copy(f)
	k.q.CopySym(q)

	return nil
}

// Predict propagates EKF state and covariance to the next step:
//
//	x = F*x
//	P = F*P*F' + Q
//
// It returns ErrUninitialized if EKF has not been initialized.
func (k *EKF) Predict() (fusion.Estimate, error) {
	if !k.initialized {
		return nil, fusion.ErrUninitialized
	}

	nx := k.x.Len()

	xNext := mat.NewVecDense(nx, nil)
	xNext.MulVec(k.f, k.x)

	fp := mat.NewDense(nx, nx, nil)
	fp.Mul(k.f, k.p)
	cov := mat.NewDense(nx, nx, nil)
	cov.Mul(fp, k.f.T())
	cov.Add(cov, k.q)

	if !matrix.IsFinite(xNext) || !matrix.IsFinite(cov) {
		return nil, fmt.Errorf("%w: state propagation", fusion.ErrNumericalInstability)
	}

	k.x.CopyVec(xNext)
	if err := matrix.Symmetrize(k.p, cov); err != nil {
		return nil, err
	}

	return estimate.NewBaseWithCov(k.x, k.p)
}

// Update corrects EKF state using sensor correction c:
//
//	S = H*P*H' + R
//	K = P*H'*inv(S)
//	x = x + K*y
//	P = (I - K*H)*P*(I - K*H)' + K*R*K'
//
// If S is near singular the correction is skipped, the state is left untouched
// and the returned error wraps ErrSingularInnovation.
// It returns ErrUninitialized if EKF has not been initialized.
func (k *EKF) Update(c *fusion.Correction) (fusion.Estimate, error) {
	if !k.initialized {
		return nil, fusion.ErrUninitialized
	}

	if c == nil || c.H == nil || c.Y == nil || c.R == nil {
		return nil, fmt.Errorf("invalid correction: %v", c)
	}

	nx := k.x.Len()
	ny, cols := c.H.Dims()
	if cols != nx {
		return nil, fmt.Errorf("invalid observation matrix dimensions: [%d x %d]", ny, cols)
	}

	if c.Y.Len() != ny {
		return nil, fmt.Errorf("invalid innovation length: %d", c.Y.Len())
	}

	if c.R.SymmetricDim() != ny {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", c.R.SymmetricDim())
	}

	// P*H'
	pxy := mat.NewDense(nx, ny, nil)
	pxy.Mul(k.p, c.H.T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy := mat.NewDense(ny, ny, nil)
	pyy.Mul(c.H, pxy)
	pyy.Add(pyy, c.R)

	if !matrix.IsFinite(pyy) {
		return nil, fmt.Errorf("%w: innovation covariance is not finite", fusion.ErrSingularInnovation)
	}

	if det := mat.Det(pyy); math.Abs(det) < k.minDet {
		return nil, fmt.Errorf("%w: det(S)=%g", fusion.ErrSingularInnovation, det)
	}

	// calculate Kalman gain
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, errors.Join(fusion.ErrSingularInnovation, err)
	}
	gain := mat.NewDense(nx, ny, nil)
	gain.Mul(pxy, pyyInv)

	// update state x
	corr := mat.NewVecDense(nx, nil)
	corr.MulVec(gain, c.Y)
	x := mat.NewVecDense(nx, nil)
	x.AddVec(k.x, corr)

	// Joseph form update
	eye, err := matrix.Identity(nx)
	if err != nil {
		return nil, err
	}
	a := mat.NewDense(nx, nx, nil)
	// K*H
	a.Mul(gain, c.H)
	// eye - K*H
	a.Sub(eye, a)

	ap := mat.NewDense(nx, nx, nil)
	ap.Mul(a, k.p)
	pCorr := mat.NewDense(nx, nx, nil)
	pCorr.Mul(ap, a.T())

	// K*R*K'
	kr := mat.NewDense(nx, ny, nil)
	kr.Mul(gain, c.R)
	krk := mat.NewDense(nx, nx, nil)
	krk.Mul(kr, gain.T())
	pCorr.Add(pCorr, krk)

	if !matrix.IsFinite(x) || !matrix.IsFinite(pCorr) {
		return nil, fmt.Errorf("%w: state correction", fusion.ErrNumericalInstability)
	}

	s := mat.NewSymDense(ny, nil)
	if err := matrix.Symmetrize(s, pyy); err != nil {
		return nil, err
	}

	// update EKF state, covariance and the last correction
	k.x.CopyVec(x)
	if err := matrix.Symmetrize(k.p, pCorr); err != nil {
		return nil, err
	}
	k.inn = mat.VecDenseCopyOf(c.Y)
	k.s = s
	k.k = gain

	return estimate.NewBaseWithCov(k.x, k.p)
}

// Estimate returns current EKF estimate.
// It returns ErrUninitialized if EKF has not been initialized.
func (k *EKF) Estimate() (fusion.Estimate, error) {
	if !k.initialized {
		return nil, fusion.ErrUninitialized
	}

	return estimate.NewBaseWithCov(k.x, k.p)
}

// State returns EKF state
func (k *EKF) State() mat.Vector {
	return mat.VecDenseCopyOf(k.x)
}

// Cov returns EKF covariance
func (k *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets EKF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as EKF covariance dimensions.
func (k *EKF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// Transition returns EKF state transition matrix
func (k *EKF) Transition() mat.Matrix {
	return mat.DenseCopyOf(k.f)
}

// ProcessNoise returns EKF process noise covariance
func (k *EKF) ProcessNoise() mat.Symmetric {
	q := mat.NewSymDense(k.q.SymmetricDim(), nil)
	q.CopySym(k.q)

	return q
}

// Gain returns the Kalman gain of the last successful update or nil if there was none.
func (k *EKF) Gain() mat.Matrix {
	if k.k == nil {
		return nil
	}

	return mat.DenseCopyOf(k.k)
}

// Innovation returns the innovation of the last successful update or nil if there was none.
func (k *EKF) Innovation() mat.Vector {
	if k.inn == nil {
		return nil
	}

	return mat.VecDenseCopyOf(k.inn)
}

// InnovationCov returns the innovation covariance of the last successful update or nil if there was none.
func (k *EKF) InnovationCov() mat.Symmetric {
	if k.s == nil {
		return nil
	}

	s := mat.NewSymDense(k.s.SymmetricDim(), nil)
	s.CopySym(k.s)

	return s
}
