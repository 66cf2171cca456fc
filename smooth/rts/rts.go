package rts

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/estimate"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/motion"
	"gonum.org/v1/gonum/mat"
)

// RTS is Rauch-Tung-Striebel smoother of constant velocity estimates
type RTS struct {
	// m is the motion model used by the filter
	m *motion.ConstantVelocity
}

// New creates new RTS for estimates produced with motion model m and returns it.
// It returns error if m is nil.
func New(m *motion.ConstantVelocity) (*RTS, error) {
	if m == nil {
		return nil, fmt.Errorf("invalid motion model: %v", m)
	}

	return &RTS{
		m: m,
	}, nil
}

// Smooth implements Rauch-Tung-Striebel smoothing algorithm.
// It uses filtered estimates est taken at timestamps ts (microseconds) to compute smoothed estimates and returns them.
// It returns error if est and ts lengths differ, timestamps decrease or smoothing could not be computed.
func (s *RTS) Smooth(est []fusion.Estimate, ts []int64) ([]fusion.Estimate, error) {
	if len(est) == 0 {
		return nil, fmt.Errorf("invalid estimates size: %d", len(est))
	}

	if len(ts) != len(est) {
		return nil, fmt.Errorf("invalid timestamps size: %d != %d", len(ts), len(est))
	}

	n := len(est)
	sx := make([]fusion.Estimate, n)

	// the last filtered estimate is already smoothed
	last, err := estimate.NewBaseWithCov(est[n-1].Val(), est[n-1].Cov())
	if err != nil {
		return nil, err
	}
	sx[n-1] = last

	for i := n - 2; i >= 0; i-- {
		if ts[i+1] < ts[i] {
			return nil, fmt.Errorf("%w: %d < %d", fusion.ErrNonMonotonicTimestamp, ts[i+1], ts[i])
		}

		dt := float64(ts[i+1]-ts[i]) / 1e6
		f := s.m.Transition(dt)

		// propagate filtered state to the next step
		xk1 := &mat.VecDense{}
		xk1.MulVec(f, est[i].Val())

		// propagate covariance matrix to the next step
		pk1 := &mat.Dense{}
		pk1.Mul(f, est[i].Cov())
		pk1.Mul(pk1, f.T())
		pk1.Add(pk1, s.m.ProcessNoise(dt))

		// calculate smoothing matrix
		c := &mat.Dense{}
		// Pk*Fk'
		c.Mul(est[i].Cov(), f.T())
		// P_(k+1)^-1 inverse
		pinv := &mat.Dense{}
		// invert predicted P_k+1 covariance
		if err := pinv.Inverse(pk1); err != nil {
			return nil, fmt.Errorf("failed to invert predicted covariance at step %d: %w", i, err)
		}
		// Pk*Fk'* P_(k+1)^-1
		c.Mul(c, pinv)

		// smooth the state
		xSub := &mat.VecDense{}
		xSub.SubVec(sx[i+1].Val(), xk1)
		// c*x_sub
		x := &mat.VecDense{}
		x.MulVec(c, xSub)
		// xk + Ck*x_sub
		x.AddVec(est[i].Val(), x)

		// smooth covariance
		cov := &mat.Dense{}
		cov.Sub(sx[i+1].Cov(), pk1)
		// Ck*P_sub
		pk := &mat.Dense{}
		pk.Mul(c, cov)
		// Ck*P_sub*Ck'
		pk.Mul(pk, c.T())
		// Pk + Ck*P_sub*Ck'
		pk.Add(est[i].Cov(), pk)

		r, _ := pk.Dims()
		pSmooth := mat.NewSymDense(r, nil)
		if err := matrix.Symmetrize(pSmooth, pk); err != nil {
			return nil, err
		}

		e, err := estimate.NewBaseWithCov(x, pSmooth)
		if err != nil {
			return nil, err
		}
		sx[i] = e
	}

	return sx, nil
}
