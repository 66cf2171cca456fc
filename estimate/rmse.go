package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RMSE accumulates root mean squared error of estimates against ground truth
type RMSE struct {
	// sum holds per element sums of squared residuals
	sum []float64
	// n is the number of accumulated samples
	n int
}

// NewRMSE creates new RMSE accumulator for vectors of length dim.
// It returns error if dim is not a positive integer.
func NewRMSE(dim int) (*RMSE, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid RMSE dimension: %d", dim)
	}

	return &RMSE{
		sum: make([]float64, dim),
	}, nil
}

// Add accumulates squared residuals between estimate and truth.
// It returns error if either of the vectors does not match RMSE dimension.
func (r *RMSE) Add(est mat.Vector, truth []float64) error {
	if est.Len() != len(r.sum) || len(truth) != len(r.sum) {
		return fmt.Errorf("invalid sample dimensions: estimate %d, truth %d, want %d",
			est.Len(), len(truth), len(r.sum))
	}

	res := make([]float64, len(r.sum))
	floats.SubTo(res, mat.Col(nil, 0, est), truth)
	floats.Mul(res, res)
	floats.Add(r.sum, res)
	r.n++

	return nil
}

// Len returns the number of accumulated samples
func (r *RMSE) Len() int {
	return r.n
}

// Value returns per element root mean squared error.
// It returns error if no samples have been accumulated.
func (r *RMSE) Value() ([]float64, error) {
	if r.n == 0 {
		return nil, fmt.Errorf("no samples accumulated")
	}

	out := make([]float64, len(r.sum))
	floats.ScaleTo(out, 1/float64(r.n), r.sum)
	for i := range out {
		out[i] = math.Sqrt(out[i])
	}

	return out, nil
}

// Reset discards all accumulated samples
func (r *RMSE) Reset() {
	for i := range r.sum {
		r.sum[i] = 0
	}
	r.n = 0
}
