package matrix

import (
	"fmt"
	"math"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Identity returns n x n identity matrix.
// It returns error if n is not a positive integer.
func Identity(n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid identity dimension: %d", n)
	}

	return matrix.NewDenseValIdentity(n, 1.0)
}

// Trace returns the sum of the diagonal elements of the square matrix m.
// It panics if m is nil.
func Trace(m mat.Matrix) float64 {
	rows, cols := m.Dims()
	n := rows
	if cols < n {
		n = cols
	}

	diag := make([]float64, n)
	for i := range diag {
		diag[i] = m.At(i, i)
	}

	return floats.Sum(diag)
}

// Symmetrize copies the average of m and its transpose into dst.
// It returns error if m is not square or its size differs from dst.
func Symmetrize(dst *mat.SymDense, m mat.Matrix) error {
	rows, cols := m.Dims()
	if rows != cols {
		return fmt.Errorf("invalid matrix dimensions: [%d x %d]", rows, cols)
	}

	if dst.SymmetricDim() != rows {
		return fmt.Errorf("invalid destination dimension: %d != %d", dst.SymmetricDim(), rows)
	}

	for i := 0; i < rows; i++ {
		for j := i; j < cols; j++ {
			dst.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return nil
}

// IsFinite returns true if none of the elements of m is NaN or Inf.
func IsFinite(m mat.Matrix) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// IsSymmetric returns true if m is square and equal to its transpose within tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	rows, cols := m.Dims()
	if rows != cols {
		return false
	}

	for i := 0; i < rows; i++ {
		for j := i + 1; j < cols; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}
