package sensor

import (
	"math"
	"testing"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var radarCov = mat.NewSymDense(3, []float64{
	0.09, 0, 0,
	0, 0.0009, 0,
	0, 0, 0.09,
})

func TestNewRadar(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRadar(radarCov)
	assert.NotNil(r)
	assert.NoError(err)
	assert.Equal(fusion.Radar, r.Type())
	assert.Equal(RadarDim, r.Dim())
	assert.True(mat.Equal(radarCov, r.Cov()))

	r, err = NewRadar(nil)
	assert.Nil(r)
	assert.Error(err)

	r, err = NewRadar(mat.NewSymDense(2, nil))
	assert.Nil(r)
	assert.Error(err)
}

func TestRadarObserve(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(4, []float64{3.0, 4.0, 1.0, 2.0})
	y, err := RadarObserve(x)
	assert.NoError(err)
	assert.InDelta(5.0, y.AtVec(0), 1e-12)
	assert.InDelta(math.Atan2(4, 3), y.AtVec(1), 1e-12)
	assert.InDelta((3.0*1.0+4.0*2.0)/5.0, y.AtVec(2), 1e-12)

	y, err = RadarObserve(mat.NewVecDense(3, nil))
	assert.Nil(y)
	assert.Error(err)
}

func TestRadarJacobian(t *testing.T) {
	assert := assert.New(t)

	for _, state := range [][]float64{
		{1.0, 2.0, 0.2, 0.4},
		{-3.0, 0.5, 1.5, -2.0},
		{10.0, -7.0, -4.0, 0.3},
	} {
		x := mat.NewVecDense(4, state)

		jac, err := RadarJacobian(x)
		assert.NoError(err)

		num, err := NumericRadarJacobian(x)
		assert.NoError(err)

		assert.True(mat.EqualApprox(jac, num, 1e-6), "state: %v\n%v\n%v",
			state, mat.Formatted(jac), mat.Formatted(num))
	}

	jac, err := RadarJacobian(mat.NewVecDense(2, nil))
	assert.Nil(jac)
	assert.Error(err)

	jac, err = NumericRadarJacobian(mat.NewVecDense(5, nil))
	assert.Nil(jac)
	assert.Error(err)
}

func TestRadarDegenerateRange(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(4, []float64{0, 0, 1.0, -1.0})
	assert.True(IsDegenerate(x))
	assert.False(IsDegenerate(mat.NewVecDense(4, []float64{0.1, 0, 0, 0})))

	y, err := RadarObserve(x)
	assert.NoError(err)
	assert.True(matrix.IsFinite(y))

	jac, err := RadarJacobian(x)
	assert.NoError(err)
	assert.True(matrix.IsFinite(jac))

	// tiny but non-zero position is clamped, too
	x = mat.NewVecDense(4, []float64{1e-9, -1e-9, 5.0, 5.0})
	jac, err = RadarJacobian(x)
	assert.NoError(err)
	assert.True(matrix.IsFinite(jac))
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			assert.True(math.Abs(jac.At(i, j)) < 1e3)
		}
	}

	r, err := NewRadar(radarCov)
	assert.NoError(err)

	c, err := r.Correction(mat.NewVecDense(3, []float64{1.0, 0.1, 0.5}), x)
	assert.NoError(err)
	assert.True(c.Degenerate)
	assert.True(matrix.IsFinite(c.Y))
	assert.True(matrix.IsFinite(c.H))
}

func TestRadarCorrection(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRadar(radarCov)
	assert.NoError(err)

	// predicted bearing is just below Pi, measured just above -Pi
	x := mat.NewVecDense(4, []float64{-1.0, 0.01, 0, 0})
	theta := math.Atan2(0.01, -1.0)
	z := mat.NewVecDense(3, []float64{math.Hypot(-1.0, 0.01), -math.Pi + 0.01, 0})

	c, err := r.Correction(z, x)
	assert.NoError(err)
	assert.False(c.Degenerate)
	assert.InDelta(0.0, c.Y.AtVec(0), 1e-12)
	assert.InDelta(NormalizeAngle(-math.Pi+0.01-theta), c.Y.AtVec(1), 1e-12)
	assert.True(math.Abs(c.Y.AtVec(1)) < 0.1)
	assert.True(mat.Equal(radarCov, c.R))

	rows, cols := c.H.Dims()
	assert.Equal(3, rows)
	assert.Equal(4, cols)

	c, err = r.Correction(mat.NewVecDense(2, nil), x)
	assert.Nil(c)
	assert.Error(err)

	c, err = r.Correction(z, mat.NewVecDense(3, nil))
	assert.Nil(c)
	assert.Error(err)
}

func TestRadarNumericJacobian(t *testing.T) {
	assert := assert.New(t)

	analytic, err := NewRadar(radarCov)
	assert.NoError(err)

	numeric, err := NewRadar(radarCov, WithNumericJacobian())
	assert.NoError(err)

	x := mat.NewVecDense(4, []float64{2.0, 1.0, 0.3, -0.1})
	z := mat.NewVecDense(3, []float64{2.3, 0.45, 0.2})

	ca, err := analytic.Correction(z, x)
	assert.NoError(err)
	cn, err := numeric.Correction(z, x)
	assert.NoError(err)

	assert.True(mat.EqualApprox(ca.H, cn.H, 1e-6))
	assert.True(mat.Equal(ca.Y, cn.Y))
}

func TestPolarCartesian(t *testing.T) {
	assert := assert.New(t)

	px, py := PolarToCartesian(2.0, math.Pi/6)
	rho, theta, rhoDot := CartesianToPolar(px, py, 0, 0)
	assert.InDelta(2.0, rho, 1e-12)
	assert.InDelta(math.Pi/6, theta, 1e-12)
	assert.Equal(0.0, rhoDot)

	// velocity parallel to the range vector is all range rate
	rho, _, rhoDot = CartesianToPolar(3, 4, 0.6, 0.8)
	assert.InDelta(5.0, rho, 1e-12)
	assert.InDelta(1.0, rhoDot, 1e-12)
}
