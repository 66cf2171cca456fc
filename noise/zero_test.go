package noise

import (
	"testing"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	_ fusion.Noise = (*Zero)(nil)
	_ fusion.Noise = (*Gaussian)(nil)
)

func TestNewZero(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	for _, size := range []int{0, -10} {
		e, err := NewZero(size)
		assert.Nil(e)
		assert.Error(err)
	}
}

func TestZeroMeanCov(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(3)
	assert.NotNil(e)
	assert.NoError(err)

	assert.True(mat.Equal(mat.NewSymDense(3, nil), e.Cov()))
	assert.EqualValues([]float64{0, 0, 0}, e.Mean())
}

func TestZeroSample(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NoError(err)

	sample1 := e.Sample()
	assert.Equal(2, sample1.Len())
	assert.Equal(0.0, mat.Norm(sample1, 2))

	e.Reset()

	sample2 := e.Sample()
	assert.True(mat.Equal(sample1, sample2))
}

func TestZeroString(t *testing.T) {
	assert := assert.New(t)

	str := `Zero{
Mean=[0 0]
Cov=⎡0  0⎤
    ⎣0  0⎦
}`

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)
	assert.Equal(str, e.String())
}
