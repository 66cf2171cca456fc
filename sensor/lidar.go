package sensor

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"gonum.org/v1/gonum/mat"
)

const (
	// LidarDim is lidar measurement dimension: [px, py]
	LidarDim = 2
)

// Lidar is a linear position sensor
type Lidar struct {
	// h is observation matrix
	h *mat.Dense
	// r is measurement noise covariance
	r *mat.SymDense
}

// NewLidar creates new Lidar sensor with measurement noise covariance r and returns it.
// It returns error if r is nil or its dimensions are not 2 x 2.
func NewLidar(r mat.Symmetric) (*Lidar, error) {
	if r == nil {
		return nil, fmt.Errorf("invalid lidar noise covariance: %v", r)
	}

	if r.SymmetricDim() != LidarDim {
		return nil, fmt.Errorf("invalid lidar noise dimension: %d", r.SymmetricDim())
	}

	cov := mat.NewSymDense(LidarDim, nil)
	cov.CopySym(r)

	h := mat.NewDense(LidarDim, stateDim, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	return &Lidar{
		h: h,
		r: cov,
	}, nil
}

// Type returns fusion.Lidar
func (l *Lidar) Type() fusion.SensorType {
	return fusion.Lidar
}

// Dim returns lidar measurement dimension
func (l *Lidar) Dim() int {
	return LidarDim
}

// Observe returns predicted lidar measurement for state x
func (l *Lidar) Observe(x mat.Vector) (mat.Vector, error) {
	if x.Len() != stateDim {
		return nil, fmt.Errorf("invalid state vector length: %d", x.Len())
	}

	y := mat.NewVecDense(LidarDim, nil)
	y.MulVec(l.h, x)

	return y, nil
}

// Correction computes lidar correction for measurement z around state x.
// It returns error if either z or x have invalid dimensions.
func (l *Lidar) Correction(z, x mat.Vector) (*fusion.Correction, error) {
	if z.Len() != LidarDim {
		return nil, fmt.Errorf("invalid lidar measurement length: %d", z.Len())
	}

	y, err := l.Observe(x)
	if err != nil {
		return nil, err
	}

	inn := mat.NewVecDense(LidarDim, nil)
	inn.SubVec(z, y)

	return &fusion.Correction{
		H: mat.DenseCopyOf(l.h),
		Y: inn,
		R: l.Cov(),
	}, nil
}

// Cov returns lidar measurement noise covariance
func (l *Lidar) Cov() mat.Symmetric {
	cov := mat.NewSymDense(LidarDim, nil)
	cov.CopySym(l.r)

	return cov
}
