package tracker

import (
	"fmt"
	"math"
	"strings"

	"github.com/milosgajdos/go-fusion/kalman/ekf"
	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/motion"
	"github.com/milosgajdos/go-fusion/sensor"
	"gonum.org/v1/gonum/mat"
)

// RadarInit selects how the first radar measurement is converted into state
type RadarInit string

const (
	// RadarInitLegacy maps bearing to position as px = rho*sin(theta), py = rho*cos(theta).
	// Recorded data sets and their reference results use this mapping.
	RadarInitLegacy RadarInit = "legacy"
	// RadarInitBearingX measures bearing from the x axis, consistent with the radar observation model:
	// px = rho*cos(theta), py = rho*sin(theta).
	RadarInitBearingX RadarInit = "bearing-x"
)

// ParseRadarInit parses radar initialization mode from its name
func ParseRadarInit(s string) (RadarInit, error) {
	switch r := RadarInit(strings.ToLower(strings.TrimSpace(s))); r {
	case RadarInitLegacy, RadarInitBearingX:
		return r, nil
	case "":
		return RadarInitLegacy, nil
	default:
		return "", fmt.Errorf("unknown radar init mode %q", s)
	}
}

// Config holds tracker constants. They are fixed once the tracker is created.
type Config struct {
	// NoiseAX is the variance of the x acceleration noise
	NoiseAX float64
	// NoiseAY is the variance of the y acceleration noise
	NoiseAY float64
	// LaserCov is lidar measurement noise covariance
	LaserCov *mat.SymDense
	// RadarCov is radar measurement noise covariance
	RadarCov *mat.SymDense
	// InitialCov is the state covariance set on the first measurement
	InitialCov *mat.SymDense
	// RadarInit selects radar initialization mode
	RadarInit RadarInit
	// MinInnovationDet is the smallest accepted innovation covariance determinant
	MinInnovationDet float64
}

// DefaultConfig returns tracker configuration with default values
func DefaultConfig() Config {
	return Config{
		NoiseAX: 9.0,
		NoiseAY: 9.0,
		LaserCov: mat.NewSymDense(sensor.LidarDim, []float64{
			0.0225, 0,
			0, 0.0225,
		}),
		RadarCov: mat.NewSymDense(sensor.RadarDim, []float64{
			0.09, 0, 0,
			0, 0.0009, 0,
			0, 0, 0.09,
		}),
		InitialCov: mat.NewSymDense(motion.StateDim, []float64{
			0.1, 0, 0, 0,
			0, 0.1, 0, 0,
			0, 0, 9, 0,
			0, 0, 0, 20,
		}),
		RadarInit:        RadarInitLegacy,
		MinInnovationDet: ekf.MinInnovationDet,
	}
}

// Validate checks the configuration and returns error if it is invalid
func (c Config) Validate() error {
	if c.NoiseAX < 0 || c.NoiseAY < 0 || math.IsNaN(c.NoiseAX) || math.IsNaN(c.NoiseAY) {
		return fmt.Errorf("invalid acceleration noise: ax=%v ay=%v", c.NoiseAX, c.NoiseAY)
	}

	if err := validateCov("laser", c.LaserCov, sensor.LidarDim); err != nil {
		return err
	}

	if err := validateCov("radar", c.RadarCov, sensor.RadarDim); err != nil {
		return err
	}

	if err := validateCov("initial", c.InitialCov, motion.StateDim); err != nil {
		return err
	}

	if _, err := ParseRadarInit(string(c.RadarInit)); err != nil {
		return err
	}

	if c.MinInnovationDet < 0 || math.IsNaN(c.MinInnovationDet) {
		return fmt.Errorf("invalid innovation determinant threshold: %v", c.MinInnovationDet)
	}

	return nil
}

// clone returns a copy of c which does not share covariance matrices with it
func (c Config) clone() Config {
	out := c
	out.LaserCov = copySym(c.LaserCov)
	out.RadarCov = copySym(c.RadarCov)
	out.InitialCov = copySym(c.InitialCov)

	return out
}

func copySym(m *mat.SymDense) *mat.SymDense {
	if m == nil {
		return nil
	}

	out := mat.NewSymDense(m.SymmetricDim(), nil)
	out.CopySym(m)

	return out
}

func validateCov(name string, cov *mat.SymDense, dim int) error {
	if cov == nil {
		return fmt.Errorf("missing %s covariance", name)
	}

	if cov.SymmetricDim() != dim {
		return fmt.Errorf("invalid %s covariance dimension: %d, expected %d", name, cov.SymmetricDim(), dim)
	}

	if !matrix.IsFinite(cov) {
		return fmt.Errorf("%s covariance is not finite", name)
	}

	for i := 0; i < dim; i++ {
		if cov.At(i, i) < 0 {
			return fmt.Errorf("invalid %s covariance: negative variance at %d", name, i)
		}
	}

	return nil
}
