package fusion

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUninitialized is returned when the filter is used before its state has been initialized
	ErrUninitialized = errors.New("filter state not initialized")
	// ErrSingularInnovation is returned when the innovation covariance can not be inverted
	ErrSingularInnovation = errors.New("innovation covariance near singular")
	// ErrDegenerateRange is returned when a radar linearization point is too close to the origin
	ErrDegenerateRange = errors.New("degenerate radar range")
	// ErrNonMonotonicTimestamp is returned when a measurement is older than the previous one
	ErrNonMonotonicTimestamp = errors.New("non-monotonic measurement timestamp")
	// ErrInvalidMeasurement is returned when a measurement can not be processed
	ErrInvalidMeasurement = errors.New("invalid measurement")
	// ErrNumericalInstability is returned when a correction would produce NaN or Inf values
	ErrNumericalInstability = errors.New("numerical instability")
)

// SensorType identifies the sensor which produced a measurement
type SensorType int

const (
	// Lidar measures Cartesian position: px, py
	Lidar SensorType = iota + 1
	// Radar measures range, bearing and range rate: rho, theta, rho_dot
	Radar
)

// String implements the Stringer interface.
func (s SensorType) String() string {
	switch s {
	case Lidar:
		return "lidar"
	case Radar:
		return "radar"
	default:
		return fmt.Sprintf("SensorType(%d)", int(s))
	}
}

// ParseSensorType parses sensor type from its name or its single letter log code.
func ParseSensorType(s string) (SensorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "lidar", "laser":
		return Lidar, nil
	case "r", "radar":
		return Radar, nil
	default:
		return 0, fmt.Errorf("unknown sensor type %q", s)
	}
}

// Measurement is a single sensor reading
type Measurement struct {
	// Sensor is the type of the sensor which produced the measurement
	Sensor SensorType
	// Values holds raw sensor values: [px, py] for Lidar, [rho, theta, rho_dot] for Radar
	Values []float64
	// Timestamp is measurement time in microseconds
	Timestamp int64
	// Truth is optional ground truth state [px, py, vx, vy]
	Truth []float64
}

// Vec returns measurement values as a vector
func (m *Measurement) Vec() *mat.VecDense {
	v := make([]float64, len(m.Values))
	copy(v, m.Values)

	return mat.NewVecDense(len(v), v)
}

// Correction is a sensor linearization around the current state used to correct it
type Correction struct {
	// H is observation matrix or its Jacobian
	H *mat.Dense
	// Y is innovation vector: measurement minus predicted measurement
	Y *mat.VecDense
	// R is measurement noise covariance
	R mat.Symmetric
	// Degenerate is set when the linearization point had to be clamped
	Degenerate bool
}

// Sensor computes filter corrections for its measurements
type Sensor interface {
	// Type returns sensor type
	Type() SensorType
	// Dim returns measurement dimension
	Dim() int
	// Correction linearizes the sensor around state x for measurement z
	Correction(z, x mat.Vector) (*Correction, error)
}

// InitCond is initial state condition of the filter
type InitCond interface {
	// State returns initial filter state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}

// Estimate is dynamical system filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}
