package sim

import (
	"context"
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/noise"
	"github.com/milosgajdos/go-fusion/sensor"
	"github.com/milosgajdos/go-fusion/tracker"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultPeriod is the default time between two measurements in microseconds
	DefaultPeriod = 50000
)

// Scenario generates a measurement stream of a simulated target
type Scenario struct {
	// Target is the observed object
	Target *Target
	// LidarNoise is lidar measurement noise
	LidarNoise fusion.Noise
	// RadarNoise is radar measurement noise
	RadarNoise fusion.Noise
	// Pattern is the repeating sequence of sensors producing measurements
	Pattern []fusion.SensorType
	// Start is the timestamp of the first measurement in microseconds
	Start int64
	// Period is the time between measurements in microseconds
	Period int64
}

// NewScenario creates a scenario of a target starting at [10, 5] with velocity [3, 1]
// observed by alternating lidar and radar with noise matching cfg.
// Noise sources are seeded with seed so scenarios are reproducible.
func NewScenario(cfg tracker.Config, seed uint64) (*Scenario, error) {
	accel, err := noise.NewGaussianWithSeed([]float64{0, 0},
		mat.NewSymDense(2, []float64{1, 0, 0, 1}), seed)
	if err != nil {
		return nil, err
	}

	target, err := NewTarget(mat.NewVecDense(4, []float64{10, 5, 3, 1}), accel)
	if err != nil {
		return nil, err
	}

	lidar, err := noise.NewGaussianWithSeed(make([]float64, sensor.LidarDim), cfg.LaserCov, seed+1)
	if err != nil {
		return nil, fmt.Errorf("failed to create lidar noise: %w", err)
	}

	radar, err := noise.NewGaussianWithSeed(make([]float64, sensor.RadarDim), cfg.RadarCov, seed+2)
	if err != nil {
		return nil, fmt.Errorf("failed to create radar noise: %w", err)
	}

	return &Scenario{
		Target:     target,
		LidarNoise: lidar,
		RadarNoise: radar,
		Pattern:    []fusion.SensorType{fusion.Lidar, fusion.Radar},
		Start:      1477010443000000,
		Period:     DefaultPeriod,
	}, nil
}

// Measure returns a noisy measurement of true state x by sensor s taken at ts.
// Ground truth x is attached to the measurement.
func (s *Scenario) Measure(st fusion.SensorType, x mat.Vector, ts int64) (*fusion.Measurement, error) {
	px, py, vx, vy := x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3)

	var values []float64
	var n fusion.Noise

	switch st {
	case fusion.Lidar:
		values = []float64{px, py}
		n = s.LidarNoise
	case fusion.Radar:
		rho, theta, rhoDot := sensor.CartesianToPolar(px, py, vx, vy)
		values = []float64{rho, theta, rhoDot}
		n = s.RadarNoise
	default:
		return nil, fmt.Errorf("%w: unsupported sensor %s", fusion.ErrInvalidMeasurement, st)
	}

	if n != nil {
		e := n.Sample()
		if e.Len() != len(values) {
			return nil, fmt.Errorf("invalid %s noise dimension: %d", st, e.Len())
		}
		for i := range values {
			values[i] += e.AtVec(i)
		}
	}

	if st == fusion.Radar {
		values[1] = sensor.NormalizeAngle(values[1])
		values[0] = math.Abs(values[0])
	}

	return &fusion.Measurement{
		Sensor:    st,
		Values:    values,
		Timestamp: ts,
		Truth:     mat.Col(nil, 0, x),
	}, nil
}

// Generate returns steps measurements of the scenario.
// The first measurement observes the initial target state.
func (s *Scenario) Generate(steps int) ([]*fusion.Measurement, error) {
	out := make([]*fusion.Measurement, 0, steps)

	err := s.Stream(context.Background(), steps, func(m *fusion.Measurement) error {
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Stream generates steps measurements and calls fn for each of them.
// It stops early if ctx is cancelled or fn returns error.
func (s *Scenario) Stream(ctx context.Context, steps int, fn func(*fusion.Measurement) error) error {
	if s.Target == nil {
		return fmt.Errorf("missing scenario target")
	}

	if len(s.Pattern) == 0 {
		return fmt.Errorf("empty sensor pattern")
	}

	if s.Period < 0 {
		return fmt.Errorf("invalid scenario period: %d", s.Period)
	}

	dt := float64(s.Period) / 1e6
	x := s.Target.State()

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if i > 0 {
			var err error
			if x, err = s.Target.Step(dt); err != nil {
				return err
			}
		}

		ts := s.Start + int64(i)*s.Period
		m, err := s.Measure(s.Pattern[i%len(s.Pattern)], x, ts)
		if err != nil {
			return err
		}

		if err := fn(m); err != nil {
			return err
		}
	}

	return nil
}
