// Package tracker fuses asynchronous lidar and radar measurements of a single
// moving object into a constant velocity state estimate.
package tracker

import (
	"errors"
	"fmt"
	"math"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/kalman"
	"github.com/milosgajdos/go-fusion/kalman/ekf"
	"github.com/milosgajdos/go-fusion/model"
	"github.com/milosgajdos/go-fusion/motion"
	"github.com/milosgajdos/go-fusion/sensor"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Stats holds measurement processing counters
type Stats struct {
	// Lidar is the number of processed lidar measurements
	Lidar int
	// Radar is the number of processed radar measurements
	Radar int
	// Skipped is the number of measurements whose update was skipped
	Skipped int
	// Rejected is the number of measurements rejected before prediction
	Rejected int
	// Degenerate is the number of radar updates linearized near the origin
	Degenerate int
}

// Option configures Tracker
type Option func(*Tracker)

// WithLogger sets tracker logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithSensor registers sensor s. It replaces any sensor registered for the same type.
// A nil sensor is ignored.
func WithSensor(s fusion.Sensor) Option {
	return func(t *Tracker) {
		if s == nil {
			return
		}
		t.sensors[s.Type()] = s
	}
}

// Tracker fuses sensor measurements of a single object.
// Tracker is not safe for concurrent use: it processes one measurement stream.
type Tracker struct {
	cfg     Config
	motion  *motion.ConstantVelocity
	filter  kalman.Filter
	sensors map[fusion.SensorType]fusion.Sensor
	prevTs  int64
	stats   Stats
	logger  *zap.Logger
}

// New creates new Tracker with configuration cfg and returns it.
// It returns error if cfg is invalid.
func New(cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.RadarInit == "" {
		cfg.RadarInit = RadarInitLegacy
	}
	cfg = cfg.clone()

	cv, err := motion.New(cfg.NoiseAX, cfg.NoiseAY)
	if err != nil {
		return nil, err
	}

	f, err := ekf.New(motion.StateDim, ekf.WithMinInnovationDet(cfg.MinInnovationDet))
	if err != nil {
		return nil, err
	}

	lidar, err := sensor.NewLidar(cfg.LaserCov)
	if err != nil {
		return nil, err
	}

	radar, err := sensor.NewRadar(cfg.RadarCov)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:    cfg,
		motion: cv,
		filter: f,
		sensors: map[fusion.SensorType]fusion.Sensor{
			fusion.Lidar: lidar,
			fusion.Radar: radar,
		},
		logger: zap.NewNop(),
	}

	for _, apply := range opts {
		apply(t)
	}

	if t.logger == nil {
		t.logger = zap.NewNop()
	}

	return t, nil
}

// ProcessMeasurement runs one filter cycle for measurement m.
//
// The first measurement initializes the state. Every following measurement
// predicts the state forward to its timestamp and corrects it.
// Recoverable anomalies are returned wrapped around fusion sentinel errors and
// the tracker keeps its last valid state. A measurement older than the previous
// one is rejected with fusion.ErrNonMonotonicTimestamp and leaves the tracker untouched.
// If the prediction is not finite the state is kept but the tracker clock moves to
// the measurement timestamp, so the next cycle predicts over its own time step only.
func (t *Tracker) ProcessMeasurement(m *fusion.Measurement) error {
	s, err := t.validate(m)
	if err != nil {
		t.stats.Rejected++
		t.logger.Warn("measurement rejected", zap.Error(err))
		return err
	}

	if !t.filter.Initialized() {
		return t.init(m)
	}

	if m.Timestamp < t.prevTs {
		t.stats.Rejected++
		err := fmt.Errorf("%w: %d < %d", fusion.ErrNonMonotonicTimestamp, m.Timestamp, t.prevTs)
		t.logger.Warn("measurement rejected",
			zap.Stringer("sensor", m.Sensor),
			zap.Int64("timestamp", m.Timestamp),
			zap.Error(err))
		return err
	}

	dt := float64(m.Timestamp-t.prevTs) / 1e6

	if err := t.filter.SetTransition(t.motion.Transition(dt), t.motion.ProcessNoise(dt)); err != nil {
		return err
	}

	if _, err := t.filter.Predict(); err != nil {
		if errors.Is(err, fusion.ErrNumericalInstability) {
			t.prevTs = m.Timestamp
		}
		t.stats.Skipped++
		t.logger.Warn("prediction failed",
			zap.Float64("dt", dt),
			zap.Int64("timestamp", m.Timestamp),
			zap.Error(err))
		return err
	}
	t.prevTs = m.Timestamp

	c, err := s.Correction(m.Vec(), t.filter.State())
	if err != nil {
		return fmt.Errorf("failed to compute %s correction: %w", m.Sensor, err)
	}

	t.count(m.Sensor)

	var errs []error
	if c.Degenerate {
		t.stats.Degenerate++
		err := fmt.Errorf("%w: state position too close to origin", fusion.ErrDegenerateRange)
		t.logger.Warn("degenerate linearization",
			zap.Stringer("sensor", m.Sensor),
			zap.Int64("timestamp", m.Timestamp),
			zap.Error(err))
		errs = append(errs, err)
	}

	if _, err := t.filter.Update(c); err != nil {
		if !errors.Is(err, fusion.ErrSingularInnovation) && !errors.Is(err, fusion.ErrNumericalInstability) {
			return err
		}
		t.stats.Skipped++
		t.logger.Warn("update skipped",
			zap.Stringer("sensor", m.Sensor),
			zap.Int64("timestamp", m.Timestamp),
			zap.Error(err))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// init sets the initial state from the first measurement
func (t *Tracker) init(m *fusion.Measurement) error {
	var x []float64

	switch m.Sensor {
	case fusion.Lidar:
		x = []float64{m.Values[0], m.Values[1], 0, 0}
	case fusion.Radar:
		x = RadarState(m.Values[0], m.Values[1], m.Values[2], t.cfg.RadarInit)
	default:
		t.stats.Rejected++
		return fmt.Errorf("%w: can not initialize from %s", fusion.ErrInvalidMeasurement, m.Sensor)
	}

	ic, err := model.NewInitCond(mat.NewVecDense(motion.StateDim, x), t.cfg.InitialCov)
	if err != nil {
		return err
	}

	if err := t.filter.Init(ic); err != nil {
		t.stats.Rejected++
		return err
	}

	t.prevTs = m.Timestamp
	t.count(m.Sensor)

	t.logger.Debug("tracker initialized",
		zap.Stringer("sensor", m.Sensor),
		zap.Int64("timestamp", m.Timestamp),
		zap.Float64s("state", x))

	return nil
}

// validate returns the sensor registered for the measurement.
// It returns error if the measurement can not be processed.
func (t *Tracker) validate(m *fusion.Measurement) (fusion.Sensor, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil measurement", fusion.ErrInvalidMeasurement)
	}

	s, ok := t.sensors[m.Sensor]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sensor %s", fusion.ErrInvalidMeasurement, m.Sensor)
	}

	if len(m.Values) != s.Dim() {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d",
			fusion.ErrInvalidMeasurement, m.Sensor, s.Dim(), len(m.Values))
	}

	for _, v := range m.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite %s value", fusion.ErrInvalidMeasurement, m.Sensor)
		}
	}

	return s, nil
}

func (t *Tracker) count(s fusion.SensorType) {
	switch s {
	case fusion.Lidar:
		t.stats.Lidar++
	case fusion.Radar:
		t.stats.Radar++
	}
}

// Estimate returns current state estimate.
// It returns fusion.ErrUninitialized if no measurement has been processed yet.
func (t *Tracker) Estimate() (fusion.Estimate, error) {
	return t.filter.Estimate()
}

// Initialized returns true once the first measurement has been processed
func (t *Tracker) Initialized() bool {
	return t.filter.Initialized()
}

// Timestamp returns the timestamp of the last processed measurement
func (t *Tracker) Timestamp() int64 {
	return t.prevTs
}

// Stats returns measurement processing counters
func (t *Tracker) Stats() Stats {
	return t.stats
}

// Config returns tracker configuration
func (t *Tracker) Config() Config {
	return t.cfg.clone()
}

// Reset returns tracker into uninitialized state so a new stream can be processed
func (t *Tracker) Reset() {
	t.filter.Reset()
	t.prevTs = 0
	t.stats = Stats{}
}

// RadarState converts radar measurement rho, theta and rho_dot into the state [px, py, vx, vy].
// Bearing is normalized first; mode selects the axis the bearing is measured from.
func RadarState(rho, theta, rhoDot float64, mode RadarInit) []float64 {
	theta = sensor.NormalizeAngle(theta)
	sin, cos := math.Sincos(theta)

	if mode == RadarInitBearingX {
		return []float64{rho * cos, rho * sin, rhoDot * cos, rhoDot * sin}
	}

	return []float64{rho * sin, rho * cos, rhoDot * sin, rhoDot * cos}
}
