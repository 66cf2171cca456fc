package sim

import (
	"fmt"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/estimate"
	"github.com/milosgajdos/go-fusion/motion"
	"github.com/milosgajdos/go-fusion/sensor"
	"gonum.org/v1/gonum/mat"
)

// Recorder records measurements and estimates of a tracking run
type Recorder struct {
	ms        []*fusion.Measurement
	ests      []fusion.Estimate
	truth     []float64
	measured  []float64
	estimated []float64
	rmse      *estimate.RMSE
}

// NewRecorder creates new empty Recorder and returns it
func NewRecorder() *Recorder {
	rmse, _ := estimate.NewRMSE(motion.StateDim)

	return &Recorder{
		rmse: rmse,
	}
}

// Add records measurement m and the estimate est computed from it.
// Measured position of radar measurements is converted from polar coordinates.
// Ground truth, when present in m, is accumulated into RMSE.
func (r *Recorder) Add(m *fusion.Measurement, est fusion.Estimate) error {
	if m == nil || est == nil {
		return fmt.Errorf("invalid record: measurement=%v estimate=%v", m, est)
	}

	var px, py float64
	switch m.Sensor {
	case fusion.Lidar:
		px, py = m.Values[0], m.Values[1]
	case fusion.Radar:
		px, py = sensor.PolarToCartesian(m.Values[0], m.Values[1])
	default:
		return fmt.Errorf("%w: unsupported sensor %s", fusion.ErrInvalidMeasurement, m.Sensor)
	}

	x := est.Val()

	if len(m.Truth) > 0 {
		if err := r.rmse.Add(x, m.Truth); err != nil {
			return err
		}
		r.truth = append(r.truth, m.Truth[0], m.Truth[1])
	}

	r.measured = append(r.measured, px, py)
	r.estimated = append(r.estimated, x.AtVec(0), x.AtVec(1))
	r.ms = append(r.ms, m)
	r.ests = append(r.ests, est)

	return nil
}

// Estimates returns recorded estimates
func (r *Recorder) Estimates() []fusion.Estimate {
	out := make([]fusion.Estimate, len(r.ests))
	copy(out, r.ests)

	return out
}

// Measurements returns recorded measurements
func (r *Recorder) Measurements() []*fusion.Measurement {
	out := make([]*fusion.Measurement, len(r.ms))
	copy(out, r.ms)

	return out
}

// Timestamps returns timestamps of the recorded measurements
func (r *Recorder) Timestamps() []int64 {
	out := make([]int64, len(r.ms))
	for i, m := range r.ms {
		out[i] = m.Timestamp
	}

	return out
}

// Replay returns new Recorder which pairs the recorded measurements with estimates est.
// It returns error if est length differs from the number of recorded measurements.
func (r *Recorder) Replay(est []fusion.Estimate) (*Recorder, error) {
	if len(est) != len(r.ms) {
		return nil, fmt.Errorf("invalid estimates size: %d != %d", len(est), len(r.ms))
	}

	out := NewRecorder()
	for i, m := range r.ms {
		if err := out.Add(m, est[i]); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Len returns the number of recorded estimates
func (r *Recorder) Len() int {
	return len(r.estimated) / 2
}

// Truth returns recorded ground truth positions as a matrix with [px, py] rows
func (r *Recorder) Truth() *mat.Dense {
	return positions(r.truth)
}

// Measured returns measured positions as a matrix with [px, py] rows
func (r *Recorder) Measured() *mat.Dense {
	return positions(r.measured)
}

// Estimated returns estimated positions as a matrix with [px, py] rows
func (r *Recorder) Estimated() *mat.Dense {
	return positions(r.estimated)
}

// RMSE returns root mean squared error of the recorded estimates.
// It returns error if no ground truth has been recorded.
func (r *Recorder) RMSE() ([]float64, error) {
	return r.rmse.Value()
}

func positions(data []float64) *mat.Dense {
	if len(data) == 0 {
		return nil
	}

	out := make([]float64, len(data))
	copy(out, data)

	return mat.NewDense(len(out)/2, 2, out)
}
