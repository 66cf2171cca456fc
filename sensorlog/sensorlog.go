// Package sensorlog reads and writes measurement logs.
//
// Every line of a log holds one measurement. Fields are separated by tabs or spaces:
//
//	L  px  py  timestamp  [gt_px gt_py gt_vx gt_vy]
//	R  rho theta rho_dot timestamp  [gt_px gt_py gt_vx gt_vy]
//
// Empty lines and lines starting with # are ignored.
package sensorlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/motion"
	"github.com/milosgajdos/go-fusion/sensor"
)

// Reader reads measurements from a log
type Reader struct {
	s    *bufio.Scanner
	line int
}

// NewReader creates new Reader reading from r and returns it
func NewReader(r io.Reader) *Reader {
	return &Reader{
		s: bufio.NewScanner(r),
	}
}

// Read returns the next measurement in the log.
// It returns io.EOF when there are no more measurements.
func (r *Reader) Read() (*fusion.Measurement, error) {
	for r.s.Scan() {
		r.line++

		text := strings.TrimSpace(r.s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		m, err := Parse(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}

		return m, nil
	}

	if err := r.s.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

// ReadAll reads all measurements from the log.
// It stops reading and returns error if ctx is cancelled.
func (r *Reader) ReadAll(ctx context.Context) ([]*fusion.Measurement, error) {
	var out []*fusion.Measurement

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		out = append(out, m)
	}
}

// Line returns the number of the last line read
func (r *Reader) Line() int {
	return r.line
}

// Parse parses a single log line into measurement.
// It returns error wrapping fusion.ErrInvalidMeasurement if the line is malformed.
func Parse(line string) (*fusion.Measurement, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", fusion.ErrInvalidMeasurement)
	}

	st, err := fusion.ParseSensorType(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fusion.ErrInvalidMeasurement, err)
	}

	dim := sensor.LidarDim
	if st == fusion.Radar {
		dim = sensor.RadarDim
	}

	rest := fields[1:]
	if len(rest) != dim+1 && len(rest) != dim+1+motion.StateDim {
		return nil, fmt.Errorf("%w: %s line has %d fields", fusion.ErrInvalidMeasurement, st, len(rest))
	}

	values, err := parseFloats(rest[:dim])
	if err != nil {
		return nil, err
	}

	ts, err := strconv.ParseInt(rest[dim], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q", fusion.ErrInvalidMeasurement, rest[dim])
	}

	m := &fusion.Measurement{
		Sensor:    st,
		Values:    values,
		Timestamp: ts,
	}

	if len(rest) > dim+1 {
		if m.Truth, err = parseFloats(rest[dim+1:]); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value %q", fusion.ErrInvalidMeasurement, f)
		}
		out[i] = v
	}

	return out, nil
}

// Format formats measurement m as a log line without the trailing newline
func Format(m *fusion.Measurement) (string, error) {
	var code string
	switch m.Sensor {
	case fusion.Lidar:
		code = "L"
	case fusion.Radar:
		code = "R"
	default:
		return "", fmt.Errorf("%w: unsupported sensor %s", fusion.ErrInvalidMeasurement, m.Sensor)
	}

	fields := make([]string, 0, 2+len(m.Values)+len(m.Truth))
	fields = append(fields, code)
	for _, v := range m.Values {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}
	fields = append(fields, strconv.FormatInt(m.Timestamp, 10))
	for _, v := range m.Truth {
		fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
	}

	return strings.Join(fields, "\t"), nil
}

// Writer writes measurements to a log
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates new Writer writing to w and returns it
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: bufio.NewWriter(w),
	}
}

// Write writes measurement m to the log
func (w *Writer) Write(m *fusion.Measurement) error {
	line, err := Format(m)
	if err != nil {
		return err
	}

	if _, err := w.w.WriteString(line); err != nil {
		return err
	}

	return w.w.WriteByte('\n')
}

// Flush writes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.w.Flush()
}
