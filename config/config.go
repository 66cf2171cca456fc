// Package config loads tracker configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/milosgajdos/go-fusion/matrix"
	"github.com/milosgajdos/go-fusion/tracker"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Matrix is a matrix stored as a list of rows
type Matrix [][]float64

// Config is the on-disk configuration
type Config struct {
	// NoiseAX is the variance of the x acceleration noise
	NoiseAX float64 `yaml:"noise_ax"`
	// NoiseAY is the variance of the y acceleration noise
	NoiseAY float64 `yaml:"noise_ay"`
	// LaserCov is lidar measurement noise covariance
	LaserCov Matrix `yaml:"laser_cov"`
	// RadarCov is radar measurement noise covariance
	RadarCov Matrix `yaml:"radar_cov"`
	// InitialCov is the initial state covariance
	InitialCov Matrix `yaml:"initial_cov"`
	// RadarInit is radar initialization mode: legacy or bearing-x
	RadarInit string `yaml:"radar_init"`
	// MinInnovationDet is the smallest accepted innovation covariance determinant
	MinInnovationDet float64 `yaml:"min_innovation_det"`
	// LogLevel is the logging level
	LogLevel string `yaml:"log_level"`
}

// Default returns configuration populated with default tracker values
func Default() *Config {
	return FromTracker(tracker.DefaultConfig())
}

// FromTracker creates Config from tracker configuration tc
func FromTracker(tc tracker.Config) *Config {
	return &Config{
		NoiseAX:          tc.NoiseAX,
		NoiseAY:          tc.NoiseAY,
		LaserCov:         rows(tc.LaserCov),
		RadarCov:         rows(tc.RadarCov),
		InitialCov:       rows(tc.InitialCov),
		RadarInit:        string(tc.RadarInit),
		MinInnovationDet: tc.MinInnovationDet,
		LogLevel:         zapcore.InfoLevel.String(),
	}
}

// Load reads configuration from the YAML file at path.
// Fields missing in the file keep their default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	return c, nil
}

// Decode reads YAML configuration from r and validates it.
// Fields missing in the input keep their default values.
func Decode(r io.Reader) (*Config, error) {
	c := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Encode writes c to w as YAML
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return enc.Close()
}

// Save writes c to the file at path
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	if err := c.Encode(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Validate returns error if c can not be turned into a valid tracker configuration
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	tc, err := c.Tracker()
	if err != nil {
		return err
	}

	return tc.Validate()
}

// Level returns configured logging level
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}

	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return l, fmt.Errorf("invalid log level: %w", err)
	}

	return l, nil
}

// Tracker converts c into tracker configuration
func (c *Config) Tracker() (tracker.Config, error) {
	laser, err := c.LaserCov.Sym()
	if err != nil {
		return tracker.Config{}, fmt.Errorf("laser_cov: %w", err)
	}

	radar, err := c.RadarCov.Sym()
	if err != nil {
		return tracker.Config{}, fmt.Errorf("radar_cov: %w", err)
	}

	initial, err := c.InitialCov.Sym()
	if err != nil {
		return tracker.Config{}, fmt.Errorf("initial_cov: %w", err)
	}

	mode, err := tracker.ParseRadarInit(c.RadarInit)
	if err != nil {
		return tracker.Config{}, err
	}

	return tracker.Config{
		NoiseAX:          c.NoiseAX,
		NoiseAY:          c.NoiseAY,
		LaserCov:         laser,
		RadarCov:         radar,
		InitialCov:       initial,
		RadarInit:        mode,
		MinInnovationDet: c.MinInnovationDet,
	}, nil
}

// Sym returns m as a symmetric matrix.
// A single row is read as the diagonal of a diagonal matrix.
// It returns error if m is empty, not square or not symmetric.
func (m Matrix) Sym() (*mat.SymDense, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("empty matrix")
	}

	if len(m) == 1 && len(m[0]) > 1 {
		diag := mat.NewSymDense(len(m[0]), nil)
		for i, v := range m[0] {
			diag.SetSym(i, i, v)
		}
		return diag, nil
	}

	n := len(m)
	data := make([]float64, 0, n*n)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d elements, expected %d", i, len(row), n)
		}
		data = append(data, row...)
	}

	d := mat.NewDense(n, n, data)
	if !matrix.IsSymmetric(d, 1e-12) {
		return nil, fmt.Errorf("matrix is not symmetric")
	}

	sym := mat.NewSymDense(n, nil)
	if err := matrix.Symmetrize(sym, d); err != nil {
		return nil, err
	}

	return sym, nil
}

func rows(m *mat.SymDense) Matrix {
	if m == nil {
		return nil
	}

	r, _ := m.Dims()
	out := make(Matrix, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}

	return out
}
