package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/config"
	"github.com/milosgajdos/go-fusion/estimate"
	"github.com/milosgajdos/go-fusion/sim"
	"github.com/milosgajdos/go-fusion/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

func TestParseFlags(t *testing.T) {
	assert := assert.New(t)

	o, fs, err := parseFlags([]string{"--simulate", "10", "--radar-init", "bearing-x"})
	assert.NoError(err)
	assert.NotNil(fs)
	assert.Equal(10, o.simulate)
	assert.Equal("-", o.output)
	assert.Equal("bearing-x", o.radarInit)

	o, _, err = parseFlags([]string{"-i", "data.txt", "-o", "out.txt"})
	assert.NoError(err)
	assert.Equal("data.txt", o.input)
	assert.Equal("out.txt", o.output)

	for _, args := range [][]string{
		{},
		{"--simulate", "10", "--input", "data.txt"},
		{"--unknown"},
	} {
		_, _, err := parseFlags(args)
		assert.Error(err, args)
	}
}

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	o, fs, err := parseFlags([]string{"--simulate", "10", "--radar-init", "bearing-x", "--log-level", "debug"})
	require.NoError(t, err)

	c, err := loadConfig(o, fs)
	assert.NoError(err)
	assert.Equal("bearing-x", c.RadarInit)
	assert.Equal("debug", c.LogLevel)

	path := filepath.Join("..", "..", "config", "testdata", "wide.yaml")

	// config file values are kept unless a flag is set explicitly
	o, fs, err = parseFlags([]string{"--simulate", "10", "--config", path})
	require.NoError(t, err)
	c, err = loadConfig(o, fs)
	assert.NoError(err)
	assert.Equal("bearing-x", c.RadarInit)
	assert.Equal("debug", c.LogLevel)

	o, fs, err = parseFlags([]string{"--simulate", "10", "--config", path, "--radar-init", "legacy"})
	require.NoError(t, err)
	c, err = loadConfig(o, fs)
	assert.NoError(err)
	assert.Equal("legacy", c.RadarInit)

	// effective configuration is written out
	saved := filepath.Join(t.TempDir(), "fusion.yaml")
	o, fs, err = parseFlags([]string{"--simulate", "10", "--config", path, "--save-config", saved})
	require.NoError(t, err)
	c, err = loadConfig(o, fs)
	assert.NoError(err)
	out, err := config.Load(saved)
	assert.NoError(err)
	assert.Equal(c, out)

	o, fs, err = parseFlags([]string{"--simulate", "10", "--radar-init", "polar"})
	require.NoError(t, err)
	c, err = loadConfig(o, fs)
	assert.Nil(c)
	assert.Error(err)
}

func TestFormatEstimate(t *testing.T) {
	assert := assert.New(t)

	est, err := estimate.NewBase(mat.NewVecDense(4, []float64{1, 2, 3, 4}))
	require.NoError(t, err)

	line := formatEstimate(est, &fusion.Measurement{
		Sensor: fusion.Lidar,
		Values: []float64{1.5, 2.5},
		Truth:  []float64{1, 2, 3, 4},
	})
	fields := strings.Split(line, "\t")
	assert.Len(fields, 11)
	assert.Equal("1.000000", fields[0])
	assert.Equal("lidar", fields[4])
	assert.Equal("2.500000", fields[6])
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	o, fs, err := parseFlags([]string{
		"--simulate", "100",
		"--radar-init", string(tracker.RadarInitBearingX),
		"--output", filepath.Join(dir, "estimates.txt"),
		"--plot", filepath.Join(dir, "run.png"),
	})
	require.NoError(t, err)

	c, err := loadConfig(o, fs)
	require.NoError(t, err)

	assert.NoError(run(context.Background(), o, c, zaptest.NewLogger(t)))

	data, err := os.ReadFile(o.output)
	assert.NoError(err)
	assert.Len(strings.Split(strings.TrimSpace(string(data)), "\n"), 100)

	_, err = os.Stat(o.plot)
	assert.NoError(err)

	o.smooth = true
	o.plot = ""
	assert.NoError(run(context.Background(), o, c, zaptest.NewLogger(t)))

	smoothed, err := os.ReadFile(o.output)
	assert.NoError(err)
	assert.Len(strings.Split(strings.TrimSpace(string(smoothed)), "\n"), 100)
	assert.NotEqual(string(data), string(smoothed))
}

func TestRunInput(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	o, fs, err := parseFlags([]string{
		"--input", filepath.Join("..", "..", "sensorlog", "testdata", "sample.txt"),
		"--output", filepath.Join(dir, "estimates.txt"),
	})
	require.NoError(t, err)

	c, err := loadConfig(o, fs)
	require.NoError(t, err)

	assert.NoError(run(context.Background(), o, c, zaptest.NewLogger(t)))

	data, err := os.ReadFile(o.output)
	assert.NoError(err)
	assert.Len(strings.Split(strings.TrimSpace(string(data)), "\n"), 4)

	o.input = filepath.Join(dir, "missing.txt")
	assert.Error(run(context.Background(), o, c, zaptest.NewLogger(t)))
}

func TestRunRecord(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	o, fs, err := parseFlags([]string{
		"--simulate", "50",
		"--record", filepath.Join(dir, "measurements.txt"),
		"--output", filepath.Join(dir, "simulated.txt"),
	})
	require.NoError(t, err)

	c, err := loadConfig(o, fs)
	require.NoError(t, err)

	assert.NoError(run(context.Background(), o, c, zaptest.NewLogger(t)))

	simulated, err := os.ReadFile(o.output)
	assert.NoError(err)

	// replaying the recorded log reproduces the simulated run
	o.input, o.simulate, o.record = o.record, 0, ""
	o.output = filepath.Join(dir, "replayed.txt")
	assert.NoError(run(context.Background(), o, c, zaptest.NewLogger(t)))

	replayed, err := os.ReadFile(o.output)
	assert.NoError(err)
	assert.Len(strings.Split(strings.TrimSpace(string(replayed)), "\n"), 50)
	assert.Equal(string(simulated), string(replayed))

	o.record = filepath.Join(dir, "missing", "measurements.txt")
	assert.Error(run(context.Background(), o, c, zaptest.NewLogger(t)))
}

func TestWriteEstimates(t *testing.T) {
	assert := assert.New(t)

	est, err := estimate.NewBase(mat.NewVecDense(4, []float64{1, 2, 3, 4}))
	require.NoError(t, err)

	rec := sim.NewRecorder()
	require.NoError(t, rec.Add(&fusion.Measurement{Sensor: fusion.Lidar, Values: []float64{1, 2}}, est))

	path := filepath.Join(t.TempDir(), "estimates.txt")
	assert.NoError(writeEstimates(path, rec))

	data, err := os.ReadFile(path)
	assert.NoError(err)
	assert.Equal(formatEstimate(est, rec.Measurements()[0])+"\n", string(data))

	assert.Error(writeEstimates(filepath.Join(t.TempDir(), "missing", "estimates.txt"), rec))
}
