// Command fusion tracks an object from a lidar and radar measurement log or a simulated scenario.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"
	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/config"
	"github.com/milosgajdos/go-fusion/motion"
	"github.com/milosgajdos/go-fusion/sensorlog"
	"github.com/milosgajdos/go-fusion/sim"
	"github.com/milosgajdos/go-fusion/smooth/rts"
	"github.com/milosgajdos/go-fusion/tracker"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"
)

type options struct {
	config    string
	input     string
	simulate  int
	seed      uint64
	output    string
	plot      string
	logLevel  string
	radarInit string
	smooth    bool
	record    string
	saveCfg   string
}

func parseFlags(args []string) (*options, *flag.FlagSet, error) {
	o := &options{}

	fs := flag.NewFlagSet("fusion", flag.ContinueOnError)
	fs.StringVarP(&o.config, "config", "c", "", "path to YAML config file")
	fs.StringVarP(&o.input, "input", "i", "", "path to measurement log")
	fs.IntVar(&o.simulate, "simulate", 0, "number of simulated measurements to track instead of a log")
	fs.Uint64Var(&o.seed, "seed", 1, "simulation noise seed")
	fs.StringVarP(&o.output, "output", "o", "-", "estimates output file; - for stdout")
	fs.StringVar(&o.plot, "plot", "", "save plot of the run to this PNG file")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&o.radarInit, "radar-init", string(tracker.RadarInitLegacy), "radar initialization: legacy or bearing-x")
	fs.BoolVar(&o.smooth, "smooth", false, "smooth estimates with Rauch-Tung-Striebel smoother once the stream ends")
	fs.StringVar(&o.record, "record", "", "write every processed measurement to this measurement log")
	fs.StringVar(&o.saveCfg, "save-config", "", "write the effective configuration to this YAML file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if (o.input == "") == (o.simulate <= 0) {
		return nil, nil, fmt.Errorf("exactly one of --input or --simulate must be given")
	}

	return o, fs, nil
}

func loadConfig(o *options, fs *flag.FlagSet) (*config.Config, error) {
	c := config.Default()
	if o.config != "" {
		var err error
		if c, err = config.Load(o.config); err != nil {
			return nil, err
		}
	}

	// explicitly set flags take precedence over the config file
	if o.config == "" || fs.Changed("log-level") {
		c.LogLevel = o.logLevel
	}
	if o.config == "" || fs.Changed("radar-init") {
		c.RadarInit = o.radarInit
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	if o.saveCfg != "" {
		if err := c.Save(o.saveCfg); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func newLogger(c *config.Config) (*zap.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	return zc.Build()
}

// source calls fn for every measurement of the selected input
func source(ctx context.Context, o *options, tc tracker.Config, fn func(*fusion.Measurement) error) error {
	if o.simulate > 0 {
		s, err := sim.NewScenario(tc, o.seed)
		if err != nil {
			return err
		}
		return s.Stream(ctx, o.simulate, fn)
	}

	f, err := os.Open(o.input)
	if err != nil {
		return err
	}
	defer f.Close()

	r := sensorlog.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(m); err != nil {
			return err
		}
	}
}

func formatEstimate(est fusion.Estimate, m *fusion.Measurement) string {
	x := est.Val()

	fields := make([]string, 0, x.Len()+len(m.Values)+len(m.Truth)+1)
	for i := 0; i < x.Len(); i++ {
		fields = append(fields, strconv.FormatFloat(x.AtVec(i), 'f', 6, 64))
	}
	fields = append(fields, m.Sensor.String())
	for _, v := range m.Values {
		fields = append(fields, strconv.FormatFloat(v, 'f', 6, 64))
	}
	for _, v := range m.Truth {
		fields = append(fields, strconv.FormatFloat(v, 'f', 6, 64))
	}

	return strings.Join(fields, "\t")
}

func run(ctx context.Context, o *options, c *config.Config, logger *zap.Logger) error {
	tc, err := c.Tracker()
	if err != nil {
		return err
	}

	logger = logger.With(zap.String("run", uuid.NewString()))

	tr, err := tracker.New(tc, tracker.WithLogger(logger.Named("tracker")))
	if err != nil {
		return err
	}

	rec := sim.NewRecorder()

	var (
		logw *sensorlog.Writer
		logf *os.File
	)
	if o.record != "" {
		if logf, err = os.Create(o.record); err != nil {
			return fmt.Errorf("failed to create measurement log: %w", err)
		}
		defer logf.Close()
		logw = sensorlog.NewWriter(logf)
	}

	err = source(ctx, o, tc, func(m *fusion.Measurement) error {
		if logw != nil {
			if err := logw.Write(m); err != nil {
				return fmt.Errorf("failed to record measurement: %w", err)
			}
		}

		// recoverable anomalies are logged by the tracker
		err := tr.ProcessMeasurement(m)
		if errors.Is(err, fusion.ErrInvalidMeasurement) ||
			errors.Is(err, fusion.ErrNonMonotonicTimestamp) ||
			!tr.Initialized() {
			return nil
		}

		est, err := tr.Estimate()
		if err != nil {
			return err
		}

		return rec.Add(m, est)
	})
	if err != nil {
		return err
	}

	if logw != nil {
		if err := logw.Flush(); err != nil {
			return fmt.Errorf("failed to flush measurement log: %w", err)
		}
		if err := logf.Close(); err != nil {
			return fmt.Errorf("failed to close measurement log: %w", err)
		}
	}

	stats := tr.Stats()
	logger.Info("stream processed",
		zap.Int("lidar", stats.Lidar),
		zap.Int("radar", stats.Radar),
		zap.Int("skipped", stats.Skipped),
		zap.Int("rejected", stats.Rejected),
		zap.Int("degenerate", stats.Degenerate))

	if o.smooth && rec.Len() > 0 {
		if rec, err = smoothRun(tc, rec); err != nil {
			return err
		}
	}

	if err := writeEstimates(o.output, rec); err != nil {
		return err
	}

	if rmse, err := rec.RMSE(); err == nil {
		fmt.Fprintf(os.Stderr, "RMSE: px=%.4f py=%.4f vx=%.4f vy=%.4f\n", rmse[0], rmse[1], rmse[2], rmse[3])
	}

	if o.plot != "" && rec.Len() > 0 {
		plt, err := sim.New2DPlot(rec.Truth(), rec.Measured(), rec.Estimated())
		if err != nil {
			return fmt.Errorf("failed to make plot: %w", err)
		}

		if err := plt.Save(10*vg.Inch, 10*vg.Inch, o.plot); err != nil {
			return fmt.Errorf("failed to save plot to %s: %w", o.plot, err)
		}
	}

	return nil
}

// smoothRun returns recorder holding smoothed estimates of rec
func smoothRun(tc tracker.Config, rec *sim.Recorder) (*sim.Recorder, error) {
	cv, err := motion.New(tc.NoiseAX, tc.NoiseAY)
	if err != nil {
		return nil, err
	}

	s, err := rts.New(cv)
	if err != nil {
		return nil, err
	}

	sx, err := s.Smooth(rec.Estimates(), rec.Timestamps())
	if err != nil {
		return nil, fmt.Errorf("failed to smooth estimates: %w", err)
	}

	return rec.Replay(sx)
}

func writeEstimates(path string, rec *sim.Recorder) error {
	if path == "-" {
		return formatEstimates(os.Stdout, rec)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := formatEstimates(f, rec); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func formatEstimates(out io.Writer, rec *sim.Recorder) error {
	w := bufio.NewWriter(out)
	ests := rec.Estimates()
	for i, m := range rec.Measurements() {
		if _, err := fmt.Fprintln(w, formatEstimate(ests[i], m)); err != nil {
			return err
		}
	}

	return w.Flush()
}

func main() {
	o, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "fusion: %v\n", err)
		os.Exit(2)
	}

	c, err := loadConfig(o, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fusion: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fusion: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, c, logger); err != nil {
		logger.Error("fusion failed", zap.Error(err))
		stop()
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}
