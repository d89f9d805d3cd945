package cli

import (
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pcmcirun/internal/config"
	"github.com/roach88/pcmcirun/internal/discovery"
)

// discoveryFlags are the parameter flags shared by run and config. Only
// flags the user actually set override the loaded configuration.
type discoveryFlags struct {
	GPDC             bool
	LinAlgErrorThrow bool
	Timeout          float64 // seconds; zero or negative disables the deadline
	TauMin           int
	TauMax           int
	Alpha            float64
}

func (f *discoveryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.GPDC, "gpdc", false, "use the nonparametric GPDC test instead of ParCorr")
	flags.BoolVar(&f.LinAlgErrorThrow, "linalg-error-throw", false, "fail the run on singular-matrix errors instead of reporting no links")
	flags.Float64Var(&f.Timeout, "timeout", 0, "timeout in seconds (0 disables)")
	flags.IntVar(&f.TauMin, "tau-min", discovery.DefaultTauMin, "minimum lag")
	flags.IntVar(&f.TauMax, "tau-max", discovery.DefaultTauMax, "maximum lag")
	flags.Float64Var(&f.Alpha, "alpha", discovery.DefaultAlpha, "significance level")
}

// apply copies changed flags onto cfg and revalidates it.
func (f *discoveryFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	d := &cfg.Discovery

	if flags.Changed("gpdc") {
		d.CondIndTest = string(discovery.TestFor(f.GPDC))
	}
	if flags.Changed("linalg-error-throw") {
		d.LinAlgErrorThrow = f.LinAlgErrorThrow
	}
	if flags.Changed("timeout") {
		d.Timeout = secondsToDuration(f.Timeout)
	}
	if flags.Changed("tau-min") {
		d.TauMin = f.TauMin
	}
	if flags.Changed("tau-max") {
		d.TauMax = f.TauMax
	}
	if flags.Changed("alpha") {
		d.Alpha = f.Alpha
	}
	return cfg.Validate()
}

// timeoutSeconds is the timeout as the user gave it, for the configuration
// record. A negative --timeout is recorded as given.
func (f *discoveryFlags) timeoutSeconds(cmd *cobra.Command, cfg *config.Config) float64 {
	if cmd.Flags().Changed("timeout") {
		return f.Timeout
	}
	return cfg.Discovery.Timeout.Seconds()
}

// secondsToDuration converts a --timeout value. Zero, negative and NaN
// disable the deadline; values past the Duration range saturate.
func secondsToDuration(s float64) time.Duration {
	if !(s > 0) {
		return 0
	}
	if s >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}

// loadConfig reads the layered configuration and applies flags on top.
// extra runs before the final validation, for command-specific flags.
func loadConfig(cmd *cobra.Command, path string, f *discoveryFlags, extra ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, fn := range extra {
		fn(cfg)
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger. Verbose forces debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
