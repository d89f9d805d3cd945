package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/pcmcirun/internal/config"
	"github.com/roach88/pcmcirun/internal/dataset"
	"github.com/roach88/pcmcirun/internal/discovery"
	"github.com/roach88/pcmcirun/internal/ledger"
	"github.com/roach88/pcmcirun/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	OutputFilePath string
	Engine         string
	Database       string
	MetricsFile    string

	params discoveryFlags

	// Discoverer replaces the engine subprocess (for testing).
	Discoverer discovery.Discoverer

	// IDs overrides run ID generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs runner.IDGenerator

	// Now overrides the clock used for start time and runtime (for testing).
	Now func() time.Time
}

// RunSummary is the command output for one run.
type RunSummary struct {
	RunID          string           `json:"run_id"`
	Scenario       string           `json:"scenario"`
	Outcome        runner.Outcome   `json:"outcome"`
	Reason         runner.Reason    `json:"reason,omitempty"`
	Error          string           `json:"error,omitempty"`
	Variables      int              `json:"variables"`
	Links          int              `json:"links"`
	RuntimeSeconds float64          `json:"runtime_seconds"`
	OutputFile     string           `json:"output_file,omitempty"`
	Result         *runner.Document `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run causal discovery on a scenario file",
		Long: `Run PCMCI+ causal discovery on a scenario file and report the parents
discovered for each variable.

The scenario is a CSV (or .tsv, .xlsx) file with one named column per
variable. Discovery runs in the engine subprocess under the configured
timeout. A timeout, an engine failure or a malformed scenario is reported
as a successful run with no parents; a singular-matrix failure is fatal
only with --linalg-error-throw.

Example:
  pcmcirun run scenarios/weather.csv --output-file-path out/weather.json
  pcmcirun run scenarios/weather.csv --gpdc --timeout 600 --db runs.db`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	opts.params.register(cmd)
	cmd.Flags().StringVar(&opts.OutputFilePath, "output-file-path", "", "write the result JSON to this file")
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "engine command (default from config, then "+discovery.DefaultEngineCommand+")")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite ledger")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	return cmd
}

func runScenario(opts *RunOptions, scenario string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd, opts.ConfigPath, &opts.params, func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("engine") {
			cfg.Discovery.Engine = opts.Engine
		}
		if flags.Changed("db") {
			cfg.Ledger.Path = opts.Database
		}
		if flags.Changed("metrics-file") {
			cfg.Metrics.File = opts.MetricsFile
		}
	})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	logger := newLogger(out.GetErrWriter(), cfg.Logging, opts.Verbose)
	slog.SetDefault(logger)

	// Usage errors are reported before anything is computed.
	if err := requireFile(scenario); err != nil {
		return out.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("scenario file %s is not a valid file", scenario), nil)
	}
	if opts.OutputFilePath != "" {
		if err := config.CheckOutputDir(opts.OutputFilePath); err != nil {
			return out.Fail(ExitCommandError, ErrCodeUsage, "invalid output file path", err)
		}
	}

	var led *ledger.Ledger
	if cfg.Ledger.Path != "" {
		logger.Debug("opening ledger", "path", cfg.Ledger.Path)
		led, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := led.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
	}

	disc := opts.Discoverer
	var engine *discovery.ExecDiscoverer
	if disc == nil {
		engine = discovery.NewExecDiscoverer(cfg.Discovery.Engine, cfg.Discovery.EngineArgs...)
		engine.Logger = logger
		disc = engine
	}

	reg := prometheus.NewRegistry()
	metrics, err := runner.NewMetrics(reg)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "failed to register metrics", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithClock(now),
		runner.WithMetrics(metrics),
	}
	if opts.IDs != nil {
		runnerOpts = append(runnerOpts, runner.WithIDGenerator(opts.IDs))
	}
	if engine != nil {
		// Long enough for the killed process group to be reaped and its pipes drained.
		runnerOpts = append(runnerOpts, runner.WithGracePeriod(engine.WaitDelay+time.Second))
	}
	r := runner.New(disc, runnerOpts...)

	// Setup signal handling so Ctrl-C kills the engine instead of orphaning it
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runOpts := runner.Options{
		Params:           cfg.Discovery.Params(),
		Test:             cfg.Discovery.Test(),
		LinAlgErrorThrow: cfg.Discovery.LinAlgErrorThrow,
		Timeout:          cfg.Discovery.Timeout,
	}
	startedAt := now()

	var res *runner.Result
	ds, loadErr := dataset.Load(scenario)
	if loadErr != nil {
		var pe *dataset.ParseError
		var variables []string
		if errors.As(loadErr, &pe) {
			variables = pe.Variables
		}
		res = r.Reject(variables, loadErr)
	} else {
		for i, v := range ds.Variables {
			out.VerboseLog("Data column %d is variable '%s'", i, v)
		}
		logger.Debug("discovery starting",
			"scenario", scenario,
			"variables", ds.NumVariables(),
			"rows", ds.Rows(),
			"cond_ind_test", string(runOpts.Test),
			"timeout", runOpts.Timeout,
		)

		var runErr error
		res, runErr = r.Run(ctx, ds, runOpts)
		switch {
		case runner.IsFatal(runErr):
			if err := recordRun(ctx, led, engine, scenario, startedAt, runOpts, res); err != nil {
				logger.Error("failed to record fatal run", "error", err)
			}
			writeMetrics(logger, cfg.Metrics.File, reg)
			return out.Fail(ExitFailure, ErrCodeNumerical, "numerical failure", runErr)
		case runErr != nil && ctx.Err() != nil:
			return out.Fail(ExitFailure, ErrCodeInterrupted, "run interrupted", runErr)
		case runErr != nil:
			return out.Fail(ExitCommandError, ErrCodeUsage, "invalid run options", runErr)
		}
	}

	doc := res.Document()
	if opts.OutputFilePath != "" {
		if err := doc.WriteFile(opts.OutputFilePath); err != nil {
			return out.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write result", err)
		}
	}

	if err := recordRun(ctx, led, engine, scenario, startedAt, runOpts, res); err != nil {
		return out.Fail(ExitFailure, ErrCodeLedger, "failed to record run", err)
	}

	writeMetrics(logger, cfg.Metrics.File, reg)

	summary := newRunSummary(scenario, opts.OutputFilePath, res, doc)
	if out.JSON() {
		return out.Success(summary)
	}
	outputRunText(out, summary, res)
	return nil
}

// recordRun writes res to the ledger, if one is open. Engine statistics are
// attached when the subprocess engine served the run.
func recordRun(ctx context.Context, led *ledger.Ledger, engine *discovery.ExecDiscoverer,
	scenario string, startedAt time.Time, opts runner.Options, res *runner.Result) error {
	if led == nil {
		return nil
	}

	run, err := ledger.NewRun(scenario, startedAt, opts, res)
	if err != nil {
		return err
	}
	if engine != nil {
		run.Engine = engine.Command
		run.PeakRSSBytes = engine.Stats().PeakRSSBytes
	}
	return led.RecordRun(context.WithoutCancel(ctx), run)
}

// writeMetrics dumps reg in the textfile exposition format. Failures only warn.
func writeMetrics(logger *slog.Logger, path string, reg *prometheus.Registry) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		logger.Warn("failed to write metrics", "path", path, "error", err)
	}
}

func newRunSummary(scenario, outputFile string, res *runner.Result, doc *runner.Document) RunSummary {
	s := RunSummary{
		RunID:          res.RunID,
		Scenario:       scenario,
		Outcome:        res.Outcome,
		Reason:         res.Reason,
		Variables:      len(res.Variables),
		RuntimeSeconds: doc.Runtime,
		OutputFile:     outputFile,
		Result:         doc,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	for _, parents := range res.Parents {
		s.Links += len(parents)
	}
	return s
}

func outputRunText(out *OutputFormatter, s RunSummary, res *runner.Result) {
	w := out.Writer

	fmt.Fprintf(w, "=== Run %s ===\n", s.RunID)
	fmt.Fprintf(w, "Scenario: %s\n", s.Scenario)
	if s.Reason != runner.ReasonNone {
		fmt.Fprintf(w, "Outcome:  %s (%s)\n", s.Outcome, s.Reason)
	} else {
		fmt.Fprintf(w, "Outcome:  %s\n", s.Outcome)
	}
	fmt.Fprintf(w, "Runtime:  %.3fs\n", s.RuntimeSeconds)
	if s.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", s.Error)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Parents ===")
	if len(res.Variables) == 0 {
		fmt.Fprintln(w, "(no variables)")
	}
	for _, v := range res.Variables {
		parents := res.Parents[v]
		if len(parents) == 0 {
			fmt.Fprintf(w, "  %s: (none)\n", v)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", v, strings.Join(parents, ", "))
	}

	if s.OutputFile != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Output results to file path %s\n", s.OutputFile)
	}
}
