package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/pcmcirun/internal/config"
	"github.com/roach88/pcmcirun/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string // optional - show a single run with its result
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded in the ledger, newest first.

The ledger is the --db flag, or ledger.path from the configuration.

Examples:
  pcmcirun history --db runs.db
  pcmcirun history --db runs.db --limit 5 --format json
  pcmcirun history --db runs.db --run 0192f3c1-...`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite ledger")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show a single run by ID")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	path := opts.Database
	if path == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		path = cfg.Ledger.Path
	}
	if path == "" {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "no ledger configured: pass --db or set ledger.path", nil)
	}
	if err := requireFile(path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("ledger not found: %s", path), nil)
	}

	led, err := ledger.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLedger, "failed to open ledger", err)
	}
	defer led.Close()

	ctx := cmd.Context()

	if opts.RunID != "" {
		run, err := led.GetRun(ctx, opts.RunID)
		if errors.Is(err, ledger.ErrNotFound) {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeLedger, "failed to read run", err)
		}
		if formatter.JSON() {
			return formatter.Success(run)
		}
		outputRunDetail(formatter, run)
		return nil
	}

	runs, err := led.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeLedger, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"runs": runs})
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	table := tablewriter.NewWriter(formatter.Writer)
	table.Header("ID", "Started", "Scenario", "Test", "Outcome", "Reason", "Runtime")
	for _, run := range runs {
		table.Append(
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Scenario,
			string(run.Test),
			string(run.Outcome),
			dashIfEmpty(string(run.Reason)),
			fmt.Sprintf("%.3fs", run.Runtime.Seconds()),
		)
	}
	return table.Render()
}

func outputRunDetail(formatter *OutputFormatter, run ledger.Run) {
	w := formatter.Writer

	fmt.Fprintf(w, "=== Run %s ===\n", run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", run.Scenario)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Outcome:  %s\n", run.Outcome)
	if run.Reason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", run.Reason)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	fmt.Fprintf(w, "Runtime:  %.3fs\n", run.Runtime.Seconds())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Parameters ===")
	fmt.Fprintf(w, "Test:     %s\n", run.Test)
	fmt.Fprintf(w, "Tau:      %d..%d\n", run.Params.TauMin, run.Params.TauMax)
	fmt.Fprintf(w, "Alpha:    %s\n", strconv.FormatFloat(run.Params.Alpha, 'g', -1, 64))
	if run.Engine != "" {
		fmt.Fprintf(w, "Engine:   %s (peak RSS %d bytes)\n", run.Engine, run.PeakRSSBytes)
	}

	if run.Result != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Result ===")
		fmt.Fprintln(w, string(run.Result))
	}
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
