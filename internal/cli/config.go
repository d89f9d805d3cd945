package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pcmcirun/internal/config"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	params discoveryFlags
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config <output-path>",
		Short: "Write the configuration record for a run",
		Long: `Write the discovery settings as a JSON configuration record, so the
parameters behind a result file can be reproduced.

Every value in the record is a string:
  {"tau_min": "1", "tau_max": "100", "alpha": "0.05", "cond_ind_test": "parcorr",
   "linear_algebra_errors_throw": "False", "timeout": "0.0"}

Example:
  pcmcirun config out/config.json --gpdc --linalg-error-throw --timeout 30`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, args[0], cmd)
		},
	}

	opts.params.register(cmd)

	return cmd
}

func runConfig(opts *ConfigOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd, opts.ConfigPath, &opts.params)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	rec := config.NewRecord(
		cfg.Discovery.Params(),
		cfg.Discovery.Test(),
		cfg.Discovery.LinAlgErrorThrow,
		opts.params.timeoutSeconds(cmd, cfg),
	)

	if err := config.WriteRecord(path, rec); err != nil {
		if errors.Is(err, config.ErrOutputDir) {
			return out.Fail(ExitCommandError, ErrCodeUsage, "invalid output path", err)
		}
		return out.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write configuration record", err)
	}

	if out.JSON() {
		return out.Success(map[string]any{
			"path":   path,
			"record": rec,
		})
	}

	out.VerboseLog("tau_min=%s tau_max=%s alpha=%s cond_ind_test=%s linear_algebra_errors_throw=%s timeout=%s",
		rec.TauMin, rec.TauMax, rec.Alpha, rec.CondIndTest, rec.LinearAlgebraErrorsThrow, rec.Timeout)
	fmt.Fprintf(out.Writer, "Wrote configuration record to %s\n", path)
	return nil
}
