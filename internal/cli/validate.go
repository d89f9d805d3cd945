package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pcmcirun/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string // "result", "config" or empty to detect
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File     string           `json:"file"`
	Kind     schema.Kind      `json:"kind"`
	Valid    bool             `json:"valid"`
	Problems []schema.Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a result or config record against its schema",
		Long: `Check a JSON file written by pcmcirun against its schema.

A document with a top-level "variables" key is checked as a result file,
anything else as a configuration record, unless --kind says otherwise.

Examples:
  pcmcirun validate out/weather.json
  pcmcirun validate out/config.json --kind config --format json`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "document kind (result|config); detected when empty")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var kind schema.Kind
	if opts.Kind != "" {
		k, err := schema.ParseKind(opts.Kind)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid --kind", err)
		}
		kind = k
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read file", err)
	}

	if kind == "" {
		k, err := schema.DetectKind(data)
		if err != nil {
			result := ValidationResult{
				File:     path,
				Problems: []schema.Problem{{Message: err.Error()}},
			}
			return outputValidationErrors(formatter, result)
		}
		kind = k
	}
	formatter.VerboseLog("Validating %s as %s document", path, kind)

	s, err := schema.New()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to load schemas", err)
	}

	result := ValidationResult{File: path, Kind: kind}
	if err := s.Validate(kind, path, data); err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "validation error", err)
		}
		result.Problems = verr.Problems
		return outputValidationErrors(formatter, result)
	}

	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is a valid %s document\n", result.File, result.Kind)
	return nil
}

// outputValidationErrors outputs every schema problem and returns exit code 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeSchema,
				Message: result.Problems[0].String(),
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("validation failed with %d problem(s)", len(result.Problems)),
			Reported: true,
		}
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, p := range result.Problems {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		if p.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", ErrCodeSchema, p.Path, p.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ErrCodeSchema, p.Message)
		}
	}

	return &ExitError{
		Code:     ExitFailure,
		Message:  fmt.Sprintf("validation failed with %d problem(s)", len(result.Problems)),
		Reported: true,
	}
}
