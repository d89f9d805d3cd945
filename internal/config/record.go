package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/pcmcirun/internal/discovery"
)

// ErrOutputDir reports that the parent directory of an output path is missing.
var ErrOutputDir = errors.New("output directory does not exist")

// Record is the configuration record consumed by downstream tooling.
// Every value is a string, rendered the way the consuming scripts expect
// ("True"/"False" for booleans, a trailing ".0" on whole floats).
type Record struct {
	TauMin                   string `json:"tau_min"`
	TauMax                   string `json:"tau_max"`
	Alpha                    string `json:"alpha"`
	CondIndTest              string `json:"cond_ind_test"`
	LinearAlgebraErrorsThrow string `json:"linear_algebra_errors_throw"`
	Timeout                  string `json:"timeout"`
}

// NewRecord renders the settings of one run as a Record.
func NewRecord(params discovery.Params, test discovery.CondIndTest, linalgThrow bool, timeoutSeconds float64) Record {
	return Record{
		TauMin:                   strconv.Itoa(params.TauMin),
		TauMax:                   strconv.Itoa(params.TauMax),
		Alpha:                    formatFloat(params.Alpha),
		CondIndTest:              string(test),
		LinearAlgebraErrorsThrow: formatBool(linalgThrow),
		Timeout:                  formatFloat(timeoutSeconds),
	}
}

// WriteRecord writes rec as JSON to path. The parent directory must exist.
func WriteRecord(path string, rec Record) error {
	if err := CheckOutputDir(path); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode config record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config record: %w", err)
	}
	return nil
}

// CheckOutputDir verifies that the directory path would be written into exists.
func CheckOutputDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputDir, dir)
	}
	return nil
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// formatFloat renders v as the shortest repr that round-trips, always with a
// decimal point or exponent: 30 -> "30.0", 0.05 -> "0.05", 1e-05 -> "1e-05".
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
