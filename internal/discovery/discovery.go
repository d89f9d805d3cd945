package discovery

import (
	"context"
	"errors"
	"fmt"
)

// CondIndTest selects the conditional independence test used by the engine.
type CondIndTest string

const (
	// ParCorr is the linear partial-correlation test.
	ParCorr CondIndTest = "parcorr"
	// GPDC is the nonparametric Gaussian-process distance-correlation test.
	GPDC CondIndTest = "gpdc"
)

// Valid reports whether t names a supported test.
func (t CondIndTest) Valid() bool {
	return t == ParCorr || t == GPDC
}

// TestFor maps the --gpdc switch onto a test.
func TestFor(gpdc bool) CondIndTest {
	if gpdc {
		return GPDC
	}
	return ParCorr
}

// Default discovery parameters.
const (
	DefaultTauMin = 1
	DefaultTauMax = 100
	DefaultAlpha  = 0.05
)

// Params bounds the search: lags in [TauMin, TauMax], links significant below Alpha.
type Params struct {
	TauMin int     `json:"tau_min"`
	TauMax int     `json:"tau_max"`
	Alpha  float64 `json:"alpha"`
}

// DefaultParams returns the stock tau window and significance level.
func DefaultParams() Params {
	return Params{TauMin: DefaultTauMin, TauMax: DefaultTauMax, Alpha: DefaultAlpha}
}

// Validate checks the tau window and alpha range.
func (p Params) Validate() error {
	if p.TauMin < 1 {
		return fmt.Errorf("tau_min must be a positive integer, got %d", p.TauMin)
	}
	if p.TauMax < p.TauMin {
		return fmt.Errorf("tau_max (%d) must be >= tau_min (%d)", p.TauMax, p.TauMin)
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %g", p.Alpha)
	}
	return nil
}

// Link is a single significant causal link into a target variable.
// Source is the column index of the parent variable.
type Link struct {
	Source int
	Lag    int
}

// LinkDict holds, for each target column, the links discovered into it.
type LinkDict [][]Link

// Request is one discovery call over a dataset.
type Request struct {
	Variables []string
	// Data is row-major: Data[t][i] is variable i at time t.
	Data   [][]float64
	Params Params
	Test   CondIndTest
}

// Discoverer runs the causal-discovery engine once.
// Implementations should return promptly once ctx is done.
type Discoverer interface {
	Discover(ctx context.Context, req Request) (LinkDict, error)
}

// FuncDiscoverer adapts a function to the Discoverer interface.
type FuncDiscoverer func(ctx context.Context, req Request) (LinkDict, error)

// Discover calls f.
func (f FuncDiscoverer) Discover(ctx context.Context, req Request) (LinkDict, error) {
	return f(ctx, req)
}

// ErrLinAlg marks singular or non-converging linear algebra inside the engine.
var ErrLinAlg = errors.New("linear algebra error")

// LinAlgError carries the engine's message for a numerical failure.
// It matches ErrLinAlg under errors.Is.
type LinAlgError struct {
	Message string
}

func (e *LinAlgError) Error() string {
	if e.Message == "" {
		return ErrLinAlg.Error()
	}
	return fmt.Sprintf("%s: %s", ErrLinAlg.Error(), e.Message)
}

// Is reports whether target is ErrLinAlg.
func (e *LinAlgError) Is(target error) bool {
	return target == ErrLinAlg
}

// IsLinAlgError returns true if err is, or wraps, a numerical failure.
func IsLinAlgError(err error) bool {
	return errors.Is(err, ErrLinAlg)
}

// EngineError is a failure reported by, or observed around, the engine.
type EngineError struct {
	Kind    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Kind != "" {
		return fmt.Sprintf("engine error (%s): %s", e.Kind, msg)
	}
	return "engine error: " + msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// CheckShape verifies that links cover exactly n target variables and
// reference valid source columns.
func (d LinkDict) CheckShape(n int) error {
	if len(d) != n {
		return fmt.Errorf("link dict covers %d variables, expected %d", len(d), n)
	}
	for target, links := range d {
		for _, l := range links {
			if l.Source < 0 || l.Source >= n {
				return fmt.Errorf("variable %d: link source %d out of range", target, l.Source)
			}
		}
	}
	return nil
}
