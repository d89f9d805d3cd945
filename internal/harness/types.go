package harness

import (
	"fmt"

	"github.com/roach88/pcmcirun/internal/runner"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause matched.
	Pass bool `json:"pass"`

	Outcome runner.Outcome `json:"outcome"`
	Reason  runner.Reason  `json:"reason,omitempty"`

	// Document is the result file the run would write. Nil for a fatal run.
	Document *runner.Document `json:"result,omitempty"`

	// EngineCalls is how many times the scripted engine ran.
	EngineCalls int `json:"engine_calls"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
