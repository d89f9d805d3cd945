package runner

import (
	"errors"
	"fmt"
	"time"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
	OutcomeFatal    Outcome = "fatal"
)

// Reason explains a fallback or fatal outcome.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTimeout      Reason = "timeout"
	ReasonLinAlg       Reason = "linalg"
	ReasonEngineError  Reason = "engine_error"
	ReasonPanic        Reason = "panic"
	ReasonEmptyDataset Reason = "empty_dataset"

	// ReasonInvalidDataset marks a scenario file that could not be parsed.
	ReasonInvalidDataset Reason = "invalid_dataset"
)

// ErrEmptyDataset is the fallback cause for a dataset without variables or rows.
var ErrEmptyDataset = errors.New("dataset has no variables or no observations")

// TimeoutError reports that the deadline passed before the engine finished.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.Timeout)
}

// PanicError carries a panic recovered from the engine worker.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("discovery panicked: %v", e.Value)
}

// FatalError is returned by Run for failures the caller asked to propagate.
// The partial Result is attached for reporting.
type FatalError struct {
	Result *Result
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal discovery error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
