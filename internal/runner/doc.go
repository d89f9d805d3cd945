// Package runner executes one causal-discovery attempt under a time budget
// and a numerical-failure policy, and always hands back a well-formed result.
//
// # Outcomes
//
// Every run ends in exactly one of three outcomes:
//
//   - OutcomeSuccess: the engine returned links; parents are reported.
//   - OutcomeFallback: the attempt failed (timeout, engine error, panic,
//     empty dataset, or a numerical failure while LinAlgErrorThrow is off)
//     and every variable is reported with no parents.
//   - OutcomeFatal: a numerical failure while LinAlgErrorThrow is on. Run
//     returns a *FatalError and no output should be written.
//
// # Timeouts
//
// The engine runs in a worker goroutine. When Options.Timeout is positive the
// runner waits on the worker and the deadline, whichever comes first. On
// deadline the worker's context is cancelled and the runner waits up to the
// grace period (WithGracePeriod) for the worker to return, so an engine
// subprocess has been killed and reaped before Run returns. A worker that
// ignores cancellation is abandoned after the grace period. The deadline is
// released on every return path.
//
// A single attempt is made per Run. Nothing is retried.
package runner
