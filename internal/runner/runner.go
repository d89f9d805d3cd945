package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/roach88/pcmcirun/internal/dataset"
	"github.com/roach88/pcmcirun/internal/discovery"
)

// Options configures a single guarded run.
type Options struct {
	Params discovery.Params
	Test   discovery.CondIndTest

	// LinAlgErrorThrow propagates numerical failures as fatal instead of
	// downgrading them to an empty result.
	LinAlgErrorThrow bool

	// Timeout bounds the engine call. Zero or negative disables it.
	Timeout time.Duration
}

// DefaultOptions returns the stock parameters with ParCorr and no timeout.
func DefaultOptions() Options {
	return Options{Params: discovery.DefaultParams(), Test: discovery.ParCorr}
}

// Validate checks the options before any computation starts.
func (o Options) Validate() error {
	if err := o.Params.Validate(); err != nil {
		return err
	}
	if !o.Test.Valid() {
		return fmt.Errorf("unknown conditional independence test %q", o.Test)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Variables []string
	// Parents maps each variable to its deduplicated parent names.
	Parents map[string][]string
	Runtime time.Duration
	Outcome Outcome
	Reason  Reason
	// Err is the cause of a fallback or fatal outcome.
	Err error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	Generate() string
}

// Runner wraps a Discoverer with the timeout and failure policy.
type Runner struct {
	disc    discovery.Discoverer
	logger  *slog.Logger
	now     func() time.Time
	ids     IDGenerator
	metrics *Metrics
	grace   time.Duration
}

// DefaultGracePeriod is how long a cancelled engine call may take to wind down
// before the runner abandons it.
const DefaultGracePeriod = 3 * time.Second

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithClock overrides the wall clock used to measure runtime.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithIDGenerator overrides run ID generation (for testing).
func WithIDGenerator(ids IDGenerator) Option {
	return func(r *Runner) { r.ids = ids }
}

// WithGracePeriod sets how long Run waits for a cancelled engine call to
// return. Zero abandons it immediately.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// WithMetrics records every run on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner around disc.
func New(disc discovery.Discoverer, opts ...Option) *Runner {
	r := &Runner{
		disc:   disc,
		logger: slog.Default(),
		now:    time.Now,
		ids:    UUIDv7Generator{},
		grace:  DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// attempt is what the worker goroutine hands back.
type attempt struct {
	links discovery.LinkDict
	err   error
}

// Run makes one guarded discovery attempt over ds.
//
// It returns a non-nil Result and nil error for success and for every
// downgraded failure. It returns a *FatalError for a numerical failure when
// opts.LinAlgErrorThrow is set, and a plain error for invalid options or when
// ctx itself is cancelled by the caller.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	res := &Result{
		RunID:     r.ids.Generate(),
		Variables: variablesOf(ds),
	}
	logger := r.logger.With("run_id", res.RunID)

	start := r.now()
	links, err := r.discover(ctx, ds, opts)
	res.Runtime = r.now().Sub(start)

	if err != nil && ctx.Err() != nil && !isTimeout(err) {
		return nil, fmt.Errorf("run interrupted: %w", ctx.Err())
	}

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
		res.Parents = parentsFromLinks(res.Variables, links)
		logger.Debug("discovery finished", "variables", len(res.Variables), "runtime", res.Runtime)

	case discovery.IsLinAlgError(err) && opts.LinAlgErrorThrow:
		res.Outcome = OutcomeFatal
		res.Reason = ReasonLinAlg
		res.Err = err
		r.observe(res)
		logger.Error("numerical failure", "error", err)
		return res, &FatalError{Result: res, Err: err}

	default:
		res.Outcome = OutcomeFallback
		res.Reason = classify(err)
		res.Err = err
		res.Parents = emptyParents(res.Variables)
		logger.Warn("discovery failed, reporting no links",
			"reason", string(res.Reason),
			"error", err,
			"runtime", res.Runtime,
		)
		var pe *PanicError
		if errors.As(err, &pe) {
			logger.Debug("panic stack", "stack", string(pe.Stack))
		}
	}

	r.observe(res)
	return res, nil
}

// Reject reports a scenario that could not be loaded as a fallback run over
// variables, without calling the engine. variables may be empty when not even
// the header could be read.
func (r *Runner) Reject(variables []string, cause error) *Result {
	res := &Result{
		RunID:     r.ids.Generate(),
		Variables: append([]string{}, variables...),
		Outcome:   OutcomeFallback,
		Reason:    ReasonInvalidDataset,
		Err:       cause,
	}
	res.Parents = emptyParents(res.Variables)
	r.logger.With("run_id", res.RunID).Warn("scenario rejected, reporting no links",
		"reason", string(res.Reason),
		"error", cause,
	)
	r.observe(res)
	return res
}

// discover runs the engine in a worker and waits for it or the deadline.
func (r *Runner) discover(ctx context.Context, ds *dataset.Dataset, opts Options) (discovery.LinkDict, error) {
	if ds.Empty() {
		return nil, ErrEmptyDataset
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	// Disarms the deadline and tells an abandoned worker to stop.
	defer cancel()

	req := discovery.Request{
		Variables: ds.Variables,
		Data:      ds.Matrix(),
		Params:    opts.Params,
		Test:      opts.Test,
	}

	// Buffered so an abandoned worker can still send and exit.
	done := make(chan attempt, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attempt{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
		}()
		links, err := r.disc.Discover(runCtx, req)
		done <- attempt{links: links, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			if errors.Is(a.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &TimeoutError{Timeout: opts.Timeout}
			}
			return nil, a.err
		}
		if err := a.links.CheckShape(len(ds.Variables)); err != nil {
			return nil, &discovery.EngineError{Message: "malformed link dict", Err: err}
		}
		return a.links, nil
	case <-runCtx.Done():
		cancel()
		r.join(done)
		if ctx.Err() == nil {
			return nil, &TimeoutError{Timeout: opts.Timeout}
		}
		return nil, ctx.Err()
	}
}

// join waits up to the grace period for a cancelled worker, so an engine
// that honours cancellation is gone before Run returns.
func (r *Runner) join(done <-chan attempt) {
	if r.grace <= 0 {
		return
	}
	timer := time.NewTimer(r.grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.logger.Warn("engine did not stop after cancellation, abandoning it", "grace", r.grace)
	}
}

func (r *Runner) observe(res *Result) {
	if r.metrics != nil {
		r.metrics.Observe(res)
	}
}

func classify(err error) Reason {
	var pe *PanicError
	switch {
	case errors.Is(err, ErrEmptyDataset):
		return ReasonEmptyDataset
	case isTimeout(err):
		return ReasonTimeout
	case discovery.IsLinAlgError(err):
		return ReasonLinAlg
	case errors.As(err, &pe):
		return ReasonPanic
	default:
		return ReasonEngineError
	}
}

func isTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func variablesOf(ds *dataset.Dataset) []string {
	if ds == nil {
		return []string{}
	}
	return append([]string{}, ds.Variables...)
}

// parentsFromLinks names the parents of each variable, dropping lags and
// keeping the first occurrence of each source.
func parentsFromLinks(variables []string, links discovery.LinkDict) map[string][]string {
	parents := make(map[string][]string, len(variables))
	for i, name := range variables {
		seen := make(map[int]struct{}, len(links[i]))
		list := make([]string, 0, len(links[i]))
		for _, link := range links[i] {
			if _, ok := seen[link.Source]; ok {
				continue
			}
			seen[link.Source] = struct{}{}
			list = append(list, variables[link.Source])
		}
		parents[name] = list
	}
	return parents
}

func emptyParents(variables []string) map[string][]string {
	parents := make(map[string][]string, len(variables))
	for _, name := range variables {
		parents[name] = []string{}
	}
	return parents
}
