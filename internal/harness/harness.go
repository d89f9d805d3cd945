package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/pcmcirun/internal/dataset"
	"github.com/roach88/pcmcirun/internal/discovery"
	"github.com/roach88/pcmcirun/internal/runner"
	"github.com/roach88/pcmcirun/internal/testutil"
)

// Harness executes scenarios against a runner wired to a scripted engine.
type Harness struct {
	logger *slog.Logger
}

// Option customises a Harness.
type Option func(*Harness)

// WithLogger routes runner diagnostics to logger. The default discards them.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes one scenario and checks its expect clause.
//
// An error is returned only when the scenario could not be executed at all
// (bad settings or an interrupted run). A run whose outcome differs from the
// expectation returns a Result with Pass false.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts, err := scenario.Settings.options()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	disc := scenario.Engine.discoverer()
	// A hang that ignores cancellation outlives the run; let it go afterwards.
	defer disc.Release()

	clock := testutil.NewStepClock(time.Time{}, time.Second)
	r := runner.New(disc,
		runner.WithLogger(h.logger.With("scenario", scenario.Name)),
		runner.WithClock(clock.Now),
		runner.WithIDGenerator(runner.NewFixedGenerator(scenario.Name)),
		runner.WithGracePeriod(graceFor(scenario.Engine)),
	)

	var res *runner.Result
	ds, err := dataset.LoadDelimited(strings.NewReader(scenario.Data), ',')
	if err != nil {
		var pe *dataset.ParseError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		res = r.Reject(pe.Variables, err)
	} else {
		res, err = r.Run(ctx, ds, opts)
		if err != nil && !runner.IsFatal(err) {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	result := NewResult()
	result.Outcome = res.Outcome
	result.Reason = res.Reason
	result.EngineCalls = disc.Calls()
	if res.Outcome != runner.OutcomeFatal {
		result.Document = res.Document()
	}

	checkExpect(result, res, scenario.Expect)
	return result, nil
}

func checkExpect(result *Result, res *runner.Result, expect Expect) {
	if res.Outcome != expect.Outcome {
		result.AddError("outcome: expected %s, got %s", expect.Outcome, res.Outcome)
	}
	if res.Reason != expect.Reason {
		result.AddError("reason: expected %q, got %q", expect.Reason, res.Reason)
	}
	if expect.EngineCalls != nil && result.EngineCalls != *expect.EngineCalls {
		result.AddError("engine_calls: expected %d, got %d", *expect.EngineCalls, result.EngineCalls)
	}

	if expect.Parents == nil {
		return
	}
	for name, want := range expect.Parents {
		got, ok := res.Parents[name]
		if !ok {
			result.AddError("parents: variable %q missing from result", name)
			continue
		}
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(got, want) {
			result.AddError("parents[%s]: expected %v, got %v", name, want, got)
		}
	}
	for name := range res.Parents {
		if _, ok := expect.Parents[name]; !ok {
			result.AddError("parents: unexpected variable %q in result", name)
		}
	}
}

// graceFor keeps scenarios whose engine ignores cancellation from waiting
// out the full default grace period.
func graceFor(e EngineScript) time.Duration {
	if e.Hang && e.IgnoreCancel {
		return 10 * time.Millisecond
	}
	return runner.DefaultGracePeriod
}

// options converts settings to runner options, filling defaults for zero values.
func (s Settings) options() (runner.Options, error) {
	opts := runner.DefaultOptions()
	opts.Test = discovery.TestFor(s.GPDC)
	opts.LinAlgErrorThrow = s.LinAlgErrorThrow
	if s.Timeout > 0 {
		opts.Timeout = time.Duration(s.Timeout * float64(time.Second))
	}
	if s.TauMin != 0 {
		opts.Params.TauMin = s.TauMin
	}
	if s.TauMax != 0 {
		opts.Params.TauMax = s.TauMax
	}
	if s.Alpha != 0 {
		opts.Params.Alpha = s.Alpha
	}
	if err := opts.Validate(); err != nil {
		return runner.Options{}, fmt.Errorf("settings: %w", err)
	}
	return opts, nil
}

func (e EngineScript) discoverer() *testutil.ScriptedDiscoverer {
	d := &testutil.ScriptedDiscoverer{
		Hang:         e.Hang,
		IgnoreCancel: e.IgnoreCancel,
	}
	if e.Panic != "" {
		d.Panic = e.Panic
	}
	if e.Error != nil {
		switch e.Error.Kind {
		case discovery.KindLinAlg:
			d.Err = &discovery.LinAlgError{Message: e.Error.Message}
		default:
			d.Err = &discovery.EngineError{Kind: e.Error.Kind, Message: e.Error.Message}
		}
	}
	if e.Links != nil {
		d.Links = make(discovery.LinkDict, len(e.Links))
		for i, target := range e.Links {
			d.Links[i] = make([]discovery.Link, len(target))
			for j, l := range target {
				d.Links[i][j] = discovery.Link{Source: l[0], Lag: l[1]}
			}
		}
	}
	return d
}
