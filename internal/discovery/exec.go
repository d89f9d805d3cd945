package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// DefaultEngineCommand is the engine executable looked up on PATH when none is configured.
const DefaultEngineCommand = "tigramite-bridge"

// stderrTailSize bounds how much engine stderr is kept for diagnostics.
const stderrTailSize = 4096

// Error kinds reported by the engine.
const (
	KindLinAlg = "linalg"
	KindOther  = "other"
)

// ExecStats describes the last engine process.
type ExecStats struct {
	PID          int
	ExitCode     int
	PeakRSSBytes int64
	Duration     time.Duration
	Killed       bool
}

// ExecDiscoverer runs the engine as a subprocess speaking the JSON protocol
// described in the package documentation.
//
// The subprocess runs in its own process group; when ctx ends the whole group
// is killed, so an abandoned discovery does not keep computing in the background.
//
// Thread-safety: Discover may be called from a worker goroutine while Stats is
// read from another.
type ExecDiscoverer struct {
	Command string
	Args    []string
	Env     []string
	Logger  *slog.Logger

	// WaitDelay bounds how long to wait for pipes to drain after a kill.
	WaitDelay time.Duration

	mu    sync.Mutex
	stats ExecStats
}

// NewExecDiscoverer creates an ExecDiscoverer for command.
// An empty command selects DefaultEngineCommand.
func NewExecDiscoverer(command string, args ...string) *ExecDiscoverer {
	if command == "" {
		command = DefaultEngineCommand
	}
	return &ExecDiscoverer{
		Command:   command,
		Args:      args,
		WaitDelay: 2 * time.Second,
	}
}

// Stats returns a snapshot of the most recent engine process.
func (d *ExecDiscoverer) Stats() ExecStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// wireRequest is the JSON request sent to the engine.
type wireRequest struct {
	Variables   []string    `json:"variables"`
	Data        [][]float64 `json:"data"`
	TauMin      int         `json:"tau_min"`
	TauMax      int         `json:"tau_max"`
	Alpha       float64     `json:"alpha"`
	CondIndTest CondIndTest `json:"cond_ind_test"`
}

// wireResponse is the JSON response read from the engine.
type wireResponse struct {
	LinkDict [][]wireLink `json:"link_dict"`
	Error    *wireError   `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// wireLink is encoded as a two-element array: [source, lag].
type wireLink [2]int

// Discover runs the engine once and decodes its links.
func (d *ExecDiscoverer) Discover(ctx context.Context, req Request) (LinkDict, error) {
	payload, err := json.Marshal(wireRequest{
		Variables:   req.Variables,
		Data:        req.Data,
		TauMin:      req.Params.TauMin,
		TauMax:      req.Params.TauMax,
		Alpha:       req.Params.Alpha,
		CondIndTest: req.Test,
	})
	if err != nil {
		return nil, fmt.Errorf("encode engine request: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, d.Command, d.Args...)
	if len(d.Env) > 0 {
		cmd.Env = d.Env
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = d.WaitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &EngineError{Kind: KindOther, Message: fmt.Sprintf("start %s", d.Command), Err: err}
	}
	logger.Debug("engine started", "command", d.Command, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()
	d.recordStats(cmd, time.Since(start), ctx.Err() != nil)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp, decodeErr := decodeResponse(stdout.Bytes())
	if decodeErr == nil && resp.Error != nil {
		return nil, classify(resp.Error)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &EngineError{
				Kind:    KindOther,
				Message: fmt.Sprintf("engine exited with code %d: %s", exitErr.ExitCode(), stderr.String()),
			}
		}
		return nil, &EngineError{Kind: KindOther, Message: "wait for engine", Err: waitErr}
	}
	if decodeErr != nil {
		return nil, &EngineError{Kind: KindOther, Message: "decode engine response", Err: decodeErr}
	}

	links := make(LinkDict, len(resp.LinkDict))
	for i, row := range resp.LinkDict {
		links[i] = make([]Link, len(row))
		for j, l := range row {
			links[i][j] = Link{Source: l[0], Lag: l[1]}
		}
	}
	if err := links.CheckShape(len(req.Variables)); err != nil {
		return nil, &EngineError{Kind: KindOther, Message: "malformed engine response", Err: err}
	}
	return links, nil
}

func decodeResponse(data []byte) (*wireResponse, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Error == nil && resp.LinkDict == nil {
		return nil, errors.New("response has neither link_dict nor error")
	}
	return &resp, nil
}

func classify(we *wireError) error {
	if we.Kind == KindLinAlg {
		return &LinAlgError{Message: we.Message}
	}
	kind := we.Kind
	if kind == "" {
		kind = KindOther
	}
	return &EngineError{Kind: kind, Message: we.Message}
}

func (d *ExecDiscoverer) recordStats(cmd *exec.Cmd, elapsed time.Duration, killed bool) {
	stats := ExecStats{Duration: elapsed, Killed: killed, ExitCode: -1}
	if cmd.Process != nil {
		stats.PID = cmd.Process.Pid
	}
	if state := cmd.ProcessState; state != nil {
		stats.ExitCode = state.ExitCode()
		stats.PeakRSSBytes = peakRSS(state)
	}

	d.mu.Lock()
	d.stats = stats
	d.mu.Unlock()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
