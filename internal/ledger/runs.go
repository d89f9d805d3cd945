package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pcmcirun/internal/discovery"
	"github.com/roach88/pcmcirun/internal/runner"
)

// ErrNotFound is returned by GetRun for an unknown ID.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one ledger row.
type Run struct {
	ID           string                `json:"id"`
	Scenario     string                `json:"scenario"`
	StartedAt    time.Time             `json:"started_at"`
	Runtime      time.Duration         `json:"runtime_ns"`
	Outcome      runner.Outcome        `json:"outcome"`
	Reason       runner.Reason         `json:"reason,omitempty"`
	Test         discovery.CondIndTest `json:"cond_ind_test"`
	Params       discovery.Params      `json:"params"`
	Result       json.RawMessage       `json:"result,omitempty"` // nil for fatal runs
	Error        string                `json:"error,omitempty"`
	Engine       string                `json:"engine,omitempty"`
	PeakRSSBytes int64                 `json:"peak_rss_bytes,omitempty"`
}

// NewRun builds the ledger row for res. The result document is attached
// unless the run was fatal.
func NewRun(scenario string, startedAt time.Time, opts runner.Options, res *runner.Result) (Run, error) {
	run := Run{
		ID:        res.RunID,
		Scenario:  scenario,
		StartedAt: startedAt,
		Runtime:   res.Runtime,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
		Test:      opts.Test,
		Params:    opts.Params,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if res.Outcome != runner.OutcomeFatal {
		doc, err := json.Marshal(res.Document())
		if err != nil {
			return Run{}, fmt.Errorf("encode result: %w", err)
		}
		run.Result = doc
	}
	return run, nil
}

// RecordRun inserts run. A second insert with the same ID is ignored.
func (l *Ledger) RecordRun(ctx context.Context, run Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	var result any
	if run.Result != nil {
		result = string(run.Result)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, started_at, runtime_seconds, outcome, reason, cond_ind_test, params, result, error, engine, peak_rss_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.StartedAt.UTC().Format(timeLayout),
		run.Runtime.Seconds(),
		string(run.Outcome),
		string(run.Reason),
		string(run.Test),
		string(params),
		result,
		run.Error,
		run.Engine,
		run.PeakRSSBytes,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

const selectRuns = `
	SELECT id, scenario, started_at, runtime_seconds, outcome, reason, cond_ind_test, params, result, error, engine, peak_rss_bytes
	FROM runs`

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC, id COLLATE BINARY DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with the given ID, or ErrNotFound.
func (l *Ledger) GetRun(ctx context.Context, id string) (Run, error) {
	row := l.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run       Run
		startedAt string
		runtime   float64
		outcome   string
		reason    string
		test      string
		params    string
		result    sql.NullString
	)
	err := s.Scan(
		&run.ID,
		&run.Scenario,
		&startedAt,
		&runtime,
		&outcome,
		&reason,
		&test,
		&params,
		&result,
		&run.Error,
		&run.Engine,
		&run.PeakRSSBytes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
	}
	run.Runtime = time.Duration(runtime * float64(time.Second))
	run.Outcome = runner.Outcome(outcome)
	run.Reason = runner.Reason(reason)
	run.Test = discovery.CondIndTest(test)
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return Run{}, fmt.Errorf("run %s: decode params: %w", run.ID, err)
	}
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	return run, nil
}
