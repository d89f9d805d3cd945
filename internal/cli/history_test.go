package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pcmcirun/internal/discovery"
)

func executeHistory(t *testing.T, format string, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()
	t.Setenv("PCMCIRUN_CONFIG", "")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: format})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return stdout, stderr, cmd.ExecuteContext(context.Background())
}

// seedLedger records a success and a linalg fallback.
func seedLedger(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, _, err := executeRun(context.Background(),
		testRunOptions(t, returning(weatherLinks, nil), "text", "run-1"),
		weatherScenario, "--db", dbPath)
	require.NoError(t, err)

	_, _, err = executeRun(context.Background(),
		testRunOptions(t, returning(nil, &discovery.LinAlgError{Message: "Singular matrix"}), "text", "run-2"),
		weatherScenario, "--db", dbPath)
	require.NoError(t, err)

	return dbPath
}

func TestHistoryTable(t *testing.T) {
	dbPath := seedLedger(t)

	stdout, _, err := executeHistory(t, "text", "--db", dbPath)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, strings.ToUpper(out), "OUTCOME")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "linalg")
	assert.Contains(t, out, "parcorr")
}

func TestHistoryJSON(t *testing.T) {
	dbPath := seedLedger(t)

	stdout, _, err := executeHistory(t, "json", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Runs []struct {
				ID      string `json:"id"`
				Outcome string `json:"outcome"`
			} `json:"runs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Runs, 1)
}

func TestHistorySingleRun(t *testing.T) {
	dbPath := seedLedger(t)

	stdout, _, err := executeHistory(t, "text", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "=== Run run-1 ===")
	assert.Contains(t, out, "Outcome:  success")
	assert.Contains(t, out, "Tau:      1..100")
	assert.Contains(t, out, `"pressure":{"parents":["temp","wind"]}`)
}

func TestHistoryUnknownRun(t *testing.T) {
	dbPath := seedLedger(t)

	_, stderr, err := executeHistory(t, "text", "--db", dbPath, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr.String(), "Error [E005]")
}

func TestHistoryMissingLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	_, _, err := executeRun(context.Background(),
		testRunOptions(t, returning(weatherLinks, nil), "text", "run-1"),
		weatherScenario, "--db", dbPath, "--tau-min", "0")
	require.Error(t, err, "invalid settings must not create a ledger")

	_, _, err = executeHistory(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryNoLedgerConfigured(t *testing.T) {
	_, stderr, err := executeHistory(t, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr.String(), "no ledger configured")
}
