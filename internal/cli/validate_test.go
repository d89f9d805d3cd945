package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, format string, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return stdout, stderr, cmd.Execute()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateResult(t *testing.T) {
	path := writeFile(t, "result.json", weatherResultJSON)

	stdout, _, err := executeValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "✓ "+path+" is a valid result document")
}

func TestValidateConfigRecordJSON(t *testing.T) {
	path := writeFile(t, "config.json",
		`{"tau_min":"1","tau_max":"100","alpha":"0.05","cond_ind_test":"gpdc","linear_algebra_errors_throw":"True","timeout":"30.0"}`)

	stdout, _, err := executeValidate(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "config", string(resp.Data.Kind))
}

func TestValidateSchemaViolation(t *testing.T) {
	path := writeFile(t, "result.json", `{"variables": {"a": {"parents": [1]}}, "runtime": -1}`)

	stdout, _, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout.String(), "✗ Validation failed")
	assert.Contains(t, stdout.String(), "E006")
}

func TestValidateSchemaViolationJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"tau_min": 1}`)

	stdout, _, err := executeValidate(t, "json", path, "--kind", "config")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.NotEmpty(t, resp.Data.Problems)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
}

func TestValidateKindOverride(t *testing.T) {
	// A valid result checked as a config record must fail.
	path := writeFile(t, "result.json", weatherResultJSON)

	_, _, err := executeValidate(t, "text", path, "--kind", "config")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateNotJSON(t *testing.T) {
	path := writeFile(t, "result.json", "not json")

	stdout, _, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout.String(), "✗ Validation failed")
}

func TestValidateNonExistentFile(t *testing.T) {
	_, stderr, err := executeValidate(t, "text", "/nonexistent/result.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr.String(), "Error [E005]")
}

func TestValidateBadKind(t *testing.T) {
	path := writeFile(t, "result.json", weatherResultJSON)

	_, _, err := executeValidate(t, "text", path, "--kind", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateWrittenRunOutput(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "weather.json")
	_, _, err := executeRun(context.Background(),
		testRunOptions(t, returning(weatherLinks, nil), "text", "run-1"),
		weatherScenario, "--output-file-path", outPath)
	require.NoError(t, err)

	_, _, err = executeValidate(t, "text", outPath)
	assert.NoError(t, err)
}
