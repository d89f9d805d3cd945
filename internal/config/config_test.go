package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pcmcirun/internal/discovery"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcmcirun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, discovery.DefaultParams(), cfg.Discovery.Params())
	assert.Equal(t, discovery.ParCorr, cfg.Discovery.Test())
	assert.Zero(t, cfg.Discovery.Timeout)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
discovery:
  tau_max: 12
  alpha: 0.01
  cond_ind_test: gpdc
  linalg_error_throw: true
  timeout: 90s
  engine: /opt/bridge
  engine_args: ["--quiet"]
logging:
  level: debug
  json: true
ledger:
  path: runs.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Discovery.TauMin)
	assert.Equal(t, 12, cfg.Discovery.TauMax)
	assert.Equal(t, 0.01, cfg.Discovery.Alpha)
	assert.Equal(t, discovery.GPDC, cfg.Discovery.Test())
	assert.True(t, cfg.Discovery.LinAlgErrorThrow)
	assert.Equal(t, 90*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, "/opt/bridge", cfg.Discovery.Engine)
	assert.Equal(t, []string{"--quiet"}, cfg.Discovery.EngineArgs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "runs.db", cfg.Ledger.Path)
	assert.Empty(t, cfg.Metrics.File)
}

func TestLoadFileFromEnv(t *testing.T) {
	path := writeConfig(t, "discovery:\n  tau_max: 7\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Discovery.TauMax)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "discovery:\n  tau_max: 7\n  alpha: 0.2\n")
	t.Setenv("PCMCIRUN_DISCOVERY_TAU_MAX", "9")
	t.Setenv("PCMCIRUN_DISCOVERY_COND_IND_TEST", "gpdc")
	t.Setenv("PCMCIRUN_DISCOVERY_TIMEOUT", "2m")
	t.Setenv("PCMCIRUN_LEDGER_PATH", "/tmp/ledger.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Discovery.TauMax)
	assert.Equal(t, 0.2, cfg.Discovery.Alpha)
	assert.Equal(t, "gpdc", cfg.Discovery.CondIndTest)
	assert.Equal(t, 2*time.Minute, cfg.Discovery.Timeout)
	assert.Equal(t, "/tmp/ledger.db", cfg.Ledger.Path)
}

func TestLoadIgnoresUnprefixedEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("TIMEOUT", "5s")
	t.Setenv("ENGINE", "elsewhere")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Discovery.Timeout)
	assert.Equal(t, discovery.DefaultEngineCommand, cfg.Discovery.Engine)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "discovery:\n  tau_maximum: 3\n",
			wantErr: "field tau_maximum not found",
		},
		{
			name:    "tau_min below one",
			content: "discovery:\n  tau_min: 0\n",
			wantErr: "discovery.tau_min must be at least 1",
		},
		{
			name:    "tau_max below tau_min",
			content: "discovery:\n  tau_min: 5\n  tau_max: 2\n",
			wantErr: "discovery.tau_max must not be below tau_min",
		},
		{
			name:    "alpha out of range",
			content: "discovery:\n  alpha: 1.5\n",
			wantErr: "discovery.alpha must be less than 1",
		},
		{
			name:    "unknown test",
			content: "discovery:\n  cond_ind_test: cmiknn\n",
			wantErr: "discovery.cond_ind_test must be one of: parcorr, gpdc",
		},
		{
			name:    "unknown log level",
			content: "logging:\n  level: loud\n",
			wantErr: "logging.level must be one of",
		},
		{
			name:    "negative timeout",
			content: "discovery:\n  timeout: -1s\n",
			wantErr: "discovery.timeout must be at least 0",
		},
		{
			name:    "empty engine",
			content: "discovery:\n  engine: \"\"\n",
			wantErr: "discovery.engine is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Discovery.TauMin = 0
	cfg.Discovery.Alpha = 0

	err := cfg.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
}
