//go:build unix

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pcmcirun/internal/discovery"
)

func TestRunTimeoutKillsEngineProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "engine.pid")
	engine := discovery.NewExecDiscoverer("sh", "-c", "echo $$ > "+pidFile+"; exec sleep 30")
	r := newTestRunner(t, engine)

	opts := DefaultOptions()
	opts.Timeout = 500 * time.Millisecond

	res, err := r.Run(context.Background(), threeVars(t), opts)
	require.NoError(t, err)
	assert.Equal(t, ReasonTimeout, res.Reason)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	// The engine must already be killed and reaped.
	err = syscall.Kill(pid, 0)
	assert.True(t, errors.Is(err, syscall.ESRCH), "engine pid %d still exists: %v", pid, err)

	stats := engine.Stats()
	assert.Equal(t, pid, stats.PID)
	assert.True(t, stats.Killed)
}
