package sandbox

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/challengebox/errkind"
)

func TestContainerName(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		name := ContainerName()
		assert.True(t, strings.HasPrefix(name, ContainerPrefix))
		assert.False(t, seen[name], "duplicate container name %s", name)
		seen[name] = true
	}
}

func TestExecutionResultErr(t *testing.T) {
	assert.NoError(t, ExecutionResult{}.Err())
	assert.ErrorIs(t, ExecutionResult{ExitCode: 2}.Err(), errkind.ErrRuntime)
	assert.ErrorIs(t, ExecutionResult{TimedOut: true, ExitCode: -1}.Err(), errkind.ErrTimeout)
}

func TestWrapCommand(t *testing.T) {
	cmd := []string{"node", "driver.js"}
	assert.Equal(t, cmd, wrapCommand("", cmd))
	assert.Equal(t, []string{"/usr/bin/time", "-f", rusageFormat, "node", "driver.js"}, wrapCommand("/usr/bin/time", cmd))
}

func TestExtractRusage(t *testing.T) {
	t.Run("Parsed", func(t *testing.T) {
		stderr, usage := extractRusage("line one\n__CHALLENGE_RUSAGE__ 1.50 2048\n")
		assert.Equal(t, "line one\n", stderr)
		assert.True(t, usage.ok)
		assert.Equal(t, 1500*time.Millisecond, usage.elapsed)
		assert.Equal(t, int64(2048), usage.peakKB)
	})

	t.Run("Missing", func(t *testing.T) {
		stderr, usage := extractRusage("plain stderr")
		assert.Equal(t, "plain stderr", stderr)
		assert.False(t, usage.ok)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, usage := extractRusage("__CHALLENGE_RUSAGE__ abc 12\n")
		assert.False(t, usage.ok)
	})

	t.Run("ZeroElapsedFallsBackToWall", func(t *testing.T) {
		_, usage := extractRusage("__CHALLENGE_RUSAGE__ 0.00 1000\n")
		var res ExecutionResult
		usage.apply(&res, 40*time.Millisecond)
		assert.Equal(t, 40*time.Millisecond, res.Duration)
		assert.Equal(t, int64(1000), res.PeakMemoryKB)
		assert.True(t, res.Measured)
	})
}

func TestExecuteRequestValidate(t *testing.T) {
	valid := ExecuteRequest{Workdir: "/tmp", Command: []string{"true"}, Limits: Limits{Timeout: time.Second}}
	require.NoError(t, valid.validate())

	noWorkdir := valid
	noWorkdir.Workdir = ""
	assert.ErrorIs(t, noWorkdir.validate(), errkind.ErrConfig)

	noTimeout := valid
	noTimeout.Limits.Timeout = 0
	assert.ErrorIs(t, noTimeout.validate(), errkind.ErrConfig)
}

func TestRealCommandRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	runner := RealCommandRunner{}

	t.Run("CapturesOutputAndExitCode", func(t *testing.T) {
		stdout, stderr, exitCode, err := runner.RunCommand(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
		require.NoError(t, err)
		assert.Equal(t, "out\n", stdout)
		assert.Equal(t, "err\n", stderr)
		assert.Equal(t, 3, exitCode)
	})

	t.Run("MissingBinary", func(t *testing.T) {
		_, _, _, err := runner.RunCommand(context.Background(), []string{"challengebox-no-such-binary"})
		assert.Error(t, err)
	})

	t.Run("NoCommand", func(t *testing.T) {
		_, _, _, err := runner.RunCommand(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestRealFileSystem(t *testing.T) {
	fs := RealFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	require.NoError(t, fs.MkdirAll(filepath.Dir(path), DirPermission))
	require.NoError(t, fs.WriteFile(path, []byte("data"), FilePermission))

	exists, err := fs.FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	require.NoError(t, fs.Remove(path))
	require.NoError(t, fs.Remove(path), "removing a missing file is not an error")

	exists, err = fs.FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}
