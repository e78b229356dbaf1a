package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/challengebox/errkind"
)

type commandResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// MockCommandRunner implements CommandRunner for testing. Results are keyed
// by engine subcommand ("version", "run", "kill", "rm", "ps").
type MockCommandRunner struct {
	mu       sync.Mutex
	calls    [][]string
	results  map[string]commandResult
	blockRun bool
}

func newMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{results: map[string]commandResult{}}
}

func (m *MockCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), args...))
	result := m.results[args[1]]
	block := m.blockRun && args[1] == "run"
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "partial", "", -1, nil
	}
	return result.stdout, result.stderr, result.exitCode, result.err
}

func (m *MockCommandRunner) subcommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []string
	for _, call := range m.calls {
		subs = append(subs, call[1])
	}
	return subs
}

func (m *MockCommandRunner) call(sub string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.calls {
		if call[1] == sub {
			return call
		}
	}
	return nil
}

func testRequest(t *testing.T) ExecuteRequest {
	return ExecuteRequest{
		Image:   "challengebox/python:3.12",
		Workdir: t.TempDir(),
		Command: []string{"python3", ".challenge/driver.py", "input.json"},
		Env:     map[string]string{"PYTHONDONTWRITEBYTECODE": "1"},
		Limits:  Limits{Timeout: 2 * time.Second, MemoryMB: 256},
	}
}

func testConfig() *Config {
	return &Config{MemoryMB: 512, PidsLimit: 64, TimeBinary: "/usr/bin/time"}
}

func TestDockerExecutorConstructors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("DefaultConstructor", func(t *testing.T) {
		executor := NewDockerExecutor(logger, testConfig())
		require.NotNil(t, executor)
		assert.Equal(t, "docker", executor.binary)
		assert.IsType(t, &RealCommandRunner{}, executor.cmdRunner)
	})

	t.Run("WithCommandRunner", func(t *testing.T) {
		runner := newMockCommandRunner()
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))
		assert.Equal(t, runner, executor.cmdRunner)
	})

	t.Run("PodmanKeepsUserNamespace", func(t *testing.T) {
		executor := NewPodmanExecutor(logger, testConfig())
		assert.Equal(t, "podman", executor.binary)
		assert.Contains(t, executor.runFlags, "--userns=keep-id")
	})
}

func TestContainerExecutorExecute(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Success", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["run"] = commandResult{
			stdout: "__CHALLENGE_RESULT__ 5\n",
			stderr: "warning\n__CHALLENGE_RUSAGE__ 0.25 10240\n",
		}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		req := testRequest(t)
		result, err := executor.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "__CHALLENGE_RESULT__ 5\n", result.Stdout)
		assert.Equal(t, "warning\n", result.Stderr)
		assert.Equal(t, 250*time.Millisecond, result.Duration)
		assert.Equal(t, int64(10240), result.PeakMemoryKB)
		assert.True(t, result.Measured)
		assert.False(t, result.TimedOut)

		run := strings.Join(runner.call("run"), " ")
		assert.Contains(t, run, "--name "+ContainerPrefix)
		assert.Contains(t, run, "--label "+ManagedLabel+"=true")
		assert.Contains(t, run, req.Workdir+":"+MountPoint)
		assert.Contains(t, run, "--memory 256m")
		assert.Contains(t, run, "--pids-limit 64")
		assert.Contains(t, run, "--network none")
		assert.Contains(t, run, "-e PYTHONDONTWRITEBYTECODE=1")
		assert.Contains(t, run, "challengebox/python:3.12 /usr/bin/time -f "+rusageFormat+" python3 .challenge/driver.py input.json")

		assert.Equal(t, []string{"version", "run", "rm"}, runner.subcommands())
	})

	t.Run("NonZeroExitIsNotAnError", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["run"] = commandResult{
			stderr:   "Traceback\nCommand exited with non-zero status 1\n__CHALLENGE_RUSAGE__ 0.10 9000\n",
			exitCode: 1,
		}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		result, err := executor.Execute(context.Background(), testRequest(t))
		require.NoError(t, err)
		assert.Equal(t, 1, result.ExitCode)
		assert.Equal(t, "Traceback\n", result.Stderr)
		assert.ErrorIs(t, result.Err(), errkind.ErrRuntime)
		assert.Contains(t, runner.subcommands(), "rm")
	})

	t.Run("TimeoutKillsAndRemoves", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.blockRun = true
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		req := testRequest(t)
		req.Limits.Timeout = 50 * time.Millisecond
		result, err := executor.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.TimedOut)
		assert.Equal(t, -1, result.ExitCode)
		assert.ErrorIs(t, result.Err(), errkind.ErrTimeout)
		assert.Equal(t, []string{"version", "run", "kill", "rm"}, runner.subcommands())

		name := runner.call("run")[3]
		assert.Equal(t, name, runner.call("kill")[2])
		assert.Equal(t, name, runner.call("rm")[3])
	})

	t.Run("EngineMissing", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["version"] = commandResult{err: errors.New(`exec: "docker": executable file not found in $PATH`)}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		_, err := executor.Execute(context.Background(), testRequest(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, errkind.ErrSandboxUnavailable)
		assert.NotContains(t, runner.subcommands(), "run")
	})

	t.Run("DaemonUnreachable", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["version"] = commandResult{stderr: "Cannot connect to the Docker daemon", exitCode: 1}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		_, err := executor.Execute(context.Background(), testRequest(t))
		assert.ErrorIs(t, err, errkind.ErrSandboxUnavailable)
	})

	t.Run("EngineFailureStillRemoves", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["run"] = commandResult{stderr: "Unable to find image", exitCode: exitEngineFailure}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		_, err := executor.Execute(context.Background(), testRequest(t))
		assert.ErrorIs(t, err, errkind.ErrSandboxUnavailable)
		assert.Equal(t, []string{"version", "run", "rm"}, runner.subcommands())
	})

	t.Run("PingIsCachedAfterSuccess", func(t *testing.T) {
		runner := newMockCommandRunner()
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		for range 3 {
			_, err := executor.Execute(context.Background(), testRequest(t))
			require.NoError(t, err)
		}
		versions := 0
		for _, sub := range runner.subcommands() {
			if sub == "version" {
				versions++
			}
		}
		assert.Equal(t, 1, versions)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(newMockCommandRunner()))
		req := testRequest(t)
		req.Command = nil
		_, err := executor.Execute(context.Background(), req)
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("NetworkEnabled", func(t *testing.T) {
		runner := newMockCommandRunner()
		cfg := testConfig()
		cfg.NetworkEnabled = true
		executor := NewDockerExecutor(logger, cfg, WithCommandRunner(runner))

		_, err := executor.Execute(context.Background(), testRequest(t))
		require.NoError(t, err)
		assert.Contains(t, strings.Join(runner.call("run"), " "), "--network bridge")
	})

	t.Run("WithoutTimeBinary", func(t *testing.T) {
		runner := newMockCommandRunner()
		cfg := testConfig()
		cfg.TimeBinary = ""
		executor := NewDockerExecutor(logger, cfg, WithCommandRunner(runner))

		result, err := executor.Execute(context.Background(), testRequest(t))
		require.NoError(t, err)
		assert.False(t, result.Measured)
		assert.NotContains(t, strings.Join(runner.call("run"), " "), "/usr/bin/time")
	})
}

func TestContainerExecutorReap(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("RemovesManagedContainers", func(t *testing.T) {
		runner := newMockCommandRunner()
		runner.results["ps"] = commandResult{stdout: "abc123\ndef456\n"}
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		removed, err := executor.Reap(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.Equal(t, []string{"docker", "rm", "-f", "abc123", "def456"}, runner.call("rm"))
		assert.Contains(t, runner.call("ps"), "label="+ManagedLabel+"=true")
	})

	t.Run("NothingToRemove", func(t *testing.T) {
		runner := newMockCommandRunner()
		executor := NewDockerExecutor(logger, testConfig(), WithCommandRunner(runner))

		removed, err := executor.Reap(context.Background())
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.Equal(t, []string{"ps"}, runner.subcommands())
	})
}
