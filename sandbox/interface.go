package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/isdmx/challengebox/errkind"
)

// Container naming and mount conventions shared by every backend.
const (
	ContainerPrefix = "challengebox-"
	ManagedLabel    = "challengebox.managed"
	MountPoint      = "/workspace"
)

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// Limits bounds a single invocation.
type Limits struct {
	Timeout  time.Duration
	MemoryMB int
}

// ExecuteRequest describes one command to run in a fresh environment. Workdir
// is a host directory mounted read-write at MountPoint; Command runs with
// MountPoint as its working directory.
type ExecuteRequest struct {
	Image   string
	Workdir string
	Command []string
	Env     map[string]string
	Limits  Limits
}

// ExecutionResult is the outcome of one invocation. A non-zero ExitCode is
// a normal result, not an error.
type ExecutionResult struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	Duration     time.Duration
	PeakMemoryKB int64
	TimedOut     bool
	OOMKilled    bool
	// Measured is true when Duration and PeakMemoryKB come from the
	// measurement utility rather than the host clock.
	Measured bool
}

// Err classifies the result: ErrTimeout, ErrRuntime or nil.
func (r ExecutionResult) Err() error {
	switch {
	case r.TimedOut:
		return fmt.Errorf("%w: exceeded time limit after %s", errkind.ErrTimeout, r.Duration.Round(time.Millisecond))
	case r.ExitCode != 0:
		return fmt.Errorf("%w: exit status %d", errkind.ErrRuntime, r.ExitCode)
	default:
		return nil
	}
}

// Executor runs commands inside isolated, resource-limited, disposable
// environments. Implementations are safe for concurrent use and tear down
// every environment they start before Execute returns.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error)
}

// Reaper is implemented by executors that can remove leftover environments,
// e.g. after the process was killed mid-run.
type Reaper interface {
	Reap(ctx context.Context) (int, error)
}

// ContainerName returns a collision-free name for a new environment.
func ContainerName() string {
	return ContainerPrefix + uuid.NewString()
}

func (r ExecuteRequest) validate() error {
	if r.Workdir == "" {
		return errkind.Configf("sandbox request without workdir")
	}
	if len(r.Command) == 0 {
		return errkind.Configf("sandbox request without command")
	}
	if r.Limits.Timeout <= 0 {
		return errkind.Configf("sandbox timeout must be positive, got %s", r.Limits.Timeout)
	}
	return nil
}

func (r ExecuteRequest) envList() []string {
	env := make([]string, 0, len(r.Env))
	for key, value := range r.Env {
		env = append(env, key+"="+value)
	}
	return env
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments. A process killed
// because ctx expired reports exit code -1 and a nil error.
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.WaitDelay = 2 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return "", "", 0, err
		}
		exitCode = exitError.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations on the
// mounted working directory.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	Remove(path string) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
