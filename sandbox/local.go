package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
)

// LocalExecutor implements Executor by running commands as host processes
// in the workdir. It provides no isolation and is meant for development only.
// Images and memory limits are ignored.
type LocalExecutor struct {
	logger *zap.Logger
	config *Config
}

// NewLocalExecutor creates a new LocalExecutor
func NewLocalExecutor(logger *zap.Logger, config *Config) *LocalExecutor {
	return &LocalExecutor{
		logger: logger.With(zap.String("backend", "local")),
		config: config,
	}
}

// Execute runs req.Command directly on the host.
func (l *LocalExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error) {
	if err := req.validate(); err != nil {
		return ExecutionResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Limits.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Command[0], req.Command[1:]...) //nolint:gosec // Command comes from a language plugin template
	cmd.Dir = req.Workdir
	cmd.Env = append(os.Environ(), req.envList()...)
	cmd.WaitDelay = 2 * time.Second
	killProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	if ctx.Err() != nil {
		return ExecutionResult{}, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}

	result := ExecutionResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: wall,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		l.logger.Info("process exceeded time limit", zap.Strings("command", req.Command))
		result.ExitCode = -1
		result.TimedOut = true
		return result, nil
	}

	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return ExecutionResult{}, errkind.Unavailablef("local run %s: %v", req.Command[0], err)
		}
		result.ExitCode = exitError.ExitCode()
	}

	if peak, ok := peakMemoryKB(cmd.ProcessState); ok {
		result.PeakMemoryKB = peak
		result.Measured = true
	}

	return result, nil
}
