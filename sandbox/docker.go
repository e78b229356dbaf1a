package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
)

// exitEngineFailure is the status docker and podman return when the
// container could not be created or started.
const exitEngineFailure = 125

// cleanupTimeout bounds kill and remove calls issued after the request
// context is gone.
const cleanupTimeout = 15 * time.Second

// Config holds the limits and measurement settings shared by all backends
type Config struct {
	MemoryMB       int
	PidsLimit      int
	NetworkEnabled bool
	TimeBinary     string
}

// ContainerExecutor implements Executor by driving a container engine CLI
// (docker or podman) through a CommandRunner.
type ContainerExecutor struct {
	logger    *zap.Logger
	config    *Config
	binary    string
	runFlags  []string
	cmdRunner CommandRunner

	mu    sync.Mutex
	ready bool
}

// ContainerOption defines a functional option for ContainerExecutor
type ContainerOption func(*ContainerExecutor)

// WithCommandRunner sets the CommandRunner for ContainerExecutor
func WithCommandRunner(cmdRunner CommandRunner) ContainerOption {
	return func(e *ContainerExecutor) {
		e.cmdRunner = cmdRunner
	}
}

// WithRunFlags appends engine-specific flags to every run command
func WithRunFlags(flags ...string) ContainerOption {
	return func(e *ContainerExecutor) {
		e.runFlags = append(e.runFlags, flags...)
	}
}

// NewDockerExecutor creates an executor backed by the docker CLI. Containers
// run as the invoking host user so files written to the mounted workdir stay
// owned by them.
func NewDockerExecutor(logger *zap.Logger, config *Config, opts ...ContainerOption) *ContainerExecutor {
	var flags []string
	if uid := os.Getuid(); uid >= 0 {
		flags = append(flags, "--user", fmt.Sprintf("%d:%d", uid, os.Getgid()))
	}
	return newContainerExecutor(logger, config, "docker", append([]ContainerOption{WithRunFlags(flags...)}, opts...)...)
}

func newContainerExecutor(logger *zap.Logger, config *Config, binary string, opts ...ContainerOption) *ContainerExecutor {
	executor := &ContainerExecutor{
		logger:    logger.With(zap.String("backend", binary)),
		config:    config,
		binary:    binary,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs req in a new container and removes the container before returning.
func (e *ContainerExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error) {
	if err := req.validate(); err != nil {
		return ExecutionResult{}, err
	}
	if err := e.ping(ctx); err != nil {
		return ExecutionResult{}, err
	}

	workdir, err := filepath.Abs(req.Workdir)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to resolve workdir: %w", err)
	}

	name := ContainerName()
	log := e.logger.With(zap.String("container", name), zap.String("image", req.Image))
	defer e.remove(log, name)

	runCtx, cancel := context.WithTimeout(ctx, req.Limits.Timeout)
	defer cancel()

	args := e.runArgs(name, workdir, req)
	log.Debug("starting container", zap.Strings("args", args))

	start := time.Now()
	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(runCtx, args)
	wall := time.Since(start)

	if ctx.Err() != nil {
		e.kill(log, name)
		return ExecutionResult{}, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Info("container exceeded time limit", zap.Duration("timeout", req.Limits.Timeout))
		e.kill(log, name)
		stderr, _ = extractRusage(stderr)
		return ExecutionResult{
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: -1,
			Duration: wall,
			TimedOut: true,
		}, nil
	}

	if err != nil {
		return ExecutionResult{}, errkind.Unavailablef("%s run: %v", e.binary, err)
	}

	if exitCode == exitEngineFailure {
		return ExecutionResult{}, errkind.Unavailablef("%s could not start container: %s", e.binary, strings.TrimSpace(stderr))
	}

	stderr, usage := extractRusage(stderr)
	result := ExecutionResult{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
	usage.apply(&result, wall)

	log.Debug("container finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int64("peak_memory_kb", result.PeakMemoryKB))

	return result, nil
}

func (e *ContainerExecutor) runArgs(name, workdir string, req ExecuteRequest) []string {
	memoryMB := req.Limits.MemoryMB
	if memoryMB <= 0 {
		memoryMB = e.config.MemoryMB
	}

	args := []string{
		e.binary, "run",
		"--name", name,
		"--rm",
		"--label", ManagedLabel + "=true",
		"-v", fmt.Sprintf("%s:%s", workdir, MountPoint),
		"--workdir", MountPoint,
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
	}

	if memoryMB > 0 {
		args = append(args,
			"--memory", fmt.Sprintf("%dm", memoryMB),
			"--memory-swap", fmt.Sprintf("%dm", memoryMB))
	}
	if e.config.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", e.config.PidsLimit))
	}
	if e.config.NetworkEnabled {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}

	args = append(args, e.runFlags...)

	env := req.envList()
	sort.Strings(env)
	for _, kv := range env {
		args = append(args, "-e", kv)
	}

	args = append(args, req.Image)
	return append(args, wrapCommand(e.config.TimeBinary, req.Command)...)
}

// ping checks once that the engine answers. Failures are not cached so a
// daemon started later is picked up.
func (e *ContainerExecutor) ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	_, stderr, exitCode, err := e.cmdRunner.RunCommand(pingCtx, []string{e.binary, "version"})
	if err != nil {
		return errkind.Unavailablef("%s is not installed or not runnable: %v", e.binary, err)
	}
	if exitCode != 0 {
		return errkind.Unavailablef("%s daemon is not reachable: %s", e.binary, strings.TrimSpace(stderr))
	}

	e.ready = true
	return nil
}

func (e *ContainerExecutor) kill(log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	_, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "kill", name})
	if err != nil || (exitCode != 0 && !isNoSuchContainer(stderr)) {
		log.Warn("failed to kill container", zap.Int("exit_code", exitCode), zap.String("stderr", stderr), zap.Error(err))
	}
}

// remove is the teardown safety net behind --rm.
func (e *ContainerExecutor) remove(log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	_, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "rm", "-f", name})
	if err != nil || (exitCode != 0 && !isNoSuchContainer(stderr)) {
		log.Error("failed to remove container", zap.Int("exit_code", exitCode), zap.String("stderr", stderr), zap.Error(err))
	}
}

// Reap removes every managed container left behind by earlier runs.
func (e *ContainerExecutor) Reap(ctx context.Context) (int, error) {
	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(ctx, []string{
		e.binary, "ps", "-aq", "--filter", "label=" + ManagedLabel + "=true",
	})
	if err != nil {
		return 0, errkind.Unavailablef("%s ps: %v", e.binary, err)
	}
	if exitCode != 0 {
		return 0, errkind.Unavailablef("%s ps: %s", e.binary, strings.TrimSpace(stderr))
	}

	ids := strings.Fields(stdout)
	if len(ids) == 0 {
		return 0, nil
	}

	_, stderr, exitCode, err = e.cmdRunner.RunCommand(ctx, append([]string{e.binary, "rm", "-f"}, ids...))
	if err != nil {
		return 0, errkind.Unavailablef("%s rm: %v", e.binary, err)
	}
	if exitCode != 0 {
		return 0, fmt.Errorf("failed to remove containers: %s", strings.TrimSpace(stderr))
	}

	e.logger.Info("removed leftover containers", zap.Int("count", len(ids)))
	return len(ids), nil
}

func isNoSuchContainer(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") || strings.Contains(s, "no container with name")
}
