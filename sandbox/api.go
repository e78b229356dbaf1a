package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
)

// dockerClient is the subset of the Engine API client the executor uses.
type dockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	Close() error
}

// APIExecutor implements Executor on the Docker Engine API.
type APIExecutor struct {
	logger *zap.Logger
	config *Config
	cli    dockerClient
}

// NewAPIExecutor connects to the daemon described by the DOCKER_* environment.
func NewAPIExecutor(logger *zap.Logger, config *Config) (*APIExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errkind.Unavailablef("docker client: %v", err)
	}
	return newAPIExecutor(logger, config, cli), nil
}

func newAPIExecutor(logger *zap.Logger, config *Config, cli dockerClient) *APIExecutor {
	return &APIExecutor{
		logger: logger.With(zap.String("backend", "docker-api")),
		config: config,
		cli:    cli,
	}
}

// Execute creates, starts and waits for a container, then force-removes it.
func (e *APIExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecutionResult, error) {
	if err := req.validate(); err != nil {
		return ExecutionResult{}, err
	}

	workdir, err := filepath.Abs(req.Workdir)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to resolve workdir: %w", err)
	}

	if _, err := e.cli.Ping(ctx); err != nil {
		return ExecutionResult{}, errkind.Unavailablef("docker daemon: %v", err)
	}

	name := ContainerName()
	log := e.logger.With(zap.String("container", name), zap.String("image", req.Image))

	resp, err := e.cli.ContainerCreate(ctx, e.containerConfig(req), e.hostConfig(workdir, req), nil, nil, name)
	if err != nil {
		return ExecutionResult{}, e.mapError("create container", err)
	}
	defer e.remove(log, resp.ID)

	start := time.Now()
	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return ExecutionResult{}, e.mapError("start container", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, req.Limits.Timeout)
	status, waitErr := e.waitForExit(waitCtx, resp.ID)
	cancel()
	wall := time.Since(start)

	if waitErr != nil {
		if ctx.Err() != nil {
			e.kill(log, resp.ID)
			return ExecutionResult{}, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		if errors.Is(waitErr, context.DeadlineExceeded) {
			log.Info("container exceeded time limit", zap.Duration("timeout", req.Limits.Timeout))
			e.kill(log, resp.ID)
			stdout, stderr, _ := e.fetchLogs(resp.ID)
			stderr, _ = extractRusage(stderr)
			return ExecutionResult{
				Stdout:   stdout,
				Stderr:   stderr,
				ExitCode: -1,
				Duration: wall,
				TimedOut: true,
			}, nil
		}
		return ExecutionResult{}, e.mapError("wait for container", waitErr)
	}

	stdout, stderr, err := e.fetchLogs(resp.ID)
	if err != nil {
		return ExecutionResult{}, e.mapError("fetch logs", err)
	}

	stderr, usage := extractRusage(stderr)
	result := ExecutionResult{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: int(status.StatusCode),
	}
	usage.apply(&result, wall)

	inspect, err := e.cli.ContainerInspect(context.Background(), resp.ID)
	if err == nil && inspect.ContainerJSONBase != nil && inspect.State != nil {
		result.OOMKilled = inspect.State.OOMKilled
	}

	return result, nil
}

func (e *APIExecutor) containerConfig(req ExecuteRequest) *container.Config {
	cfg := &container.Config{
		Image:           req.Image,
		Cmd:             wrapCommand(e.config.TimeBinary, req.Command),
		Env:             req.envList(),
		WorkingDir:      MountPoint,
		Labels:          map[string]string{ManagedLabel: "true"},
		NetworkDisabled: !e.config.NetworkEnabled,
		AttachStdout:    true,
		AttachStderr:    true,
	}
	if uid := os.Getuid(); uid >= 0 {
		cfg.User = fmt.Sprintf("%d:%d", uid, os.Getgid())
	}
	return cfg
}

func (e *APIExecutor) hostConfig(workdir string, req ExecuteRequest) *container.HostConfig {
	memoryMB := req.Limits.MemoryMB
	if memoryMB <= 0 {
		memoryMB = e.config.MemoryMB
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workdir,
			Target: MountPoint,
		}},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}
	if !e.config.NetworkEnabled {
		hostConfig.NetworkMode = "none"
	}
	if memoryMB > 0 {
		hostConfig.Resources.Memory = int64(memoryMB) << 20
		hostConfig.Resources.MemorySwap = int64(memoryMB) << 20
	}
	if e.config.PidsLimit > 0 {
		pids := int64(e.config.PidsLimit)
		hostConfig.Resources.PidsLimit = &pids
	}
	return hostConfig
}

func (e *APIExecutor) waitForExit(ctx context.Context, containerID string) (container.WaitResponse, error) {
	statusCh, errCh := e.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return container.WaitResponse{}, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return status, nil
	case err := <-errCh:
		return container.WaitResponse{}, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return container.WaitResponse{}, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

func (e *APIExecutor) fetchLogs(containerID string) (stdout, stderr string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	logs, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

func (e *APIExecutor) kill(log *zap.Logger, containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := e.cli.ContainerKill(ctx, containerID, "KILL"); err != nil && !client.IsErrNotFound(err) {
		log.Warn("failed to kill container", zap.Error(err))
	}
}

func (e *APIExecutor) remove(log *zap.Logger, containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		log.Error("failed to remove container", zap.Error(err))
	}
}

func (*APIExecutor) mapError(op string, err error) error {
	if client.IsErrConnectionFailed(err) || client.IsErrNotFound(err) {
		return errkind.Unavailablef("%s: %v", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Reap removes every managed container left behind by earlier runs.
func (e *APIExecutor) Reap(ctx context.Context) (int, error) {
	containers, err := e.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return 0, e.mapError("list containers", err)
	}

	var errs []error
	removed := 0
	for _, c := range containers {
		if err := e.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", c.ID, err))
			continue
		}
		removed++
	}

	if removed > 0 {
		e.logger.Info("removed leftover containers", zap.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

// Close releases the API client.
func (e *APIExecutor) Close() error {
	return e.cli.Close()
}
