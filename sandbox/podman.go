package sandbox

import (
	"go.uber.org/zap"
)

// NewPodmanExecutor creates an executor backed by the podman CLI. Rootless
// podman maps the host user into the container with keep-id so the mounted
// workdir is writable.
func NewPodmanExecutor(logger *zap.Logger, config *Config, opts ...ContainerOption) *ContainerExecutor {
	flags := WithRunFlags("--userns=keep-id")
	return newContainerExecutor(logger, config, "podman", append([]ContainerOption{flags}, opts...)...)
}
