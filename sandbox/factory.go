package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
)

// NewExecutor creates an appropriate sandbox executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	executorConfig := &Config{
		MemoryMB:       cfg.Sandbox.MemoryMB,
		PidsLimit:      cfg.Sandbox.PidsLimit,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
		TimeBinary:     cfg.Sandbox.TimeBinary,
	}

	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerExecutor(logger, executorConfig), nil
	case "podman":
		return NewPodmanExecutor(logger, executorConfig), nil
	case "docker-api":
		return NewAPIExecutor(logger, executorConfig)
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, errkind.Configf("local backend requires sandbox.enable_local_backend")
		}
		return NewLocalExecutor(logger, executorConfig), nil
	default:
		return nil, errkind.Configf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
