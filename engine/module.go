package engine

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/history"
	"github.com/isdmx/challengebox/logger"
	"github.com/isdmx/challengebox/metrics"
	"github.com/isdmx/challengebox/plugin"
	"github.com/isdmx/challengebox/sandbox"
)

// Module provides the Engine and everything it depends on except the
// *config.Config, which the binary supplies.
var Module = fx.Options(
	fx.Provide(
		logger.NewFromConfig,
		prometheus.NewRegistry,
		metrics.New,
		newExecutor,
		newRegistry,
		newHistory,
		newEngine,
	),
)

func newExecutor(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (sandbox.Executor, error) {
	exec, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := exec.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return closer.Close()
			},
		})
	}
	return metrics.Instrument(exec, m), nil
}

func newRegistry(cfg *config.Config, log *zap.Logger, exec sandbox.Executor) (*plugin.Registry, error) {
	return plugin.NewBuiltinRegistry(exec, cfg, log)
}

// newHistory opens the history store, or returns nil when history is disabled.
func newHistory(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newEngine(cfg *config.Config, log *zap.Logger, registry *plugin.Registry, exec sandbox.Executor, store *history.Store, m *metrics.Metrics) *Engine {
	return New(cfg, log, registry, exec, WithHistory(store), WithMetrics(m))
}
