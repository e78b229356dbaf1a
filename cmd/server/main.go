package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/mcpserver"
)

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.New,

			// Engine as seen by the MCP tools
			func(e *engine.Engine) mcpserver.Engine { return e },

			// MCP Server
			mcpserver.New,
		),

		// Logger, sandbox executor, plugins, history and metrics
		engine.Module,

		// Start the appropriate transport based on config
		fx.Invoke(serve),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func serve(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, eng *engine.Engine) {
	run := server.ServeStdio
	if cfg.Server.Transport == "http" {
		run = server.ServeHTTP
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := run(); err != nil {
					log.Error("MCP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				// stdio returns once the client closes the stream
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if _, err := eng.Shutdown(ctx); err != nil {
				log.Warn("failed to remove leftover sandboxes", zap.Error(err))
			}
			return server.Shutdown(ctx)
		},
	})
}
