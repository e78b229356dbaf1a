package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/logger"
)

const stopTimeout = 15 * time.Second

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrConfig, err)
	}
	if debug {
		logger.Debug(cfg)
	}
	return cfg, nil
}

// withEngine builds the engine, runs fn and tears the engine down again.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var eng *engine.Engine
	fxLogger := fx.NopLogger
	if debug {
		fxLogger = fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		})
	}
	app := fx.New(
		fx.Supply(cfg),
		engine.Module,
		fx.Populate(&eng),
		fxLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", stopErr)
		}
	}()

	return fn(ctx, eng)
}

func selectorFrom(args []string, language string) engine.Selector {
	return engine.Selector{Platform: platform, Challenge: args[0], Language: language}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}
