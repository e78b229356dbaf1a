// Package plugin defines how a solution is built and run in each supported
// language, and the registry that resolves language names to plugins.
//
// The set of languages is closed: Builtin lists every plugin and the
// Registry is built once from it. A plugin never runs user code itself; it
// renders its command templates and hands them to a sandbox.Executor.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
)

// Target identifies the solution to build and run.
type Target struct {
	// Workdir is the host directory holding the solution file.
	Workdir      string
	FunctionName string
}

// RunOptions overrides the plugin's default limits for one run.
type RunOptions struct {
	Timeout  time.Duration
	MemoryMB int
}

// BuildOutcome reports a successful build.
type BuildOutcome struct {
	// Skipped is true for languages without a build step.
	Skipped bool
	Result  sandbox.ExecutionResult
}

// LanguagePlugin builds and runs solutions in one language.
//
// Run returns a non-zero exit status as a normal result. Errors are
// reserved for configuration problems and sandbox failures.
type LanguagePlugin interface {
	Name() string
	Aliases() []string
	Image() string
	SolutionFile() string
	Template(functionName string) (string, error)
	Build(ctx context.Context, target Target) (BuildOutcome, error)
	Run(ctx context.Context, target Target, args []json.RawMessage, opts RunOptions) (sandbox.ExecutionResult, error)
}

// BuildError reports a failed or timed out build step. It matches
// errkind.ErrBuild.
type BuildError struct {
	Language string
	Result   sandbox.ExecutionResult
}

func (e *BuildError) Error() string {
	if e.Result.TimedOut {
		return fmt.Sprintf("%s build timed out after %s", e.Language, e.Result.Duration.Round(time.Millisecond))
	}
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("%s build failed (exit status %d): %s", e.Language, e.Result.ExitCode, firstLines(msg, 10))
}

func (*BuildError) Unwrap() error {
	return errkind.ErrBuild
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}
