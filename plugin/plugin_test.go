package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/sandbox"
	"github.com/isdmx/challengebox/sandbox/sandboxtest"
)

func writeSolution(t *testing.T, name, source string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(source), 0o644))
	return dir
}

// echoArgs answers every run with the JSON input file it was given.
func echoArgs(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
	for _, arg := range req.Command {
		if strings.HasPrefix(arg, StateDir+"/input-") {
			data, err := os.ReadFile(filepath.Join(req.Workdir, arg))
			if err != nil {
				return sandbox.ExecutionResult{}, err
			}
			return sandbox.ExecutionResult{Stdout: ResultMarker + " " + string(data) + "\n"}, nil
		}
	}
	return sandbox.ExecutionResult{}, nil
}

func TestInterpretedPlugin(t *testing.T) {
	exec := sandboxtest.New(echoArgs)
	p, err := NewInterpreted(PythonSpec(), exec, WithLogger(zaptest.NewLogger(t)), WithLimits(time.Minute, 3*time.Second, 128))
	require.NoError(t, err)

	dir := writeSolution(t, "solution.py", "def add(a, b):\n    return a + b\n")
	target := Target{Workdir: dir, FunctionName: "add"}

	t.Run("RunBeforeBuild", func(t *testing.T) {
		_, err := p.Run(context.Background(), target, nil, RunOptions{})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("BuildWritesDriver", func(t *testing.T) {
		outcome, err := p.Build(context.Background(), target)
		require.NoError(t, err)
		assert.True(t, outcome.Skipped)
		assert.FileExists(t, filepath.Join(dir, StateDir, "driver.py"))
		assert.Zero(t, exec.Started(), "interpreted build must not start a sandbox")
	})

	t.Run("RunPassesArgsAndLimits", func(t *testing.T) {
		args := []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")}
		res, err := p.Run(context.Background(), target, args, RunOptions{})
		require.NoError(t, err)

		out, err := ParseOutput(res.Stdout)
		require.NoError(t, err)
		assert.JSONEq(t, "[2,3]", string(out.Result))

		reqs := exec.Requests()
		require.NotEmpty(t, reqs)
		last := reqs[len(reqs)-1]
		assert.Equal(t, "challengebox/python:3.12", last.Image)
		assert.Equal(t, dir, last.Workdir)
		assert.Equal(t, "python3", last.Command[0])
		assert.Equal(t, StateDir+"/driver.py", last.Command[1])
		assert.Equal(t, "add", last.Command[3])
		assert.Equal(t, 3*time.Second, last.Limits.Timeout)
		assert.Equal(t, 128, last.Limits.MemoryMB)
		assert.Equal(t, "1", last.Env["PYTHONDONTWRITEBYTECODE"])

		entries, err := filepath.Glob(filepath.Join(dir, StateDir, "input-*.json"))
		require.NoError(t, err)
		assert.Empty(t, entries, "input files are removed after the run")
	})

	t.Run("RunOptionsOverride", func(t *testing.T) {
		_, err := p.Run(context.Background(), target, nil, RunOptions{Timeout: time.Second, MemoryMB: 64})
		require.NoError(t, err)
		reqs := exec.Requests()
		last := reqs[len(reqs)-1]
		assert.Equal(t, time.Second, last.Limits.Timeout)
		assert.Equal(t, 64, last.Limits.MemoryMB)
	})

	t.Run("NonZeroExitIsAResult", func(t *testing.T) {
		failing := sandboxtest.New(sandboxtest.Static(sandbox.ExecutionResult{ExitCode: 1, Stderr: "ZeroDivisionError"}))
		fp, err := NewInterpreted(PythonSpec(), failing)
		require.NoError(t, err)
		_, err = fp.Build(context.Background(), target)
		require.NoError(t, err)

		res, err := fp.Run(context.Background(), target, nil, RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
	})

	t.Run("MissingSolution", func(t *testing.T) {
		_, err := p.Build(context.Background(), Target{Workdir: t.TempDir(), FunctionName: "add"})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("MissingFunctionName", func(t *testing.T) {
		_, err := p.Build(context.Background(), Target{Workdir: dir})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})
}

func TestCompiledPlugin(t *testing.T) {
	dir := writeSolution(t, "solution.go", "package main\n\nfunc add(a, b int) int { return a + b }\n")
	target := Target{Workdir: dir, FunctionName: "add"}

	t.Run("BuildSuccess", func(t *testing.T) {
		exec := sandboxtest.New(func(_ context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
			if req.Command[0] == "go" {
				driver, err := os.ReadFile(filepath.Join(req.Workdir, "challenge_driver.go"))
				if err != nil {
					return sandbox.ExecutionResult{}, err
				}
				if !strings.Contains(string(driver), "reflect.ValueOf(add)") {
					return sandbox.ExecutionResult{ExitCode: 1, Stderr: "driver not rendered"}, nil
				}
				binary := filepath.Join(req.Workdir, StateDir, "solution.bin")
				if err := os.MkdirAll(filepath.Dir(binary), 0o755); err != nil {
					return sandbox.ExecutionResult{}, err
				}
				return sandbox.ExecutionResult{}, os.WriteFile(binary, nil, 0o755)
			}
			return sandbox.ExecutionResult{Stdout: ResultMarker + " 5\n"}, nil
		})
		p, err := NewCompiled(GoSpec(), exec, WithLimits(2*time.Minute, time.Second, 256))
		require.NoError(t, err)

		outcome, err := p.Build(context.Background(), target)
		require.NoError(t, err)
		assert.False(t, outcome.Skipped)
		assert.NoFileExists(t, filepath.Join(dir, "challenge_driver.go"), "driver is removed after the build")

		build := exec.Requests()[0]
		assert.Equal(t, []string{"go", "build", "-o", "./.challenge/solution.bin", "challenge_driver.go", "solution.go"}, build.Command)
		assert.Equal(t, 2*time.Minute, build.Limits.Timeout)
		assert.Equal(t, "/tmp/gocache", build.Env["GOCACHE"])

		res, err := p.Run(context.Background(), target, []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")}, RunOptions{})
		require.NoError(t, err)
		run := exec.Requests()[1]
		assert.Equal(t, "./.challenge/solution.bin", run.Command[0])
		out, err := ParseOutput(res.Stdout)
		require.NoError(t, err)
		assert.Equal(t, "5", string(out.Result))
	})

	t.Run("BuildFailure", func(t *testing.T) {
		exec := sandboxtest.New(sandboxtest.Static(sandbox.ExecutionResult{
			ExitCode: 1,
			Stderr:   "./solution.go:3:1: syntax error: unexpected }",
		}))
		p, err := NewCompiled(GoSpec(), exec)
		require.NoError(t, err)

		_, err = p.Build(context.Background(), Target{Workdir: writeSolution(t, "solution.go", "package main\nfunc add( {\n}"), FunctionName: "add"})
		require.Error(t, err)
		assert.ErrorIs(t, err, errkind.ErrBuild)
		var buildErr *BuildError
		require.ErrorAs(t, err, &buildErr)
		assert.Equal(t, "go", buildErr.Language)
		assert.Contains(t, err.Error(), "syntax error")
	})

	t.Run("BuildTimeout", func(t *testing.T) {
		exec := sandboxtest.New(sandboxtest.Hang())
		p, err := NewCompiled(GoSpec(), exec, WithLimits(20*time.Millisecond, time.Second, 0))
		require.NoError(t, err)

		_, err = p.Build(context.Background(), target)
		assert.ErrorIs(t, err, errkind.ErrBuild)
		assert.Contains(t, err.Error(), "timed out")
		assert.Zero(t, exec.Live())
	})

	t.Run("SandboxUnavailable", func(t *testing.T) {
		exec := sandboxtest.New(func(context.Context, sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
			return sandbox.ExecutionResult{}, errkind.Unavailablef("no daemon")
		})
		p, err := NewCompiled(GoSpec(), exec)
		require.NoError(t, err)

		_, err = p.Build(context.Background(), target)
		assert.ErrorIs(t, err, errkind.ErrSandboxUnavailable)
		assert.NotErrorIs(t, err, errkind.ErrBuild)
	})

	t.Run("RequiresBuildCommand", func(t *testing.T) {
		spec := GoSpec()
		spec.BuildCommand = ""
		_, err := NewCompiled(spec, sandboxtest.New(echoArgs))
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})
}

func TestTemplates(t *testing.T) {
	exec := sandboxtest.New(echoArgs)
	plugins, err := Builtin(exec, &config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, p := range plugins {
		t.Run(p.Name(), func(t *testing.T) {
			source, err := p.Template("twoSum")
			require.NoError(t, err)
			assert.Contains(t, source, "twoSum")
		})
	}
}

func TestBuiltinConfigOverrides(t *testing.T) {
	cfg := &config.Config{
		Languages: map[string]config.Language{
			"python": {Image: "python:3.13-slim", Env: map[string]string{"PYTHONHASHSEED": "0"}},
		},
	}
	plugins, err := Builtin(sandboxtest.New(echoArgs), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	python := plugins[0]
	assert.Equal(t, "python:3.13-slim", python.Image())
	assert.Equal(t, "0", python.(*Interpreted).spec.Env["PYTHONHASHSEED"])
	assert.Equal(t, "1", python.(*Interpreted).spec.Env["PYTHONDONTWRITEBYTECODE"])
	assert.Equal(t, "challengebox/node:20", plugins[1].Image())
}

func TestJavaScriptStackSizeOnCommandLine(t *testing.T) {
	exec := sandboxtest.New(echoArgs)
	p, err := NewInterpreted(JavaScriptSpec(), exec, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	target := Target{Workdir: writeSolution(t, "solution.js", "module.exports = { add: (a, b) => a + b };\n"), FunctionName: "add"}
	_, err = p.Build(context.Background(), target)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), target, []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")}, RunOptions{})
	require.NoError(t, err)

	requests := exec.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, []string{"node", "--stack-size=65500", StateDir + "/driver.js"}, requests[0].Command[:3])
	assert.Equal(t, "add", requests[0].Command[len(requests[0].Command)-1])
	assert.NotContains(t, requests[0].Env, "NODE_OPTIONS")
}
