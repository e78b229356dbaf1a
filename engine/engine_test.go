package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/challengebox/challenge"
	"github.com/isdmx/challengebox/complexity"
	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/harness"
	"github.com/isdmx/challengebox/history"
	"github.com/isdmx/challengebox/metrics"
	"github.com/isdmx/challengebox/plugin"
	"github.com/isdmx/challengebox/sandbox"
	"github.com/isdmx/challengebox/sandbox/sandboxtest"
)

// solver emulates every driver: two numbers are added, an array reports a
// function time linear in its length. Go builds succeed unless the
// solution contains "syntax error".
func solver(ctx context.Context, req sandbox.ExecuteRequest) (sandbox.ExecutionResult, error) {
	if req.Command[0] == "go" {
		src, err := os.ReadFile(filepath.Join(req.Workdir, "solution.go"))
		if err != nil {
			return sandbox.ExecutionResult{}, err
		}
		if strings.Contains(string(src), "syntax error") {
			return sandbox.ExecutionResult{ExitCode: 1, Stderr: "./solution.go:1: syntax error"}, nil
		}
		stateDir := filepath.Join(req.Workdir, plugin.StateDir)
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return sandbox.ExecutionResult{}, err
		}
		return sandbox.ExecutionResult{}, os.WriteFile(filepath.Join(stateDir, "solution.bin"), nil, 0o755)
	}

	var input string
	for _, arg := range req.Command {
		if strings.HasPrefix(arg, plugin.StateDir+"/input-") {
			input = arg
		}
	}
	data, err := os.ReadFile(filepath.Join(req.Workdir, input))
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return sandbox.ExecutionResult{}, err
	}

	var list []int
	if json.Unmarshal(args[0], &list) == nil {
		elapsed := strconv.Itoa(len(list) * 1000)
		return sandbox.ExecutionResult{Stdout: plugin.ElapsedMarker + " " + elapsed + "\n" + plugin.ResultMarker + " 0\n"}, nil
	}

	var a, b int
	_ = json.Unmarshal(args[0], &a)
	_ = json.Unmarshal(args[1], &b)
	if a < 0 {
		<-ctx.Done()
		return sandbox.ExecutionResult{}, ctx.Err()
	}
	return sandbox.ExecutionResult{
		Stdout:       plugin.ResultMarker + " " + strconv.Itoa(a+b) + "\n",
		Duration:     5 * time.Millisecond,
		PeakMemoryKB: 4096,
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ProblemsDir:     t.TempDir(),
		DefaultPlatform: "leetcode",
		Platforms:       map[string]config.Platform{"leetcode": {Language: "python"}},
		Sandbox: config.SandboxConfig{
			Backend:         "docker",
			TimeoutSec:      1,
			BuildTimeoutSec: 10,
			MemoryMB:        128,
			Workers:         2,
		},
		Profile: config.ProfileConfig{Iterations: 4, Workers: 2},
		Analyze: config.AnalyzeConfig{Strategy: "doubling", Start: 100, Count: 4, Repeats: 1},
	}
}

type fixture struct {
	engine  *Engine
	exec    *sandboxtest.Executor
	cfg     *config.Config
	history *history.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testConfig(t)
	log := zaptest.NewLogger(t)
	exec := sandboxtest.New(solver)

	registry, err := plugin.NewBuiltinRegistry(exec, cfg, log)
	require.NoError(t, err)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := New(cfg, log, registry, exec, WithHistory(store), WithMetrics(metrics.New(prometheus.NewRegistry())))
	return fixture{engine: e, exec: exec, cfg: cfg, history: store}
}

func writeCases(t *testing.T, f fixture, name, body string) {
	t.Helper()
	path := filepath.Join(f.cfg.ProblemsDir, "leetcode", name, challenge.TestcasesFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestEngineAddScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sel := Selector{Challenge: "add"}

	scaffold, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "add"})
	require.NoError(t, err)
	assert.Len(t, scaffold.Created, 4)
	assert.FileExists(t, filepath.Join(scaffold.Dir, "python", "solution.py"))

	writeCases(t, f, "add", `{
		"testcases": [
			{"input": [2, 3], "expected": 5},
			{"input": [1, 1], "expected": 3},
			{"input": [-1, 0], "expected": 0, "timeoutMs": 50}
		],
		"implementations": {"python": {"function": "add"}}
	}`)

	t.Run("Test", func(t *testing.T) {
		report, err := f.engine.Test(ctx, TestRequest{Selector: sel, Detailed: true})
		require.NoError(t, err)
		assert.Equal(t, "python", report.Language)
		assert.Equal(t, "add", report.Function)
		require.Len(t, report.Outcomes, 3)
		assert.Equal(t, harness.KindPass, report.Outcomes[0].Kind)
		assert.Equal(t, harness.KindMismatch, report.Outcomes[1].Kind)
		assert.Equal(t, harness.KindTimeout, report.Outcomes[2].Kind)
		assert.Equal(t, errkind.ExitTestFailure, errkind.ExitCode(report.Err()))
		assert.Zero(t, f.exec.Live())
	})

	t.Run("TestSelection", func(t *testing.T) {
		report, err := f.engine.Test(ctx, TestRequest{Selector: sel, Cases: "1"})
		require.NoError(t, err)
		assert.NoError(t, report.Err())

		_, err = f.engine.Test(ctx, TestRequest{Selector: sel, Cases: "4"})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("Profile", func(t *testing.T) {
		stats, err := f.engine.Profile(ctx, ProfileRequest{Selector: sel})
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Requested)
		assert.Equal(t, 4, stats.Succeeded)
		require.NotNil(t, stats.Duration)
		assert.Equal(t, 5.0, stats.Duration.Median)

		_, err = f.engine.Profile(ctx, ProfileRequest{Selector: sel, Case: 9})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("Analyze", func(t *testing.T) {
		est, err := f.engine.Analyze(ctx, AnalyzeRequest{Selector: sel})
		require.NoError(t, err)
		assert.Equal(t, complexity.Linear, est.Class)
		assert.Len(t, est.Samples, 4)
		assert.True(t, est.Approximate)
	})

	t.Run("Cases", func(t *testing.T) {
		cases, err := f.engine.Cases(ctx, sel)
		require.NoError(t, err)
		require.Len(t, cases, 3)
		assert.Equal(t, 3, cases[2].Index)
	})

	t.Run("History", func(t *testing.T) {
		runs, err := f.engine.History(ctx, history.Filter{Challenge: "add"})
		require.NoError(t, err)
		require.Len(t, runs, 4)
		assert.Equal(t, history.KindAnalyze, runs[0].Kind)

		tests, err := f.engine.History(ctx, history.Filter{Challenge: "add", Language: "py", Kind: history.KindTest})
		require.NoError(t, err)
		require.Len(t, tests, 2)
		assert.Equal(t, "ok", tests[0].Status)
		assert.Equal(t, "mismatch", tests[1].Status)
	})
}

func TestEngineBuildFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sel := Selector{Challenge: "broken", Language: "golang"}

	_, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "Add"})
	require.NoError(t, err)
	writeCases(t, f, "broken", `[{"input": [1, 2], "expected": 3}, {"input": [2, 2], "expected": 4}]`)

	solution := filepath.Join(f.cfg.ProblemsDir, "leetcode", "broken", "go", "solution.go")
	t.Run("Passes", func(t *testing.T) {
		report, err := f.engine.Test(ctx, TestRequest{Selector: sel})
		require.NoError(t, err)
		assert.NoError(t, report.Err())
	})

	t.Run("BuildFails", func(t *testing.T) {
		require.NoError(t, os.WriteFile(solution, []byte("package main\nsyntax error\n"), 0o644))
		report, err := f.engine.Test(ctx, TestRequest{Selector: sel})
		require.NoError(t, err)
		for _, o := range report.Outcomes {
			assert.Equal(t, harness.KindBuild, o.Kind)
		}
		assert.Equal(t, errkind.ExitBuildFailure, errkind.ExitCode(report.Err()))

		_, err = f.engine.Profile(ctx, ProfileRequest{Selector: sel, Iterations: 2})
		assert.Equal(t, errkind.ExitBuildFailure, errkind.ExitCode(err))
	})
}

func TestEngineResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("MissingChallenge", func(t *testing.T) {
		_, err := f.engine.Test(ctx, TestRequest{Selector: Selector{Challenge: "nope"}})
		assert.Equal(t, errkind.ExitConfig, errkind.ExitCode(err))
	})

	t.Run("UnknownLanguage", func(t *testing.T) {
		_, err := f.engine.Init(ctx, InitRequest{Selector: Selector{Challenge: "x", Language: "cobol"}})
		assert.ErrorIs(t, err, errkind.ErrUnknownLanguage)
		assert.Equal(t, errkind.ExitConfig, errkind.ExitCode(err))
	})

	t.Run("PlatformWithoutLanguage", func(t *testing.T) {
		_, err := f.engine.Init(ctx, InitRequest{Selector: Selector{Platform: "aoc", Challenge: "day1"}})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})

	t.Run("LanguageFromChallengeSettings", func(t *testing.T) {
		sel := Selector{Challenge: "js-only", Language: "js"}
		_, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "add"})
		require.NoError(t, err)
		writeCases(t, f, "js-only", `[{"input": [1, 2], "expected": 3}]`)

		report, err := f.engine.Test(ctx, TestRequest{Selector: Selector{Challenge: "js-only"}})
		require.NoError(t, err)
		assert.Equal(t, "javascript", report.Language)
		assert.Equal(t, "add", report.Function)
	})

	t.Run("HistoryDisabled", func(t *testing.T) {
		e := New(f.cfg, zaptest.NewLogger(t), f.engine.registry, f.exec)
		_, err := e.History(ctx, history.Filter{})
		assert.ErrorIs(t, err, errkind.ErrConfig)
	})
}

func TestEngineInitKeepsExistingFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sel := Selector{Challenge: "two-sum"}

	first, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "two_sum"})
	require.NoError(t, err)
	solution := filepath.Join(first.Dir, "python", "solution.py")
	require.NoError(t, os.WriteFile(solution, []byte("# my work\n"), 0o644))
	writeCases(t, f, "two-sum", `{"testcases": [{"input": [[2, 7], 9], "expected": [0, 1], "comparisonMode": "unordered"}]}`)

	second, err := f.engine.Init(ctx, InitRequest{Selector: Selector{Challenge: "two-sum", Language: "go"}, Function: "TwoSum"})
	require.NoError(t, err)
	assert.Contains(t, second.Updated, filepath.Join(first.Dir, challenge.TestcasesFile))

	data, err := os.ReadFile(solution)
	require.NoError(t, err)
	assert.Equal(t, "# my work\n", string(data))

	suite, err := challenge.LoadSuite(filepath.Join(first.Dir, challenge.TestcasesFile))
	require.NoError(t, err)
	require.Len(t, suite.Cases, 1)
	assert.Equal(t, challenge.ModeUnordered, suite.Cases[0].Mode)
	assert.Equal(t, "TwoSum", suite.Implementations["go"].Function)

	forced, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "two_sum", Force: true})
	require.NoError(t, err)
	assert.Contains(t, forced.Created, solution)
}

func TestEngineLanguagesAndShutdown(t *testing.T) {
	f := newFixture(t)

	infos := f.engine.Languages()
	require.Len(t, infos, 3)
	assert.Equal(t, "go", infos[0].Name)
	assert.Equal(t, "solution.go", infos[0].SolutionFile)

	n, err := f.engine.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngineSerialisesSameWorkdir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sel := Selector{Challenge: "locked"}

	_, err := f.engine.Init(ctx, InitRequest{Selector: sel, Function: "add"})
	require.NoError(t, err)
	writeCases(t, f, "locked", `[{"input": [1, 2], "expected": 3}]`)

	unlock, err := f.engine.locks.Lock(ctx, filepath.Join(f.cfg.ProblemsDir, "leetcode", "locked", "python"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = f.engine.Test(waitCtx, TestRequest{Selector: sel})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "test must wait for the workdir lock: %v", err)

	unlock()
	report, err := f.engine.Test(ctx, TestRequest{Selector: sel})
	require.NoError(t, err)
	assert.NoError(t, report.Err())
}
