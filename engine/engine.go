// Package engine orchestrates the challengebox commands. It resolves the
// challenge and language, serialises work on each solution directory,
// drives the harness, profiler and complexity analyzer, and records every
// run in the history store.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/challenge"
	"github.com/isdmx/challengebox/complexity"
	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/harness"
	"github.com/isdmx/challengebox/history"
	"github.com/isdmx/challengebox/metrics"
	"github.com/isdmx/challengebox/plugin"
	"github.com/isdmx/challengebox/profiler"
	"github.com/isdmx/challengebox/sandbox"
)

// Engine runs challengebox commands. It is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *plugin.Registry
	exec     sandbox.Executor
	locks    *challenge.Locks
	history  *history.Store
	metrics  *metrics.Metrics

	harness  *harness.Harness
	profiler *profiler.Profiler
	analyzer *complexity.Analyzer
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory records runs in store.
func WithHistory(store *history.Store) Option {
	return func(e *Engine) {
		e.history = store
	}
}

// WithMetrics counts commands and case outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine. exec is the executor the registry's plugins run
// on; it is used directly only to reap leftover environments.
func New(cfg *config.Config, logger *zap.Logger, registry *plugin.Registry, exec sandbox.Executor, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		exec:     exec,
		locks:    challenge.NewLocks(),
		harness:  harness.New(logger),
		profiler: profiler.New(logger),
		analyzer: complexity.New(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selector names a challenge and optionally the language to use.
type Selector struct {
	// Platform defaults to the configured default platform.
	Platform  string
	Challenge string
	// Language defaults to challenge.yaml, then the platform's language.
	Language string
}

// TestRequest selects the cases to run.
type TestRequest struct {
	Selector
	Cases    string
	Detailed bool
}

// ProfileRequest selects the input to profile.
type ProfileRequest struct {
	Selector
	// Iterations defaults to profile.iterations.
	Iterations int
	// Case is the 1-based index of the case whose input is profiled.
	// Zero means the first case.
	Case int
}

// AnalyzeRequest selects the solution to analyze.
type AnalyzeRequest struct {
	Selector
}

// InitRequest describes a challenge to scaffold.
type InitRequest struct {
	Selector
	// Function defaults to challenge.DefaultFunction.
	Function string
	// Force overwrites an existing solution file.
	Force bool
}

// InitResult lists what Init created or updated.
type InitResult struct {
	Dir     string   `json:"dir"`
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

// LanguageInfo describes a registered language.
type LanguageInfo struct {
	Name         string   `json:"name"`
	Aliases      []string `json:"aliases"`
	Image        string   `json:"image"`
	SolutionFile string   `json:"solutionFile"`
}

type resolved struct {
	layout challenge.Layout
	plugin plugin.LanguagePlugin
	target plugin.Target
	suite  challenge.Suite
}

func (e *Engine) resolve(sel Selector, needCases bool) (resolved, error) {
	platform := sel.Platform
	if platform == "" {
		platform = e.cfg.DefaultPlatform
	}
	layout, err := challenge.NewLayout(e.cfg.ProblemsDir, platform, sel.Challenge)
	if err != nil {
		return resolved{}, err
	}
	if err := layout.Exists(); err != nil {
		return resolved{}, err
	}

	settings, err := challenge.LoadSettings(layout.SettingsPath())
	if err != nil {
		return resolved{}, err
	}

	lp, err := e.resolveLanguage(platform, sel.Language, settings)
	if err != nil {
		return resolved{}, err
	}

	var suite challenge.Suite
	if needCases {
		if suite, err = challenge.LoadSuite(layout.TestcasesPath()); err != nil {
			return resolved{}, err
		}
	} else if s, loadErr := challenge.LoadSuite(layout.TestcasesPath()); loadErr == nil {
		suite = s
	}

	function := challenge.FunctionFor(settings, suite, lp.Name())
	return resolved{
		layout: layout,
		plugin: lp,
		target: plugin.Target{Workdir: layout.Workdir(lp.Name()), FunctionName: function},
		suite:  suite,
	}, nil
}

func (e *Engine) resolveLanguage(platform, language string, settings challenge.Settings) (plugin.LanguagePlugin, error) {
	if language == "" {
		language = settings.Language
	}
	if language == "" {
		lang, ok := e.cfg.PlatformLanguage(platform)
		if !ok {
			return nil, errkind.Configf("no language given and platform %q has no default language", platform)
		}
		language = lang
	}
	return e.registry.Resolve(language)
}

// lock serialises commands on the same solution directory.
func (e *Engine) lock(ctx context.Context, r resolved) (func(), error) {
	unlock, err := e.locks.Lock(ctx, r.target.Workdir)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", r.target.Workdir, err)
	}
	return unlock, nil
}

// Test runs the selected test cases. Failed cases are reported in the
// returned report; use Report.Err for the exit status. The error is set
// only when the run could not be carried out.
func (e *Engine) Test(ctx context.Context, req TestRequest) (report harness.Report, err error) {
	defer func() { e.metrics.ObserveCommand("test", firstErr(err, report.Err())) }()

	r, err := e.resolve(req.Selector, true)
	if err != nil {
		return harness.Report{}, err
	}
	unlock, err := e.lock(ctx, r)
	if err != nil {
		return harness.Report{}, err
	}
	defer unlock()

	e.logger.Info("running tests",
		zap.String("challenge", r.layout.Name),
		zap.String("language", r.plugin.Name()),
		zap.String("function", r.target.FunctionName),
		zap.String("cases", req.Cases))

	report, err = e.harness.Run(ctx, r.plugin, r.target, r.suite.Cases, harness.Options{
		Selection: req.Cases,
		Detailed:  req.Detailed,
		Workers:   e.cfg.Sandbox.Workers,
		MemoryMB:  e.cfg.Sandbox.MemoryMB,
	})
	if err != nil {
		return harness.Report{}, err
	}

	for _, o := range report.Outcomes {
		e.metrics.ObserveCase(r.plugin.Name(), string(o.Kind))
	}
	e.record(ctx, r, &history.Run{
		Kind:         history.KindTest,
		Status:       status(report.Err()),
		Total:        report.Summary.Total,
		Passed:       report.Summary.Passed,
		Failed:       report.Summary.Failed,
		DurationMs:   float64(report.Summary.AverageDuration.Microseconds()) / 1000,
		PeakMemoryKB: report.Summary.PeakMemoryKB,
		Summary:      fmt.Sprintf("%d/%d passed", report.Summary.Passed, report.Summary.Total),
	})
	return report, nil
}

// Profile runs one case input repeatedly.
func (e *Engine) Profile(ctx context.Context, req ProfileRequest) (stats profiler.Stats, err error) {
	defer func() { e.metrics.ObserveCommand("profile", firstErr(err, stats.Err())) }()

	r, err := e.resolve(req.Selector, true)
	if err != nil {
		return profiler.Stats{}, err
	}
	if len(r.suite.Cases) == 0 {
		return profiler.Stats{}, errkind.Configf("challenge %s has no test cases to profile", r.layout.Name)
	}
	index := req.Case
	if index == 0 {
		index = 1
	}
	if index < 1 || index > len(r.suite.Cases) {
		return profiler.Stats{}, errkind.Configf("case %d out of range 1-%d", index, len(r.suite.Cases))
	}
	iterations := req.Iterations
	if iterations == 0 {
		iterations = e.cfg.Profile.Iterations
	}

	unlock, err := e.lock(ctx, r)
	if err != nil {
		return profiler.Stats{}, err
	}
	defer unlock()

	tc := r.suite.Cases[index-1]
	e.logger.Info("profiling",
		zap.String("challenge", r.layout.Name),
		zap.String("language", r.plugin.Name()),
		zap.Int("case", index),
		zap.Int("iterations", iterations))

	stats, err = e.profiler.Profile(ctx, r.plugin, r.target, tc.Input, profiler.Options{
		Iterations: iterations,
		Workers:    e.cfg.Profile.Workers,
		Timeout:    tc.Timeout,
		MemoryMB:   e.cfg.Sandbox.MemoryMB,
	})
	if err != nil {
		return profiler.Stats{}, err
	}

	run := &history.Run{
		Kind:   history.KindProfile,
		Status: status(stats.Err()),
		Total:  stats.Requested,
		Passed: stats.Succeeded,
		Failed: stats.Failed,
	}
	if stats.Duration != nil {
		run.DurationMs = stats.Duration.Mean
		run.Summary = fmt.Sprintf("case %d: median %.3fms over %d runs", index, stats.Duration.Median, stats.Succeeded)
	}
	if stats.Memory != nil {
		run.PeakMemoryKB = int64(stats.Memory.Max)
	}
	e.record(ctx, r, run)
	return stats, nil
}

// Analyze estimates the complexity class of the solution.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (est complexity.Estimate, err error) {
	defer func() { e.metrics.ObserveCommand("analyze", err) }()

	r, err := e.resolve(req.Selector, false)
	if err != nil {
		return complexity.Estimate{}, err
	}
	opts, err := e.analyzeOptions(r)
	if err != nil {
		return complexity.Estimate{}, err
	}

	unlock, err := e.lock(ctx, r)
	if err != nil {
		return complexity.Estimate{}, err
	}
	defer unlock()

	e.logger.Info("analyzing complexity",
		zap.String("challenge", r.layout.Name),
		zap.String("language", r.plugin.Name()))

	est, err = e.analyzer.Analyze(ctx, r.plugin, r.target, opts)
	if err != nil {
		return complexity.Estimate{}, err
	}

	e.record(ctx, r, &history.Run{
		Kind:    history.KindAnalyze,
		Status:  "ok",
		Total:   len(est.Samples),
		Summary: fmt.Sprintf("%s (confidence %.2f)", est.Class.Notation(), est.Confidence),
	})
	return est, nil
}

func (e *Engine) analyzeOptions(r resolved) (complexity.Options, error) {
	settings, err := complexity.LoadSettings(r.layout.ComplexityPath())
	if err != nil {
		return complexity.Options{}, err
	}
	generator, err := settings.NewGenerator()
	if err != nil {
		return complexity.Options{}, err
	}

	var sizes complexity.SizeStrategy = complexity.Explicit(settings.Sizes)
	if len(settings.Sizes) == 0 {
		if sizes, err = complexity.StrategyFromConfig(e.cfg.Analyze); err != nil {
			return complexity.Options{}, err
		}
	}

	repeats := settings.Repeats
	if repeats <= 0 {
		repeats = e.cfg.Analyze.Repeats
	}
	return complexity.Options{
		Sizes:     sizes,
		Generator: generator,
		Repeats:   repeats,
		MemoryMB:  e.cfg.Sandbox.MemoryMB,
	}, nil
}

// Cases returns the challenge's test cases in index order.
func (e *Engine) Cases(_ context.Context, sel Selector) ([]challenge.TestCase, error) {
	platform := sel.Platform
	if platform == "" {
		platform = e.cfg.DefaultPlatform
	}
	layout, err := challenge.NewLayout(e.cfg.ProblemsDir, platform, sel.Challenge)
	if err != nil {
		return nil, err
	}
	suite, err := challenge.LoadSuite(layout.TestcasesPath())
	if err != nil {
		return nil, err
	}
	return suite.Cases, nil
}

// Shutdown removes sandbox environments left behind by interrupted runs.
func (e *Engine) Shutdown(ctx context.Context) (int, error) {
	reaper, ok := e.exec.(sandbox.Reaper)
	if !ok {
		return 0, nil
	}
	n, err := reaper.Reap(ctx)
	if err != nil {
		return n, err
	}
	e.logger.Info("removed leftover sandboxes", zap.Int("count", n))
	return n, nil
}

// History lists recorded runs, newest first.
func (e *Engine) History(ctx context.Context, f history.Filter) ([]history.Run, error) {
	if e.history == nil {
		return nil, errkind.Configf("run history is disabled")
	}
	if f.Platform == "" && f.Challenge != "" {
		f.Platform = e.cfg.DefaultPlatform
	}
	if f.Language != "" {
		lp, err := e.registry.Resolve(f.Language)
		if err != nil {
			return nil, err
		}
		f.Language = lp.Name()
	}
	return e.history.Recent(ctx, f)
}

// Languages lists the registered languages by name.
func (e *Engine) Languages() []LanguageInfo {
	names := e.registry.Names()
	infos := make([]LanguageInfo, 0, len(names))
	for _, name := range names {
		lp, err := e.registry.Resolve(name)
		if err != nil {
			continue
		}
		infos = append(infos, LanguageInfo{
			Name:         lp.Name(),
			Aliases:      lp.Aliases(),
			Image:        lp.Image(),
			SolutionFile: lp.SolutionFile(),
		})
	}
	return infos
}

// record stores run in the history. Failures are logged, not returned.
func (e *Engine) record(ctx context.Context, r resolved, run *history.Run) {
	if e.history == nil {
		return
	}
	run.Platform = r.layout.Platform
	run.Challenge = r.layout.Name
	run.Language = r.plugin.Name()
	if err := e.history.Record(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("failed to record run", zap.Error(err))
	}
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return errkind.Of(err).String()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
