// Package harness runs a challenge's test cases against a solution and
// aggregates the outcomes into a report.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/challengebox/challenge"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/plugin"
	"github.com/isdmx/challengebox/sandbox"
)

// Kind classifies a case outcome.
type Kind string

const (
	KindPass     Kind = "pass"
	KindMismatch Kind = "mismatch"
	KindRuntime  Kind = "runtime"
	KindTimeout  Kind = "timeout"
	KindBuild    Kind = "build"
)

// Outcome is the result of one test case.
type Outcome struct {
	Index       int    `json:"index"`
	Description string `json:"description,omitempty"`
	Passed      bool   `json:"passed"`
	Kind        Kind   `json:"kind"`
	// Actual and Expected are only filled in detailed mode.
	Actual   json.RawMessage `json:"actual,omitempty"`
	Expected json.RawMessage `json:"expected,omitempty"`
	Diff     string          `json:"diff,omitempty"`
	// Output is what the solution printed besides its result.
	Output       string                  `json:"output,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Duration     time.Duration           `json:"duration"`
	FunctionTime time.Duration           `json:"functionTime,omitempty"`
	PeakMemoryKB int64                   `json:"peakMemoryKB,omitempty"`
	Result       sandbox.ExecutionResult `json:"-"`
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Total           int           `json:"total"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	Kinds           map[Kind]int  `json:"kinds"`
	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
	PeakMemoryKB    int64         `json:"peakMemoryKB"`
}

// Report is the result of a harness run, with outcomes in case index order.
type Report struct {
	Language   string    `json:"language"`
	Function   string    `json:"function"`
	BuildError string    `json:"buildError,omitempty"`
	Outcomes   []Outcome `json:"outcomes"`
	Summary    Summary   `json:"summary"`
}

// Err returns nil when every case passed and otherwise an error whose kind
// is that of the first failed case.
func (r Report) Err() error {
	if r.BuildError != "" {
		return fmt.Errorf("%w: %s", errkind.ErrBuild, r.BuildError)
	}
	for _, o := range r.Outcomes {
		if o.Passed {
			continue
		}
		var sentinel error
		switch o.Kind {
		case KindTimeout:
			sentinel = errkind.ErrTimeout
		case KindRuntime:
			sentinel = errkind.ErrRuntime
		default:
			sentinel = errkind.ErrMismatch
		}
		return fmt.Errorf("%w: %d of %d cases failed, first is case %d", sentinel, r.Summary.Failed, r.Summary.Total, o.Index)
	}
	return nil
}

// Options controls a harness run.
type Options struct {
	// Selection chooses cases, e.g. "1,3-5". Empty runs every case.
	Selection string
	// Detailed keeps the actual and expected values of every case.
	Detailed bool
	// Workers bounds concurrent case runs. Values below 1 mean 1.
	Workers int
	// Timeout and MemoryMB override the plugin defaults. A case's own
	// timeout takes precedence over Timeout.
	Timeout  time.Duration
	MemoryMB int
}

// Harness runs test cases.
type Harness struct {
	logger *zap.Logger
}

// New creates a Harness.
func New(logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{logger: logger.Named("harness")}
}

// Run builds the solution once and runs the selected cases. Per-case
// failures are recorded as outcomes; a configuration or sandbox failure
// aborts the run and is returned as the error.
func (h *Harness) Run(ctx context.Context, p plugin.LanguagePlugin, target plugin.Target, cases []challenge.TestCase, opts Options) (Report, error) {
	selected, err := challenge.Select(cases, opts.Selection)
	if err != nil {
		return Report{}, err
	}
	if len(selected) == 0 {
		return Report{}, errkind.Configf("no test cases to run")
	}

	report := Report{
		Language: p.Name(),
		Function: target.FunctionName,
		Outcomes: make([]Outcome, len(selected)),
	}

	if _, err := p.Build(ctx, target); err != nil {
		var buildErr *plugin.BuildError
		if !errors.As(err, &buildErr) {
			return Report{}, err
		}
		h.logger.Info("build failed", zap.String("language", p.Name()), zap.Error(err))
		report.BuildError = buildErr.Error()
		for i, tc := range selected {
			report.Outcomes[i] = Outcome{
				Index:       tc.Index,
				Description: tc.Description,
				Kind:        KindBuild,
				Error:       report.BuildError,
			}
		}
		report.Summary = summarize(report.Outcomes)
		return report, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tc := range selected {
		g.Go(func() error {
			outcome, err := h.runCase(gctx, p, target, tc, opts)
			if err != nil {
				return fmt.Errorf("case %d: %w", tc.Index, err)
			}
			report.Outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report.Summary = summarize(report.Outcomes)
	h.logger.Debug("test run finished",
		zap.String("language", p.Name()),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed))
	return report, nil
}

func (h *Harness) runCase(ctx context.Context, p plugin.LanguagePlugin, target plugin.Target, tc challenge.TestCase, opts Options) (Outcome, error) {
	runOpts := plugin.RunOptions{Timeout: opts.Timeout, MemoryMB: opts.MemoryMB}
	if tc.Timeout > 0 {
		runOpts.Timeout = tc.Timeout
	}

	res, err := p.Run(ctx, target, tc.Input, runOpts)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		Index:        tc.Index,
		Description:  tc.Description,
		Duration:     res.Duration,
		PeakMemoryKB: res.PeakMemoryKB,
		Result:       res,
	}
	if opts.Detailed {
		outcome.Expected = tc.Expected
	}

	out, parseErr := plugin.ParseOutput(res.Stdout)
	outcome.Output = out.Extra
	outcome.FunctionTime = out.FunctionTime

	if runErr := res.Err(); runErr != nil {
		outcome.Kind = KindRuntime
		if res.TimedOut {
			outcome.Kind = KindTimeout
		}
		outcome.Error = failureMessage(runErr, res)
		return outcome, nil
	}
	if parseErr != nil {
		outcome.Kind = KindRuntime
		outcome.Error = failureMessage(parseErr, res)
		return outcome, nil
	}

	if opts.Detailed {
		outcome.Actual = out.Result
	}
	cmp, err := challenge.Compare(tc, out.Result)
	if err != nil {
		return Outcome{}, err
	}
	if !cmp.Equal {
		outcome.Kind = KindMismatch
		outcome.Diff = cmp.Diff
		return outcome, nil
	}
	outcome.Passed = true
	outcome.Kind = KindPass
	return outcome, nil
}

func failureMessage(err error, res sandbox.ExecutionResult) string {
	if res.OOMKilled {
		return err.Error() + " (out of memory)"
	}
	if res.Stderr == "" {
		return err.Error()
	}
	return err.Error() + ": " + lastLines(res.Stderr, 20)
}

func summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), Kinds: map[Kind]int{}}
	for _, o := range outcomes {
		s.Kinds[o.Kind]++
		if o.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.TotalDuration += o.Duration
		if o.PeakMemoryKB > s.PeakMemoryKB {
			s.PeakMemoryKB = o.PeakMemoryKB
		}
	}
	if s.Total > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.Total)
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
