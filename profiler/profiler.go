// Package profiler runs a solution repeatedly on one input and reports
// timing and memory statistics.
//
// Every iteration is a separate sandboxed run. Iterations that fail are
// kept in the iteration list with their error but excluded from the
// aggregates, so a single flaky run does not poison the statistics.
package profiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/plugin"
)

// Iteration records one profiling run.
type Iteration struct {
	Index        int           `json:"index"`
	Duration     time.Duration `json:"duration"`
	FunctionTime time.Duration `json:"functionTime,omitempty"`
	PeakMemoryKB int64         `json:"peakMemoryKB,omitempty"`
	Err          string        `json:"error,omitempty"`
}

// Failed reports whether the iteration did not complete successfully.
func (it Iteration) Failed() bool {
	return it.Err != ""
}

// Stats is the result of a profiling session. Duration and FunctionTime
// are in milliseconds, Memory in kilobytes. Aggregates are nil when no
// iteration succeeded or, for FunctionTime, when the driver reported no
// function timing.
type Stats struct {
	Language     string      `json:"language"`
	Function     string      `json:"function"`
	Requested    int         `json:"requested"`
	Succeeded    int         `json:"succeeded"`
	Failed       int         `json:"failed"`
	Iterations   []Iteration `json:"iterations"`
	Duration     *Summary    `json:"durationMs,omitempty"`
	FunctionTime *Summary    `json:"functionTimeMs,omitempty"`
	Memory       *Summary    `json:"memoryKB,omitempty"`
}

// Options controls a profiling session.
type Options struct {
	Iterations int
	// Workers bounds concurrent iterations. Values below 1 mean 1.
	Workers  int
	Timeout  time.Duration
	MemoryMB int
}

// Profiler runs profiling sessions.
type Profiler struct {
	logger *zap.Logger
}

// New creates a Profiler.
func New(logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{logger: logger.Named("profiler")}
}

// Profile builds the solution and runs it opts.Iterations times on args.
// A build failure or an infrastructure failure aborts the session.
func (p *Profiler) Profile(ctx context.Context, lp plugin.LanguagePlugin, target plugin.Target, args []json.RawMessage, opts Options) (Stats, error) {
	if opts.Iterations <= 0 {
		return Stats{}, errkind.Configf("iterations must be positive, got: %d", opts.Iterations)
	}

	if _, err := lp.Build(ctx, target); err != nil {
		return Stats{}, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	iterations := make([]Iteration, opts.Iterations)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range iterations {
		g.Go(func() error {
			it, err := runIteration(gctx, lp, target, args, opts)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", i+1, err)
			}
			it.Index = i + 1
			iterations[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	stats := aggregate(iterations)
	stats.Language = lp.Name()
	stats.Function = target.FunctionName
	p.logger.Debug("profiling finished",
		zap.String("language", lp.Name()),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func runIteration(ctx context.Context, lp plugin.LanguagePlugin, target plugin.Target, args []json.RawMessage, opts Options) (Iteration, error) {
	res, err := lp.Run(ctx, target, args, plugin.RunOptions{Timeout: opts.Timeout, MemoryMB: opts.MemoryMB})
	if err != nil {
		return Iteration{}, err
	}

	it := Iteration{Duration: res.Duration, PeakMemoryKB: res.PeakMemoryKB}
	if runErr := res.Err(); runErr != nil {
		it.Err = runErr.Error()
		return it, nil
	}
	out, err := plugin.ParseOutput(res.Stdout)
	if err != nil {
		if errors.Is(err, plugin.ErrNoResult) {
			err = fmt.Errorf("%w: %w", errkind.ErrRuntime, err)
		}
		it.Err = err.Error()
		return it, nil
	}
	it.FunctionTime = out.FunctionTime
	return it, nil
}

func aggregate(iterations []Iteration) Stats {
	stats := Stats{Requested: len(iterations), Iterations: iterations}

	var durations, functionTimes, memory []float64
	for _, it := range iterations {
		if it.Failed() {
			stats.Failed++
			continue
		}
		stats.Succeeded++
		durations = append(durations, millis(it.Duration))
		if it.FunctionTime > 0 {
			functionTimes = append(functionTimes, millis(it.FunctionTime))
		}
		if it.PeakMemoryKB > 0 {
			memory = append(memory, float64(it.PeakMemoryKB))
		}
	}

	stats.Duration = Summarize(durations)
	stats.FunctionTime = Summarize(functionTimes)
	stats.Memory = Summarize(memory)
	return stats
}

// Err returns an error when no iteration succeeded.
func (s Stats) Err() error {
	if s.Succeeded > 0 || s.Requested == 0 {
		return nil
	}
	for _, it := range s.Iterations {
		if it.Failed() {
			return fmt.Errorf("%w: all %d iterations failed, first: %s", errkind.ErrRuntime, s.Requested, it.Err)
		}
	}
	return nil
}
