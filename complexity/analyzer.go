package complexity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/plugin"
)

// Options controls an analysis.
type Options struct {
	Sizes     SizeStrategy
	Generator InputGenerator
	// Repeats is the number of runs per size; the median is kept.
	Repeats  int
	Timeout  time.Duration
	MemoryMB int
}

// Analyzer measures a solution over growing inputs.
type Analyzer struct {
	logger *zap.Logger
}

// New creates an Analyzer.
func New(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger.Named("complexity")}
}

// Analyze builds the solution, measures every size and fits the samples.
// Sizes run one at a time in ascending order so measurements do not
// compete for the host. The first size that fails or times out ends the
// measurement; the samples gathered so far are fitted.
func (a *Analyzer) Analyze(ctx context.Context, lp plugin.LanguagePlugin, target plugin.Target, opts Options) (Estimate, error) {
	if opts.Sizes == nil {
		return Estimate{}, errkind.Configf("no size strategy")
	}
	if opts.Generator == nil {
		return Estimate{}, errkind.Configf("no input generator")
	}
	repeats := opts.Repeats
	if repeats < 1 {
		repeats = 1
	}
	sizes, err := opts.Sizes.Sizes()
	if err != nil {
		return Estimate{}, err
	}

	if _, err := lp.Build(ctx, target); err != nil {
		return Estimate{}, err
	}

	a.logger.Debug("measuring input sizes",
		zap.String("strategy", describe(opts.Sizes)),
		zap.Ints("sizes", sizes),
		zap.Int("repeats", repeats))

	var (
		samples []Sample
		stopErr error
	)
	for _, size := range sizes {
		d, err := a.measure(ctx, lp, target, size, repeats, opts)
		if err != nil {
			if errkind.Of(err).Fatal() {
				return Estimate{}, err
			}
			stopErr = fmt.Errorf("size %d: %w", size, err)
			a.logger.Info("stopping measurement", zap.Int("size", size), zap.Error(err))
			break
		}
		samples = append(samples, Sample{Size: size, Duration: d})
	}

	estimate, err := Fit(samples)
	if err != nil {
		if stopErr != nil {
			return Estimate{}, errors.Join(err, stopErr)
		}
		return Estimate{}, err
	}
	return estimate, nil
}

// measure returns the median duration of repeats runs of size.
func (a *Analyzer) measure(ctx context.Context, lp plugin.LanguagePlugin, target plugin.Target, size, repeats int, opts Options) (time.Duration, error) {
	args, err := opts.Generator.Generate(size)
	if err != nil {
		return 0, err
	}

	durations := make([]time.Duration, 0, repeats)
	for i := 0; i < repeats; i++ {
		res, err := lp.Run(ctx, target, args, plugin.RunOptions{Timeout: opts.Timeout, MemoryMB: opts.MemoryMB})
		if err != nil {
			return 0, err
		}
		if err := res.Err(); err != nil {
			return 0, err
		}
		out, err := plugin.ParseOutput(res.Stdout)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", errkind.ErrRuntime, err)
		}
		d := out.FunctionTime
		if d <= 0 {
			d = res.Duration
		}
		durations = append(durations, d)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	n := len(durations)
	if n%2 == 1 {
		return durations[n/2], nil
	}
	return (durations[n/2-1] + durations[n/2]) / 2, nil
}
