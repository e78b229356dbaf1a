package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/challengebox/complexity"
	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/profiler"
)

var (
	profileLanguage   string
	profileIterations int
	profileCase       int
	analyzeLanguage   string
)

var profileCmd = &cobra.Command{
	Use:   "profile <challenge>",
	Short: "Run one test case input repeatedly and report statistics",
	Long: `Run the input of one test case many times, each in a fresh sandbox, and
report min, max, mean, median and standard deviation of duration and peak
memory over the successful runs.

Examples:
  challenge profile two-sum -i 50
  challenge profile two-sum --case 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			stats, err := eng.Profile(ctx, engine.ProfileRequest{
				Selector:   selectorFrom(args, profileLanguage),
				Iterations: profileIterations,
				Case:       profileCase,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(stats); err != nil {
					return err
				}
			} else {
				printStats(stats)
			}
			return stats.Err()
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <challenge>",
	Short: "Estimate the time complexity of the solution",
	Long: `Run the solution on generated inputs of growing size and fit the measured
times against the common complexity classes. The result is a heuristic
estimate; sandbox noise can bias it. Input generation is configured in the
challenge's complexity.json.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			est, err := eng.Analyze(ctx, engine.AnalyzeRequest{Selector: selectorFrom(args, analyzeLanguage)})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(est)
			}
			printEstimate(est)
			return nil
		})
	},
}

func init() {
	profileCmd.Flags().StringVarP(&profileLanguage, "language", "l", "", "solution language")
	profileCmd.Flags().IntVarP(&profileIterations, "iterations", "i", 0, "number of runs (default profile.iterations)")
	profileCmd.Flags().IntVar(&profileCase, "case", 1, "test case whose input is profiled")
	analyzeCmd.Flags().StringVarP(&analyzeLanguage, "language", "l", "", "solution language")
}

func printStats(s profiler.Stats) {
	fmt.Printf("%s %s: %d/%d runs succeeded\n", s.Language, s.Function, s.Succeeded, s.Requested)
	if s.Duration == nil {
		for _, it := range s.Iterations {
			if it.Failed() {
				fmt.Printf("  run #%d: %s\n", it.Index, it.Err)
				break
			}
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tmin\tmax\tmean\tmedian\tstddev")
	row := func(name, unit string, sum *profiler.Summary) {
		if sum == nil {
			return
		}
		fmt.Fprintf(w, "%s (%s)\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n", name, unit, sum.Min, sum.Max, sum.Mean, sum.Median, sum.StdDev)
	}
	row("duration", "ms", s.Duration)
	row("function", "ms", s.FunctionTime)
	row("memory", "KB", s.Memory)
	_ = w.Flush()
}

func printEstimate(est complexity.Estimate) {
	fmt.Printf("estimated %s (%s), confidence %.2f\n", est.Class.Notation(), est.Class, est.Confidence)
	if est.Approximate {
		fmt.Println("this is a heuristic estimate from sandbox timings, not a proof")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nsize\ttime")
	for _, sample := range est.Samples {
		fmt.Fprintf(w, "%d\t%s\n", sample.Size, millis(sample.Duration))
	}
	_ = w.Flush()

	classes := make([]string, 0, len(est.Deviations))
	for name := range est.Deviations {
		classes = append(classes, name)
	}
	sort.Slice(classes, func(i, j int) bool { return est.Deviations[classes[i]] < est.Deviations[classes[j]] })
	fmt.Println("\ndeviation per class:")
	for _, name := range classes {
		fmt.Printf("  %-13s %.3f\n", name, est.Deviations[name])
	}
}
