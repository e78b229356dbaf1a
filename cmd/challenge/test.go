package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/harness"
)

var (
	testLanguage string
	testDetailed bool
	testCases    string
)

var testCmd = &cobra.Command{
	Use:   "test <challenge>",
	Short: "Run the challenge's test cases",
	Long: `Build the solution once and run the selected test cases against it,
each in its own sandbox.

Examples:
  challenge test two-sum
  challenge test two-sum -l go -c 1,3-5 -d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			report, err := eng.Test(ctx, engine.TestRequest{
				Selector: selectorFrom(args, testLanguage),
				Cases:    testCases,
				Detailed: testDetailed,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report, testDetailed)
			}
			return report.Err()
		})
	},
}

func init() {
	testCmd.Flags().StringVarP(&testLanguage, "language", "l", "", "solution language")
	testCmd.Flags().BoolVarP(&testDetailed, "detailed", "d", false, "show actual and expected values")
	testCmd.Flags().StringVarP(&testCases, "cases", "c", "", `cases to run, e.g. "1,3-5" (default all)`)
}

func printReport(r harness.Report, detailed bool) {
	fmt.Printf("%s %s\n", r.Language, r.Function)
	if r.BuildError != "" {
		fmt.Printf("build failed:\n%s\n", indent(r.BuildError))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, o := range r.Outcomes {
		status := "PASS"
		if !o.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %s\t#%d\t%s\t%s\t%s\n", status, o.Index, o.Kind, millis(o.Duration), o.Description)
	}
	_ = w.Flush()

	for _, o := range r.Outcomes {
		if o.Passed || o.Kind == harness.KindBuild {
			continue
		}
		fmt.Printf("\ncase #%d (%s)\n", o.Index, o.Kind)
		if o.Diff != "" {
			fmt.Printf("  %s\n", o.Diff)
		}
		if o.Error != "" {
			fmt.Println(indent(o.Error))
		}
		if detailed {
			fmt.Printf("  actual:   %s\n  expected: %s\n", o.Actual, o.Expected)
			if o.Output != "" {
				fmt.Printf("  output:\n%s\n", indent(o.Output))
			}
		}
	}

	s := r.Summary
	fmt.Printf("\n%d/%d passed, total %s, average %s", s.Passed, s.Total, millis(s.TotalDuration), millis(s.AverageDuration))
	if s.PeakMemoryKB > 0 {
		fmt.Printf(", peak %d KB", s.PeakMemoryKB)
	}
	fmt.Println()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
