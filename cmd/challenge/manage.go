package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/history"
)

var (
	historyLimit    int
	historyLanguage string
	historyKind     string
)

var casesCmd = &cobra.Command{
	Use:   "cases <challenge>",
	Short: "List the challenge's test cases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			cases, err := eng.Cases(ctx, selectorFrom(args, ""))
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cases)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tmode\tinput\texpected\tdescription")
			for _, tc := range cases {
				inputs := make([]string, len(tc.Input))
				for i, arg := range tc.Input {
					inputs[i] = string(arg)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", tc.Index, tc.Mode, strings.Join(inputs, ", "), tc.Expected, tc.Description)
			}
			return w.Flush()
		})
	},
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, func(_ context.Context, eng *engine.Engine) error {
			infos := eng.Languages()
			if jsonOutput {
				return printJSON(infos)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "language\taliases\tsolution\timage")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, strings.Join(info.Aliases, ","), info.SolutionFile, info.Image)
			}
			return w.Flush()
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown-containers",
	Short: "Remove sandbox containers left behind by interrupted runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			n, err := eng.Shutdown(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d container(s)\n", n)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [challenge]",
	Short: "List recent runs",
	Long: `List recorded test, profile and analyze runs, newest first.

Examples:
  challenge history
  challenge history two-sum -l go --kind profile`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := history.Filter{
			Platform: platform,
			Language: historyLanguage,
			Kind:     history.Kind(historyKind),
			Limit:    historyLimit,
		}
		if len(args) == 1 {
			filter.Challenge = args[0]
		}
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			runs, err := eng.History(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "time\tchallenge\tlanguage\tkind\tstatus\tsummary")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%s\t%s\n",
					run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					run.Platform, run.Challenge, run.Language, run.Kind, run.Status, run.Summary)
			}
			return w.Flush()
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "maximum number of runs")
	historyCmd.Flags().StringVarP(&historyLanguage, "language", "l", "", "only runs of this language")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only runs of this kind: test, profile or analyze")
}
