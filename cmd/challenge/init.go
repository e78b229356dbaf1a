package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isdmx/challengebox/engine"
)

var (
	initLanguage string
	initFunction string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init <challenge>",
	Short: "Scaffold a challenge for a language",
	Long: `Create the challenge directory with a solution template, testcases.json,
challenge.yaml and complexity.json. Existing files are kept; use --force to
replace the solution file with a fresh template.

Examples:
  challenge init two-sum -l python -f two_sum
  challenge init two-sum -l go -f TwoSum`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			result, err := eng.Init(ctx, engine.InitRequest{
				Selector: selectorFrom(args, initLanguage),
				Function: initFunction,
				Force:    initForce,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(result)
			}
			fmt.Printf("challenge %s\n", result.Dir)
			for _, path := range result.Created {
				fmt.Printf("  created  %s\n", path)
			}
			for _, path := range result.Updated {
				fmt.Printf("  updated  %s\n", path)
			}
			for _, path := range result.Skipped {
				fmt.Printf("  kept     %s\n", path)
			}
			return nil
		})
	},
}

func init() {
	initCmd.Flags().StringVarP(&initLanguage, "language", "l", "", "solution language (default from platform)")
	initCmd.Flags().StringVarP(&initFunction, "function", "f", "", "solution function name (default solve)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing solution file")
}
