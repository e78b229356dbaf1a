// Command challenge runs, tests, profiles and analyzes coding challenge
// solutions inside sandboxes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/isdmx/challengebox/errkind"
)

var (
	platform   string
	configPath string
	debug      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Run, test, profile and analyze coding challenge solutions in sandboxes.",
	Long: `challenge executes solutions to coding challenges in Python, JavaScript
and Go inside resource-limited containers. It checks them against the
challenge's test cases, profiles them over repeated runs and estimates their
time complexity.

Challenges live under <problems_dir>/<platform>/<challenge>/.

Exit codes:
  0  success
  1  a test case failed
  2  build failure
  3  configuration error or unknown language
  4  sandbox unavailable or internal error`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&platform, "platform", "p", "", "challenge platform (default from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./challengebox.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(initCmd, testCmd, casesCmd, profileCmd, analyzeCmd, languagesCmd, shutdownCmd, historyCmd)
	_ = godotenv.Load()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(errkind.ExitCode(err))
	}
}
