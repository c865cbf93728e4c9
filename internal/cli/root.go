// Package cli implements the heritage command-line interface using Cobra.
// Each subcommand maps to one progression operation (scan, award, stats, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "heritage",
	Short: "Heritage scan progression engine",
	Long: `Heritage tracks points, levels, streaks and achievements for people who
scan and document heritage sites, and ranks them on a global leaderboard.

Run 'heritage serve' for the HTTP API, or use the subcommands to act on the
configured store directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
