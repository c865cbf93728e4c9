package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritagescan/heritage/internal/daemon"
)

func init() {
	leaderboardCmd.PersistentFlags().IntVar(&leaderboardLimit, "limit", 10, "Number of users to rank")
	leaderboardCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

var leaderboardLimit int

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"top"},
	Short:   "Show the global leaderboard",
	Args:    cobra.NoArgs,
	RunE:    runLeaderboard,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply leaderboard positions and unlock rank achievements",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	board, err := d.Ranker.GetLeaderboard(cmd.Context(), leaderboardLimit)
	if err != nil {
		return err
	}
	if len(board) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users yet. Run 'heritage scan <user> <site>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tPOINTS\tLEVEL\tSCANS\tACHIEVEMENTS")
	for _, e := range board {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\n",
			e.Rank, e.UserID, e.Points, e.Level, e.TotalScans, e.AchievementCount)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	results, err := d.Progression.SweepRankAchievements(cmd.Context(), leaderboardLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No new rank achievements.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "#%d %s\n", r.Rank, r.Stats.UserID)
		printUnlocks(out, r.NewlyUnlocked)
	}
	return nil
}
