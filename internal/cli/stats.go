package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritagescan/heritage/internal/daemon"
	"github.com/heritagescan/heritage/internal/domain"
)

func init() {
	achievementsCmd.Flags().BoolVar(&achievementsUnlocked, "unlocked", false, "Only show unlocked achievements")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries to show")
	rootCmd.AddCommand(statsCmd, achievementsCmd, historyCmd)
}

var (
	achievementsUnlocked bool
	historyLimit         int
)

var statsCmd = &cobra.Command{
	Use:   "stats USER",
	Short: "Show a user's progression",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var achievementsCmd = &cobra.Command{
	Use:     "achievements USER",
	Aliases: []string{"ach"},
	Short:   "Show progress on every achievement",
	Args:    cobra.ExactArgs(1),
	RunE:    runAchievements,
}

var historyCmd = &cobra.Command{
	Use:   "history USER",
	Short: "Show recent points ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runStats(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	st, err := d.Progression.GetUserStats(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("%w: %s", domain.ErrStatsNotFound, args[0])
	}
	lp, err := d.Progression.GetLevelProgress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:         %s\n", st.UserID)
	fmt.Fprintf(out, "Points:       %d\n", st.Points)
	printLevel(out, lp)
	fmt.Fprintf(out, "Scans:        %d (%d on weekends)\n", st.TotalScans, st.WeekendScans)
	fmt.Fprintf(out, "Reports:      %d\n", st.TotalReports)
	fmt.Fprintf(out, "Streak:       %d (longest %d)\n", st.CurrentStreak, st.LongestStreak)
	fmt.Fprintf(out, "Achievements: %d / %d\n", len(st.AchievementsUnlocked), d.Progression.Catalog().Len())
	if !st.LastScanDate.IsZero() {
		fmt.Fprintf(out, "Last scan:    %s\n", st.LastScanDate.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Member since: %s\n", st.CreatedAt.Format("2006-01-02"))
	return nil
}

func runAchievements(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	list, err := d.Progression.GetAchievementProgress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tRARITY\tPOINTS\tPROGRESS")
	for _, p := range list {
		if achievementsUnlocked && !p.IsUnlocked {
			continue
		}
		status := fmt.Sprintf("%s %d/%d", bar(p.ProgressPercent), p.CurrentValue, p.TargetValue)
		if p.IsUnlocked {
			status = "unlocked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			p.Achievement.ID, p.Achievement.Title, p.Achievement.Rarity, p.Achievement.Points, status)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	txs, err := d.Ledger.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No ledger entries for %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPOINTS\tREASON")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%+d\t%s\n", t.Timestamp.Format("2006-01-02 15:04"), t.Points, t.Reason)
	}
	return w.Flush()
}
