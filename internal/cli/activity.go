package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heritagescan/heritage/internal/daemon"
)

func init() {
	awardCmd.Flags().StringVar(&awardReason, "reason", "Manual award", "Ledger reason")
	awardCmd.Flags().StringVar(&awardAchievement, "achievement", "", "Related achievement id")
	rootCmd.AddCommand(scanCmd, reportCmd, awardCmd)
}

var (
	awardReason      string
	awardAchievement string
)

var scanCmd = &cobra.Command{
	Use:   "scan USER SITE",
	Short: "Record a heritage site scan",
	Args:  cobra.ExactArgs(2),
	RunE:  runScan,
}

var reportCmd = &cobra.Command{
	Use:   "report USER REPORT",
	Short: "Record a conservation report",
	Args:  cobra.ExactArgs(2),
	RunE:  runReport,
}

var awardCmd = &cobra.Command{
	Use:   "award USER POINTS",
	Short: "Credit points to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runAward,
}

func runScan(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Progression.HandleScanCompleted(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %s: +%d pts", args[1], res.PointsAwarded)
	if res.StreakBonus > 0 {
		fmt.Fprintf(out, " (incl. %d streak bonus)", res.StreakBonus)
	}
	fmt.Fprintf(out, "\nStreak: %d day(s), longest %d\n", res.Stats.CurrentStreak, res.Stats.LongestStreak)
	printUnlocks(out, res.NewlyUnlocked)
	fmt.Fprintf(out, "Total: %d pts, level %d\n", res.Stats.Points, res.Stats.Level)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Progression.HandleReportSubmitted(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report %s: +%d pts\n", args[1], res.PointsAwarded)
	printUnlocks(out, res.NewlyUnlocked)
	fmt.Fprintf(out, "Total: %d pts, level %d\n", res.Stats.Points, res.Stats.Level)
	return nil
}

func runAward(cmd *cobra.Command, args []string) error {
	points, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("points must be an integer: %w", err)
	}

	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.Progression.AwardPoints(cmd.Context(), args[0], points, awardReason, awardAchievement)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Awarded %d pts to %s. Total: %d pts, level %d\n",
		points, args[0], stats.Points, stats.Level)
	return nil
}
