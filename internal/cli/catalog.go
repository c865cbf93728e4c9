package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritagescan/heritage/internal/app/progression"
)

func init() {
	catalogCmd.Flags().BoolVar(&catalogLevels, "levels", false, "Show level thresholds instead of achievements")
	rootCmd.AddCommand(catalogCmd)
}

var catalogLevels bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List every achievement or level threshold",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

// runCatalog reads static tables only, so it needs no daemon.
func runCatalog(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if catalogLevels {
		fmt.Fprintln(w, "LEVEL\tFROM\tTO")
		for _, b := range progression.LevelBands() {
			fmt.Fprintf(w, "%d\t%d\t%d\n", b.Level, b.MinPoints, b.MaxPoints)
		}
		fmt.Fprintf(w, "...\teach next threshold is 1.5x the previous\t\n")
		return w.Flush()
	}

	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tRARITY\tPOINTS\tCRITERIA")
	for _, a := range progression.Default().All() {
		criteria := string(a.Criteria.Type)
		if a.Criteria.Target > 0 {
			criteria = fmt.Sprintf("%s >= %d", a.Criteria.Type, a.Criteria.Target)
		}
		if a.Criteria.Condition != "" {
			criteria = a.Criteria.Condition
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Title, a.Category, a.Rarity, a.Points, criteria)
	}
	return w.Flush()
}
