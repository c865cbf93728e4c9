package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritagescan/heritage/internal/daemon"
	"github.com/heritagescan/heritage/internal/domain"
)

func init() {
	verifyCmd.Flags().IntVar(&verifyTop, "top", 100, "Users to check when no USER is given")
	rootCmd.AddCommand(verifyCmd)
}

var verifyTop int

var verifyCmd = &cobra.Command{
	Use:   "verify [USER]",
	Short: "Check that stored points match the ledger",
	Long: `Reconcile each user's stored points against the sum of their ledger
entries. With no USER, the top users by points are checked. Exits non-zero
if any user is out of balance.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	var recs []domain.Reconciliation
	if len(args) == 1 {
		r, err := d.Ledger.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		recs = append(recs, r)
	} else {
		recs, err = d.Ledger.ReconcileTop(cmd.Context(), verifyTop)
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tPOINTS\tLEDGER\tENTRIES\tSTATUS")
	bad := 0
	for _, r := range recs {
		status := "ok"
		if !r.Balanced {
			status = fmt.Sprintf("MISMATCH (%+d)", r.LedgerPoints-r.StatsPoints)
			bad++
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", r.UserID, r.StatsPoints, r.LedgerPoints, r.Entries, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if bad > 0 {
		return fmt.Errorf("%d of %d users out of balance", bad, len(recs))
	}
	return nil
}
