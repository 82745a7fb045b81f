package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tronledger/tronledger/internal/app/reconcile"
	"github.com/tronledger/tronledger/internal/domain"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)

	syncCmd.Flags().StringP("wallet", "w", "", "Sync only this wallet id")
	syncCmd.Flags().Bool("balances-only", false, "Fetch balances without transfers")
}

// ─── sync ───────────────────────────────────────────────────────────────────

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch balances and transfers, then reconcile",
	Long: `Run one reconciliation pass. Each wallet's balance and recent transfers
are fetched, new transfers are merged into the ledger, and duplicate
detection and totals are recomputed over the whole ledger. A wallet that
fails to sync is reported and does not stop the others.`,
	RunE: withApp(runSync),
}

func runSync(cmd *cobra.Command, args []string, a *app) error {
	id, _ := cmd.Flags().GetString("wallet")
	balancesOnly, _ := cmd.Flags().GetBool("balances-only")
	if balancesOnly && id != "" {
		return fmt.Errorf("--balances-only refreshes every wallet; drop --wallet")
	}

	var rep reconcile.Report
	if balancesOnly {
		rep = a.orch.RefreshBalances(cmd.Context())
	} else if id != "" {
		var err error
		if rep, err = a.orch.ReconcileWallet(cmd.Context(), id); err != nil {
			return err
		}
	} else {
		if len(a.wallets.List()) == 0 {
			return fmt.Errorf("no wallets tracked: add one with 'tronledger wallet add ADDRESS'")
		}
		rep = a.orch.ReconcileAll(cmd.Context())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced in %s: %d new transaction(s)", rep.CompletedAt.Sub(rep.StartedAt).Round(time.Millisecond), rep.Inserted)
	if rep.Conflicts > 0 {
		fmt.Fprintf(out, ", %d conflicting", rep.Conflicts)
	}
	if rep.Malformed > 0 {
		fmt.Fprintf(out, ", %d malformed skipped", rep.Malformed)
	}
	fmt.Fprintln(out)
	for _, f := range rep.Failures {
		fmt.Fprintf(out, "⚠️  %s %s: %s\n", f.Address, f.Op, f.Err)
	}
	fmt.Fprintln(out)
	printStats(out, rep.Stats)
	return nil
}

// ─── stats ──────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals over the local ledger",
	Long:  `Show totals over the stored ledger and cached balances without fetching.`,
	RunE:  withApp(runStats),
}

func runStats(cmd *cobra.Command, args []string, a *app) error {
	printStats(cmd.OutOrStdout(), a.orch.Evaluate().Stats)
	return nil
}

func printStats(out io.Writer, s domain.Stats) {
	fmt.Fprintf(out, "Total balance:   %s USDT\n", s.TotalBalance.String())
	fmt.Fprintf(out, "Total sent:      %s USDT\n", s.TotalSent.String())
	fmt.Fprintf(out, "Total received:  %s USDT\n", s.TotalReceived.String())
	fmt.Fprintf(out, "Transactions:    %d\n", s.TotalTransactionCount)
	fmt.Fprintf(out, "Wallets:         %d\n", s.ActiveWalletCount)
	fmt.Fprintf(out, "Duplicates:      %d (%d pending review)\n", s.DuplicateCount, s.PendingDuplicateCount)
}
