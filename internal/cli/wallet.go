package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletAddCmd)
	walletCmd.AddCommand(walletListCmd)
	walletCmd.AddCommand(walletRemoveCmd)

	walletAddCmd.Flags().StringP("nickname", "n", "", "Display name (default \"Wallet N\")")
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage tracked wallets",
}

// ─── wallet add ─────────────────────────────────────────────────────────────

var walletAddCmd = &cobra.Command{
	Use:   "add ADDRESS",
	Short: "Start tracking a TRON address",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runWalletAdd),
}

func runWalletAdd(cmd *cobra.Command, args []string, a *app) error {
	nickname, _ := cmd.Flags().GetString("nickname")
	w, err := a.wallets.Add(cmd.Context(), args[0], nickname)
	if err := unsaved(cmd, err); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Tracking %s as %q (id %s)\n", w.Address, w.Nickname, w.ID)
	fmt.Fprintln(out, "   Run 'tronledger sync' to fetch its transfers.")
	return nil
}

// ─── wallet list ────────────────────────────────────────────────────────────

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked wallets",
	RunE:  withApp(runWalletList),
}

func runWalletList(cmd *cobra.Command, args []string, a *app) error {
	out := cmd.OutOrStdout()
	ws := a.wallets.List()
	if len(ws) == 0 {
		fmt.Fprintln(out, "No wallets tracked.")
		fmt.Fprintln(out, "Use 'tronledger wallet add ADDRESS' to add one.")
		return nil
	}
	fmt.Fprintf(out, "Tracked wallets (%d):\n", len(ws))
	for _, w := range ws {
		balance := "not synced"
		if w.Balance.Valid {
			balance = w.Balance.Decimal.String() + " USDT"
		}
		fmt.Fprintf(out, "  • %-12s %s  %s  [%s]\n", w.Nickname, w.Address, balance, w.ID)
	}
	return nil
}

// ─── wallet remove ──────────────────────────────────────────────────────────

var walletRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Stop tracking a wallet",
	Long: `Stop tracking a wallet. Transfers already in the ledger are kept and
still count toward the totals.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runWalletRemove),
}

func runWalletRemove(cmd *cobra.Command, args []string, a *app) error {
	if err := unsaved(cmd, a.wallets.Remove(cmd.Context(), args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Wallet %s removed.\n", args[0])
	return nil
}
