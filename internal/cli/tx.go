package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tronledger/tronledger/internal/app/receipt"
	"github.com/tronledger/tronledger/internal/domain"
)

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txSentCmd)
	txCmd.AddCommand(txReceivedCmd)
	txCmd.AddCommand(txStatusCmd)
	txCmd.AddCommand(txNoteCmd)
	txCmd.AddCommand(txReceiptCmd)

	for _, c := range []*cobra.Command{txSentCmd, txReceivedCmd} {
		c.Flags().StringP("wallet", "w", "", "Only transfers fetched for this address")
		c.Flags().IntP("limit", "l", 20, "Maximum rows to show (0 = all)")
	}
}

var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transactions"},
	Short:   "Browse and annotate the ledger",
}

// ─── tx sent / received ─────────────────────────────────────────────────────

var txSentCmd = &cobra.Command{
	Use:   "sent",
	Short: "List outgoing transfers, newest first",
	RunE:  withApp(listTransactions(domain.DirectionSent)),
}

var txReceivedCmd = &cobra.Command{
	Use:   "received",
	Short: "List incoming transfers, newest first",
	RunE:  withApp(listTransactions(domain.DirectionReceived)),
}

func listTransactions(dir domain.Direction) func(*cobra.Command, []string, *app) error {
	return func(cmd *cobra.Command, args []string, a *app) error {
		wallet, _ := cmd.Flags().GetString("wallet")
		limit, _ := cmd.Flags().GetInt("limit")

		recs := a.store.Received(wallet)
		if dir == domain.DirectionSent {
			recs = a.store.Sent(wallet)
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintf(out, "No %s transactions.\n", dir)
			return nil
		}
		shown := recs
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		fmt.Fprintf(out, "%s transactions (%d of %d):\n", strings.ToUpper(string(dir[:1]))+string(dir[1:]), len(shown), len(recs))
		for _, r := range shown {
			counterparty := r.To
			if dir == domain.DirectionReceived {
				counterparty = r.From
			}
			line := fmt.Sprintf("  %s  %14s USDT  %s  %-9s %s", r.DisplayTime(), r.Amount.String(), counterparty, r.Status, r.Hash)
			if r.Note != "" {
				line += "  # " + r.Note
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}
}

// ─── tx status ──────────────────────────────────────────────────────────────

var txStatusCmd = &cobra.Command{
	Use:   "status HASH pending|completed",
	Short: "Set the local status of a transaction",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTxStatus),
}

func runTxStatus(cmd *cobra.Command, args []string, a *app) error {
	status, err := domain.ParseTxStatus(args[1])
	if err != nil {
		return err
	}
	if err := unsaved(cmd, a.store.SetStatus(cmd.Context(), args[0], status)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s marked %s.\n", args[0], status)
	return nil
}

// ─── tx note ────────────────────────────────────────────────────────────────

var txNoteCmd = &cobra.Command{
	Use:   "note HASH [TEXT...]",
	Short: "Attach a note to a transaction (no text clears it)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runTxNote),
}

func runTxNote(cmd *cobra.Command, args []string, a *app) error {
	text := strings.Join(args[1:], " ")
	if err := unsaved(cmd, a.store.SetNote(cmd.Context(), args[0], text)); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Note cleared on %s.\n", args[0])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Note saved on %s.\n", args[0])
	}
	return nil
}

// ─── tx receipt ─────────────────────────────────────────────────────────────

var txReceiptCmd = &cobra.Command{
	Use:   "receipt HASH",
	Short: "Print a plain-text receipt",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTxReceipt),
}

func runTxReceipt(cmd *cobra.Command, args []string, a *app) error {
	r, err := a.store.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), receipt.Render(r, time.Now()))
	return nil
}
