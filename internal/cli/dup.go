package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tronledger/tronledger/internal/domain"
)

func init() {
	rootCmd.AddCommand(dupCmd)
	dupCmd.AddCommand(dupListCmd)
	dupCmd.AddCommand(dupLegitCmd)

	dupListCmd.Flags().Bool("all", false, "Include clusters already marked legitimate")
}

var dupCmd = &cobra.Command{
	Use:     "dup",
	Aliases: []string{"duplicates"},
	Short:   "Review probable duplicate payments",
}

// ─── dup list ───────────────────────────────────────────────────────────────

var dupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List duplicate clusters awaiting review",
	RunE:  withApp(runDupList),
}

func runDupList(cmd *cobra.Command, args []string, a *app) error {
	all, _ := cmd.Flags().GetBool("all")
	status := domain.ClusterPending
	if all {
		status = ""
	}

	out := cmd.OutOrStdout()
	clusters := a.review.Current(status)
	if len(clusters) == 0 {
		fmt.Fprintln(out, "No duplicates to review.")
		return nil
	}
	fmt.Fprintf(out, "Duplicate clusters (%d):\n", len(clusters))
	for _, c := range clusters {
		fmt.Fprintf(out, "  • %s USDT  %d%%  %-10s %s\n", c.Amount, c.Similarity, c.Status, c.ID)
		fmt.Fprintf(out, "      %s\n", strings.Join(c.Members, "\n      "))
	}
	fmt.Fprintln(out, "Mark a cluster intended with 'tronledger dup legit ID'.")
	return nil
}

// ─── dup legit ──────────────────────────────────────────────────────────────

var dupLegitCmd = &cobra.Command{
	Use:   "legit ID",
	Short: "Mark a duplicate cluster as legitimate",
	Long: `Record that a flagged pair of payments was intended. The decision is
saved and holds for future syncs while both transfers remain in the ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runDupLegit),
}

func runDupLegit(cmd *cobra.Command, args []string, a *app) error {
	c, err := a.review.MarkLegitimate(cmd.Context(), args[0])
	if err := unsaved(cmd, err); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s marked %s.\n", c.ID, c.Status)
	return nil
}
