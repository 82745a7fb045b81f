// Package receipt renders a shareable plain-text proof of a transfer.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/tronledger/tronledger/internal/domain"
)

// ExplorerURL is the public block-explorer page for a transaction hash.
const ExplorerURL = "https://tronscan.org/#/transaction/"

// Link returns the explorer URL for hash.
func Link(hash string) string { return ExplorerURL + hash }

// Render returns the receipt for r, stamped with the generation time now.
func Render(r domain.TransactionRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString("USDT TRC20 RECEIPT\n\n")
	fmt.Fprintf(&b, "Amount:    %s USDT\n", r.Amount.String())
	fmt.Fprintf(&b, "Date:      %s\n\n", r.DisplayTime())
	fmt.Fprintf(&b, "From:      %s\n", r.From)
	fmt.Fprintf(&b, "To:        %s\n\n", r.To)
	fmt.Fprintf(&b, "Hash:      %s\n", r.Hash)
	if r.Note != "" {
		fmt.Fprintf(&b, "Note:      %s\n", r.Note)
	}
	fmt.Fprintf(&b, "\nView on TronScan:\n%s\n\n", Link(r.Hash))
	fmt.Fprintf(&b, "Generated %s\n", now.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}
