// Package stats derives dashboard totals from the ledger and the wallet list.
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/tronledger/tronledger/internal/app/duplicate"
	"github.com/tronledger/tronledger/internal/domain"
)

// Aggregate computes Stats over records and wallets. Wallets without a valid
// balance contribute zero. DuplicateCount is recomputed by running the
// detector over records; PendingDuplicateCount is left for the caller, who
// knows the review decisions.
func Aggregate(records []domain.TransactionRecord, wallets []domain.Wallet) domain.Stats {
	return AggregateWith(records, wallets, duplicate.Detect(records))
}

// AggregateWith is Aggregate with a detection result already in hand.
func AggregateWith(records []domain.TransactionRecord, wallets []domain.Wallet, clusters []domain.DuplicateCluster) domain.Stats {
	s := domain.Stats{
		TotalSent:             decimal.Zero,
		TotalReceived:         decimal.Zero,
		TotalTransactionCount: len(records),
		DuplicateCount:        len(clusters),
	}
	s.TotalBalance, s.ActiveWalletCount = WalletTotals(wallets)

	for _, r := range records {
		switch r.Direction {
		case domain.DirectionSent:
			s.TotalSent = s.TotalSent.Add(r.Amount)
		case domain.DirectionReceived:
			s.TotalReceived = s.TotalReceived.Add(r.Amount)
		}
	}
	return s
}

// WalletTotals sums the valid balances and counts the wallets.
func WalletTotals(wallets []domain.Wallet) (decimal.Decimal, int) {
	total := decimal.Zero
	for _, w := range wallets {
		if w.Balance.Valid {
			total = total.Add(w.Balance.Decimal)
		}
	}
	return total, len(wallets)
}
