// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the application. It depends only on the
// decimal type used for token amounts.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Transfer Types ─────────────────────────────────────────────────────────

// Direction is relative to the tracked wallet the transfer was fetched for.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// TxStatus is a local annotation, independent of chain confirmation.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
)

// ParseTxStatus validates a user-supplied status string.
func ParseTxStatus(s string) (TxStatus, error) {
	switch TxStatus(s) {
	case TxPending, TxCompleted:
		return TxStatus(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidStatus)
}

// TransactionRecord is one on-chain value transfer, identified by Hash.
type TransactionRecord struct {
	Hash        string          `json:"hash"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Timestamp   time.Time       `json:"timestamp"`
	BlockNumber int64           `json:"block_number,omitempty"`
	Wallet      string          `json:"wallet"` // tracked address the record was fetched for
	Status      TxStatus        `json:"status"`
	Note        string          `json:"note,omitempty"`
}

// DisplayTime returns the human-readable form of the block time.
func (r TransactionRecord) DisplayTime() string {
	return r.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")
}

// SamePayload reports whether two records describe the same on-chain event.
// Direction, status and note are excluded: direction depends on which tracked
// wallet the event was fetched for, and the rest are local annotations.
func (r TransactionRecord) SamePayload(o TransactionRecord) bool {
	return r.Hash == o.Hash &&
		r.Amount.Equal(o.Amount) &&
		r.From == o.From &&
		r.To == o.To &&
		r.Timestamp.Equal(o.Timestamp)
}

// RawTransfer is a transfer as reported by the ledger indexer, before
// validation. Value is an integer count of base units.
type RawTransfer struct {
	TransactionID  string
	From           string
	To             string
	Value          string
	Decimals       int32
	BlockTimestamp int64 // milliseconds since epoch
	BlockNumber    int64
}

// BalanceSnapshot is a balance reading from the indexer.
type BalanceSnapshot struct {
	Address string
	Balance decimal.Decimal
	AsOf    time.Time
}

// ─── Wallet Types ───────────────────────────────────────────────────────────

// Wallet is a tracked chain address. Balance is a cache of the last
// successful sync and is invalid (treated as zero) until one succeeds.
type Wallet struct {
	ID        string              `json:"id"`
	Address   string              `json:"address"`
	Nickname  string              `json:"nickname"`
	Balance   decimal.NullDecimal `json:"balance"`
	LastSync  time.Time           `json:"last_sync,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// ─── Duplicate Types ────────────────────────────────────────────────────────

// ClusterStatus is the review state of a duplicate cluster.
type ClusterStatus string

const (
	ClusterPending    ClusterStatus = "pending"
	ClusterLegitimate ClusterStatus = "legitimate"
)

// DuplicateCluster is a pair of distinct transfers judged probably duplicate.
type DuplicateCluster struct {
	ID         string        `json:"id"`
	Members    []string      `json:"members"` // member hashes, ascending
	Amount     string        `json:"amount"`
	Similarity int           `json:"similarity"`
	Status     ClusterStatus `json:"status"`
}

// ClusterID derives the cluster identity from its member hashes. The result
// does not depend on argument order.
func ClusterID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dup_" + a + "_" + b
}

// ─── Aggregates ─────────────────────────────────────────────────────────────

// Stats is the summary over the merged ledger and the tracked wallets.
type Stats struct {
	TotalBalance          decimal.Decimal `json:"total_balance"`
	TotalSent             decimal.Decimal `json:"total_sent"`
	TotalReceived         decimal.Decimal `json:"total_received"`
	TotalTransactionCount int             `json:"total_transactions"`
	DuplicateCount        int             `json:"duplicates"`
	PendingDuplicateCount int             `json:"pending_duplicates"`
	ActiveWalletCount     int             `json:"active_wallets"`
}
