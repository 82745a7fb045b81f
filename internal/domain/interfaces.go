package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TransferSource abstracts the remote ledger indexer.
// Both calls may fail; failure is an error, never a silent zero value.
type TransferSource interface {
	FetchTransfers(ctx context.Context, address string, limit int) ([]RawTransfer, error)
	FetchBalance(ctx context.Context, address string) (BalanceSnapshot, error)
}

// LedgerRepository persists the transaction ledger and user notes.
type LedgerRepository interface {
	LoadLedger(ctx context.Context) ([]TransactionRecord, error)
	SaveLedger(ctx context.Context, records []TransactionRecord) error
	LoadNotes(ctx context.Context) (map[string]string, error)
	LoadNote(ctx context.Context, hash string) (string, error)
	SaveNote(ctx context.Context, hash, text string) error
}

// WalletRepository persists the tracked wallet list.
type WalletRepository interface {
	LoadWallets(ctx context.Context) ([]Wallet, error)
	SaveWallets(ctx context.Context, wallets []Wallet) error
}

// DecisionRepository persists Legitimate decisions keyed by cluster ID.
type DecisionRepository interface {
	LoadDecisions(ctx context.Context) (map[string]time.Time, error)
	SaveDecision(ctx context.Context, clusterID string, members []string, decidedAt time.Time) error
}
