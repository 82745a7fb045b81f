package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Validation errors: surfaced to the caller, never retried.
	ErrInvalidAddress    = errors.New("invalid TRON address")
	ErrMissingField      = errors.New("required field missing")
	ErrMalformedTransfer = errors.New("malformed transfer record")
	ErrInvalidStatus     = errors.New("invalid transaction status")

	// Fetch errors: recovered per wallet during reconciliation.
	ErrFetch = errors.New("ledger indexer request failed")

	// Persistence errors: reported, in-memory state stays authoritative.
	ErrPersistence = errors.New("persistence failed")

	// Invariant violations.
	ErrHashConflict = errors.New("hash already stored with a different payload")

	// Lookup errors
	ErrWalletExists        = errors.New("wallet already tracked")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrClusterNotFound     = errors.New("duplicate cluster not found")
)
