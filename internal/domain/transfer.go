package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTokenDecimals is the precision of USDT on TRON.
const DefaultTokenDecimals = 6

// TRON base58 addresses start with 'T' and are 34 characters long.
var tronAddressRe = regexp.MustCompile(`^T[A-Za-z1-9]{33}$`)

// IsValidAddress is a format predicate only; it does not verify the checksum.
func IsValidAddress(address string) bool {
	return tronAddressRe.MatchString(address)
}

// NormalizeTransfer converts an indexer record into a TransactionRecord as seen
// from the owner wallet. Any shape problem is an ErrMalformedTransfer.
func NormalizeTransfer(raw RawTransfer, owner string) (TransactionRecord, error) {
	switch {
	case raw.TransactionID == "":
		return TransactionRecord{}, fmt.Errorf("transaction id: %w", ErrMalformedTransfer)
	case raw.From == "" || raw.To == "":
		return TransactionRecord{}, fmt.Errorf("%s: counterparty: %w", raw.TransactionID, ErrMalformedTransfer)
	case raw.BlockTimestamp <= 0:
		return TransactionRecord{}, fmt.Errorf("%s: block timestamp: %w", raw.TransactionID, ErrMalformedTransfer)
	}

	value, err := decimal.NewFromString(raw.Value)
	if err != nil || !value.IsInteger() || value.IsNegative() {
		return TransactionRecord{}, fmt.Errorf("%s: value %q: %w", raw.TransactionID, raw.Value, ErrMalformedTransfer)
	}

	decimals := raw.Decimals
	if decimals <= 0 {
		decimals = DefaultTokenDecimals
	}

	dir := DirectionSent
	if strings.EqualFold(raw.To, owner) {
		dir = DirectionReceived
	}

	return TransactionRecord{
		Hash:        raw.TransactionID,
		Amount:      value.Shift(-decimals),
		Direction:   dir,
		From:        raw.From,
		To:          raw.To,
		Timestamp:   time.UnixMilli(raw.BlockTimestamp).UTC(),
		BlockNumber: raw.BlockNumber,
		Wallet:      owner,
		Status:      TxCompleted,
	}, nil
}
