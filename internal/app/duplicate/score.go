// Package duplicate finds distinct transfers that are probably accidental
// repeats of one another, and remembers which of those the user has
// accepted as legitimate.
package duplicate

import (
	"time"

	"github.com/tronledger/tronledger/internal/domain"
)

// Scoring policy.
const (
	BaseScore       = 50
	SameFromBonus   = 20
	SameToBonus     = 20
	CloseTimeBonus  = 10
	CloseTimeWindow = time.Hour
	MaxScore        = 99 // two distinct hashes are never a certain duplicate
	Threshold       = 70
)

// Score rates how likely a and b are the same payment issued twice.
// Records with different amounts score 0. Score is symmetric and always
// within [0, MaxScore].
func Score(a, b domain.TransactionRecord) int {
	if !a.Amount.Equal(b.Amount) {
		return 0
	}

	score := BaseScore
	if a.From == b.From {
		score += SameFromBonus
	}
	if a.To == b.To {
		score += SameToBonus
	}
	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap < CloseTimeWindow {
		score += CloseTimeBonus
	}
	return min(score, MaxScore)
}
